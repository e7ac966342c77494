// Package audit records who did what to the security model, from where, and
// whether it worked.
package audit

import (
	"context"
	"errors"
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Record is one immutable audit trail entry.
type Record struct {
	ID           string    `json:"id"`
	FunctionCode string    `json:"functionName"`
	Action       string    `json:"action"`
	Description  string    `json:"description"`
	Observation  string    `json:"observation,omitempty"`
	ClientIP     string    `json:"ip"`
	ActorID      string    `json:"actorId,omitempty"`
	Success      bool      `json:"success"`
	OccurredAt   time.Time `json:"occurredAt"`
}

// Validate reports records that cannot be stored.
func (r Record) Validate() error {
	if strings.TrimSpace(r.FunctionCode) == "" || strings.TrimSpace(r.Action) == "" {
		return errors.New("audit: record requires function code and action")
	}
	return nil
}

// Event describes an auditable operation before its outcome is known.
type Event struct {
	FunctionCode string
	Action       string
	Success      string
	Failure      string
	Observation  string
}

// Sink persists records.
type Sink interface {
	Write(ctx context.Context, rec Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rec Record) error

func (f SinkFunc) Write(ctx context.Context, rec Record) error {
	return f(ctx, rec)
}

// Dispatcher hands records to a sink without blocking the caller on the write.
type Dispatcher interface {
	Dispatch(ctx context.Context, rec Record) error
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// NewID returns a lexicographically sortable record id.
func NewID(at time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), entropy).String()
}
