package audit

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"time"
)

// IPResolver returns the client address of the request in ctx, or "".
type IPResolver interface {
	ClientIP(ctx context.Context) string
}

// Observer is notified about dispatch outcomes.
type Observer interface {
	ObserveAudit(functionCode string, success bool, dispatchErr error)
}

// Tracker records the outcome of an audited operation.
type Tracker interface {
	Track(ctx context.Context, ev Event, err error)
}

// Correlator ties each audited operation to exactly one record carrying its
// outcome. Dispatch problems are logged and counted, never returned.
type Correlator struct {
	dispatcher Dispatcher
	ip         IPResolver
	actor      func(ctx context.Context) string
	observer   Observer
	logger     *slog.Logger
	now        func() time.Time
}

// CorrelatorOption customises a Correlator.
type CorrelatorOption func(*Correlator)

// WithIPResolver sets the client IP source.
func WithIPResolver(r IPResolver) CorrelatorOption {
	return func(c *Correlator) { c.ip = r }
}

// WithActor sets the function resolving the acting user id.
func WithActor(fn func(ctx context.Context) string) CorrelatorOption {
	return func(c *Correlator) { c.actor = fn }
}

// WithObserver registers dispatch metrics.
func WithObserver(o Observer) CorrelatorOption {
	return func(c *Correlator) { c.observer = o }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) CorrelatorOption {
	return func(c *Correlator) { c.now = now }
}

// NewCorrelator constructs a Correlator dispatching through d.
func NewCorrelator(d Dispatcher, logger *slog.Logger, opts ...CorrelatorOption) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Correlator{dispatcher: d, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Track records the outcome of ev. A nil err is a success.
func (c *Correlator) Track(ctx context.Context, ev Event, err error) {
	if c == nil || c.dispatcher == nil {
		return
	}
	at := c.now().UTC()
	rec := Record{
		ID:           NewID(at),
		FunctionCode: ev.FunctionCode,
		Action:       ev.Action,
		Description:  ev.Success,
		Observation:  ev.Observation,
		Success:      err == nil,
		OccurredAt:   at,
	}
	if err != nil {
		rec.Description = ev.Failure
	}
	if c.ip != nil {
		rec.ClientIP = c.ip.ClientIP(ctx)
	}
	if c.actor != nil {
		rec.ActorID = c.actor(ctx)
	}
	dispatchErr := c.dispatcher.Dispatch(context.WithoutCancel(ctx), rec)
	if dispatchErr != nil {
		c.logger.Warn("audit dispatch failed",
			slog.String("function", rec.FunctionCode),
			slog.String("action", rec.Action),
			slog.Any("error", dispatchErr))
	}
	if c.observer != nil {
		c.observer.ObserveAudit(rec.FunctionCode, rec.Success, dispatchErr)
	}
}

// Run executes fn, records its outcome and returns fn's error unchanged.
func (c *Correlator) Run(ctx context.Context, ev Event, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	c.Track(ctx, ev, err)
	return err
}

type clientIPKey struct{}

// WithClientIP stores the request's client address in ctx.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ContextIPResolver reads the address stored by WithClientIP.
type ContextIPResolver struct{}

func (ContextIPResolver) ClientIP(ctx context.Context) string {
	raw, _ := ctx.Value(clientIPKey{}).(string)
	return NormalizeIP(raw)
}

// NormalizeIP strips a port and rejects anything that is not an address.
func NormalizeIP(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(raw); err == nil {
		raw = host
	}
	ip := net.ParseIP(strings.Trim(raw, "[]"))
	if ip == nil {
		return ""
	}
	return ip.String()
}
