package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureDispatcher struct {
	mu      sync.Mutex
	records []Record
	err     error
}

func (d *captureDispatcher) Dispatch(_ context.Context, rec Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records = append(d.records, rec)
	return d.err
}

type countingObserver struct {
	calls    int
	failures int
}

func (o *countingObserver) ObserveAudit(_ string, _ bool, err error) {
	o.calls++
	if err != nil {
		o.failures++
	}
}

var assignEvent = Event{
	FunctionCode: "SEC-FUNCTIONS-TO-ROLE-UPDATE",
	Action:       "assign functions to role",
	Success:      "Successfully assigned functions to role",
	Failure:      "Failed to assign functions to role",
	Observation:  "Role ID: 5",
}

func TestTrackSuccess(t *testing.T) {
	d := &captureDispatcher{}
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := NewCorrelator(d, nil,
		WithIPResolver(ContextIPResolver{}),
		WithActor(func(context.Context) string { return "7" }),
		WithClock(func() time.Time { return fixed }))

	ctx := WithClientIP(context.Background(), "10.0.0.9:5531")
	c.Track(ctx, assignEvent, nil)

	require.Len(t, d.records, 1)
	rec := d.records[0]
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "SEC-FUNCTIONS-TO-ROLE-UPDATE", rec.FunctionCode)
	assert.Equal(t, "assign functions to role", rec.Action)
	assert.Equal(t, "Successfully assigned functions to role", rec.Description)
	assert.Equal(t, "Role ID: 5", rec.Observation)
	assert.Equal(t, "10.0.0.9", rec.ClientIP)
	assert.Equal(t, "7", rec.ActorID)
	assert.True(t, rec.Success)
	assert.Equal(t, fixed, rec.OccurredAt)
}

func TestTrackFailureUsesFailureDescription(t *testing.T) {
	d := &captureDispatcher{}
	c := NewCorrelator(d, nil)
	c.Track(context.Background(), assignEvent, errors.New("backend down"))

	require.Len(t, d.records, 1)
	assert.False(t, d.records[0].Success)
	assert.Equal(t, "Failed to assign functions to role", d.records[0].Description)
	assert.Empty(t, d.records[0].ClientIP)
}

func TestRunReturnsPrimaryErrorDespiteDispatchFailure(t *testing.T) {
	d := &captureDispatcher{err: errors.New("audit store down")}
	obs := &countingObserver{}
	c := NewCorrelator(d, nil, WithObserver(obs))
	primary := errors.New("validation failed")

	err := c.Run(context.Background(), assignEvent, func(context.Context) error { return primary })
	assert.Same(t, primary, err)
	require.Len(t, d.records, 1)
	assert.Equal(t, 1, obs.calls)
	assert.Equal(t, 1, obs.failures)

	err = c.Run(context.Background(), assignEvent, func(context.Context) error { return nil })
	assert.NoError(t, err)
	assert.Len(t, d.records, 2)
}

func TestTrackDispatchesAfterCancellation(t *testing.T) {
	d := &captureDispatcher{}
	c := NewCorrelator(d, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.Track(ctx, assignEvent, ctx.Err())
	assert.Len(t, d.records, 1)
}

func TestNilCorrelatorIsNoop(t *testing.T) {
	var c *Correlator
	assert.NotPanics(t, func() { c.Track(context.Background(), assignEvent, nil) })
}

func TestNormalizeIP(t *testing.T) {
	assert.Equal(t, "192.168.1.4", NormalizeIP("192.168.1.4"))
	assert.Equal(t, "192.168.1.4", NormalizeIP(" 192.168.1.4:443 "))
	assert.Equal(t, "::1", NormalizeIP("[::1]:80"))
	assert.Equal(t, "", NormalizeIP("not-an-ip"))
	assert.Equal(t, "", NormalizeIP(""))
}

func TestNewIDSortsByTime(t *testing.T) {
	a := NewID(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	b := NewID(time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC))
	assert.Less(t, a, b)
	assert.Len(t, a, 26)
}
