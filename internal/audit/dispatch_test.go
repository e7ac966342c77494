package audit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	mu      sync.Mutex
	records []Record
	block   chan struct{}
	err     error
}

func (s *memorySink) Write(_ context.Context, rec Record) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return s.err
}

func (s *memorySink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func TestAsyncDispatcherFlushesOnClose(t *testing.T) {
	sink := &memorySink{}
	d := NewAsyncDispatcher(AsyncConfig{BufferSize: 8}, sink, nil)
	for i := 0; i < 5; i++ {
		require.NoError(t, d.Dispatch(context.Background(), Record{FunctionCode: "SEC-ROLES-READ", Action: "get roles"}))
	}
	d.Close()
	assert.Equal(t, 5, sink.len())
	assert.ErrorIs(t, d.Dispatch(context.Background(), Record{}), ErrDispatcherClosed)
}

func TestAsyncDispatcherDropsWhenFull(t *testing.T) {
	sink := &memorySink{block: make(chan struct{})}
	d := NewAsyncDispatcher(AsyncConfig{BufferSize: 1, DropIfFull: true}, sink, nil)

	var dropped int
	for i := 0; i < 10; i++ {
		if err := d.Dispatch(context.Background(), Record{FunctionCode: "X", Action: "y"}); errors.Is(err, ErrQueueFull) {
			dropped++
		}
	}
	assert.Positive(t, dropped)
	assert.Equal(t, uint64(dropped), d.Dropped())
	close(sink.block)
	d.Close()
	assert.Equal(t, 10-dropped, sink.len())
}

func TestAsyncDispatcherCountsSinkFailures(t *testing.T) {
	sink := &memorySink{err: errors.New("insert failed")}
	d := NewAsyncDispatcher(AsyncConfig{BufferSize: 2}, sink, nil)
	require.NoError(t, d.Dispatch(context.Background(), Record{FunctionCode: "X", Action: "y"}))
	d.Close()
	assert.Equal(t, uint64(1), d.Failed())
}

func TestAsyncDispatcherKeepsEveryAcceptedRecordAcrossClose(t *testing.T) {
	for round := 0; round < 50; round++ {
		sink := &memorySink{}
		d := NewAsyncDispatcher(AsyncConfig{BufferSize: 4}, sink, nil)

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			accepted int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if d.Dispatch(context.Background(), Record{FunctionCode: "X", Action: "y"}) == nil {
					mu.Lock()
					accepted++
					mu.Unlock()
				}
			}()
		}
		d.Close()
		wg.Wait()

		assert.Equal(t, accepted, sink.len(), "round %d", round)
		assert.ErrorIs(t, d.Dispatch(context.Background(), Record{}), ErrDispatcherClosed)
	}
}

func TestSyncDispatcherRequiresSink(t *testing.T) {
	assert.Error(t, SyncDispatcher{}.Dispatch(context.Background(), Record{}))
	sink := &memorySink{}
	require.NoError(t, SyncDispatcher{Sink: sink}.Dispatch(context.Background(), Record{FunctionCode: "X", Action: "y"}))
	assert.Equal(t, 1, sink.len())
}

func TestLogSinkRejectsIncompleteRecords(t *testing.T) {
	assert.Error(t, LogSink{}.Write(context.Background(), Record{Action: "get roles"}))
	assert.NoError(t, LogSink{}.Write(context.Background(), Record{FunctionCode: "SEC-ROLES-READ", Action: "get roles"}))
}
