package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrDispatcherClosed is returned after Close.
var ErrDispatcherClosed = errors.New("audit: dispatcher closed")

// ErrQueueFull is returned when the buffer is full and drops are enabled.
var ErrQueueFull = errors.New("audit: queue full")

// SyncDispatcher writes straight to its sink. The worker uses it when draining
// queued records.
type SyncDispatcher struct {
	Sink Sink
}

func (d SyncDispatcher) Dispatch(ctx context.Context, rec Record) error {
	if d.Sink == nil {
		return errors.New("audit: sink not configured")
	}
	return d.Sink.Write(ctx, rec)
}

// AsyncConfig tunes an AsyncDispatcher.
type AsyncConfig struct {
	BufferSize int
	DropIfFull bool
}

// AsyncDispatcher buffers records on a channel drained by one goroutine.
// Sends hold mu for reading so Close cannot stop the drain while a record is
// on its way into the buffer.
type AsyncDispatcher struct {
	cfg     AsyncConfig
	sink    Sink
	logger  *slog.Logger
	ch      chan Record
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64
	failed  atomic.Uint64
	mu      sync.RWMutex
	closed  bool
}

// NewAsyncDispatcher starts the drain goroutine. Call Close to flush.
func NewAsyncDispatcher(cfg AsyncConfig, sink Sink, logger *slog.Logger) *AsyncDispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &AsyncDispatcher{
		cfg:    cfg,
		sink:   sink,
		logger: logger,
		ch:     make(chan Record, cfg.BufferSize),
		done:   make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *AsyncDispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case rec := <-d.ch:
			d.write(rec)
		case <-d.done:
			for {
				select {
				case rec := <-d.ch:
					d.write(rec)
				default:
					return
				}
			}
		}
	}
}

func (d *AsyncDispatcher) write(rec Record) {
	if err := d.sink.Write(context.Background(), rec); err != nil {
		d.failed.Add(1)
		d.logger.Error("audit write failed",
			slog.String("id", rec.ID),
			slog.String("function", rec.FunctionCode),
			slog.Any("error", err))
	}
}

// Dispatch queues rec. It blocks while the buffer is full unless DropIfFull
// is set.
func (d *AsyncDispatcher) Dispatch(ctx context.Context, rec Record) error {
	if d == nil {
		return ErrDispatcherClosed
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	if d.cfg.DropIfFull {
		select {
		case d.ch <- rec:
			return nil
		default:
			d.dropped.Add(1)
			return ErrQueueFull
		}
	}
	select {
	case d.ch <- rec:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting records and flushes what is buffered. Sends already
// in progress finish first.
func (d *AsyncDispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.wg.Wait()
		return
	}
	d.closed = true
	close(d.done)
	d.mu.Unlock()
	d.wg.Wait()
}

// Pending returns the number of buffered records.
func (d *AsyncDispatcher) Pending() int {
	if d == nil {
		return 0
	}
	return len(d.ch)
}

// Dropped returns how many records were discarded because the buffer was full.
func (d *AsyncDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Failed returns how many sink writes failed.
func (d *AsyncDispatcher) Failed() uint64 {
	if d == nil {
		return 0
	}
	return d.failed.Load()
}
