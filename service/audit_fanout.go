package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pallabcodes/distributed-ratelimiter/audit"
	"github.com/pallabcodes/distributed-ratelimiter/metrics"
)

// auditPublishTimeout bounds a single background publish attempt so a
// stalled broker can't pile up goroutines.
const auditPublishTimeout = 5 * time.Second

// auditFanout owns the bounded backpressure queue in front of the audit
// publisher (spec.md §5): the request path enqueues and returns
// immediately; a fixed pool of workers drains the queue and calls
// Publish in the background. When the queue is full the oldest pending
// event is dropped in favor of the new one, and a counter is
// incremented — never the other way around, since blocking the decision
// path on broker backpressure is forbidden.
type auditFanout struct {
	queue     chan audit.Event
	publisher audit.Publisher
	recorder  metrics.Recorder

	stopCh    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newAuditFanout(publisher audit.Publisher, recorder metrics.Recorder, queueSize, workers int) *auditFanout {
	if queueSize <= 0 {
		queueSize = 1
	}
	if workers <= 0 {
		workers = 1
	}

	f := &auditFanout{
		queue:     make(chan audit.Event, queueSize),
		publisher: publisher,
		recorder:  recorder,
		stopCh:    make(chan struct{}),
	}

	f.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go f.worker()
	}
	return f
}

// enqueue never blocks: a full queue drops its oldest entry to make room.
func (f *auditFanout) enqueue(event audit.Event) {
	select {
	case f.queue <- event:
		return
	default:
	}

	select {
	case <-f.queue:
		f.recorder.IncrementAuditDropped()
	default:
	}

	select {
	case f.queue <- event:
	default:
		f.recorder.IncrementAuditDropped()
	}
}

func (f *auditFanout) worker() {
	defer f.wg.Done()
	for {
		select {
		case event, ok := <-f.queue:
			if !ok {
				return
			}
			f.publish(event)
		case <-f.stopCh:
			return
		}
	}
}

func (f *auditFanout) publish(event audit.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), auditPublishTimeout)
	defer cancel()
	if err := f.publisher.Publish(ctx, event); err != nil {
		slog.Warn("audit publish failed", slog.String("event_id", event.EventID), slog.Any("error", err))
	}
}

// close signals the workers to stop, waits for them to return, then
// closes the underlying publisher. Events still in the queue at that
// point are not published.
func (f *auditFanout) close() error {
	f.closeOnce.Do(func() { close(f.stopCh) })
	f.wg.Wait()
	return f.publisher.Close()
}
