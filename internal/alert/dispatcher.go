package alert

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/podguard/internal/metrics"
)

// Dispatcher publishes asynchronously through a bounded queue so that a
// slow broker never delays a containment decision. When the queue is full
// the event is dropped and counted.
type Dispatcher struct {
	pub     Publisher
	name    string
	queue   chan Event
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
	once    sync.Once
}

// NewDispatcher starts a worker draining into pub.
func NewDispatcher(pub Publisher, name string, size int, logger *zap.Logger) *Dispatcher {
	if size <= 0 {
		size = 1024
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		pub:     pub,
		name:    name,
		queue:   make(chan Event, size),
		timeout: 10 * time.Second,
		logger:  logger,
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Publish enqueues e. It never blocks and never fails; dropped events are
// logged and counted.
func (d *Dispatcher) Publish(_ context.Context, e Event) error {
	select {
	case d.queue <- e:
	default:
		metrics.PublishFailures.WithLabelValues(d.name).Inc()
		d.logger.Warn("alert queue full, event dropped",
			zap.String("type", e.Type),
			zap.String("session_id", e.SessionID))
	}
	return nil
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for e := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.pub.Publish(ctx, e); err != nil {
			metrics.PublishFailures.WithLabelValues(d.name).Inc()
			d.logger.Warn("alert publish failed",
				zap.String("type", e.Type),
				zap.String("topic", string(e.Topic)),
				zap.Error(err))
		}
		cancel()
	}
}

// Close stops accepting events and waits for the queue to drain.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		close(d.queue)
		d.wg.Wait()
	})
}
