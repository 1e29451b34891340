package outbox

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	domoutbox "github.com/Zhima-Mochi/paylink/internal/domain/outbox"
	"github.com/Zhima-Mochi/paylink/internal/observability"
	"github.com/Zhima-Mochi/paylink/internal/observability/logctx"
)

var ErrBusClosed = errors.New("outbox: bus stopped")

const componentOutbox = "outbox"

// Options tune the bus. Zero values select the defaults.
type Options struct {
	QueueSize      int
	Concurrency    int
	HandlerTimeout time.Duration
}

// Bus is an in-memory event bus. Events are lost on restart; durable delivery is the
// job of the Kafka publisher it is usually fanned out with.
type Bus struct {
	subsMu    sync.RWMutex
	subs      map[string][]domoutbox.Handler
	mu        sync.RWMutex
	closed    bool
	queue     chan domoutbox.Event
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once

	concurrency    int
	handlerTimeout time.Duration

	log     observability.Logger
	handled observability.Counter
}

func NewBus(tel observability.Observability, opts Options) *Bus {
	if tel == nil {
		tel = observability.Nop()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.HandlerTimeout <= 0 {
		opts.HandlerTimeout = 30 * time.Second
	}
	return &Bus{
		subs:           make(map[string][]domoutbox.Handler),
		queue:          make(chan domoutbox.Event, opts.QueueSize),
		done:           make(chan struct{}),
		concurrency:    opts.Concurrency,
		handlerTimeout: opts.HandlerTimeout,
		log:            tel.Logger().With(observability.F("component", componentOutbox)),
		handled:        tel.Metrics().Counter(observability.MEventsHandled),
	}
}

func (b *Bus) Subscribe(eventName string, h domoutbox.Handler) {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	b.subs[eventName] = append(b.subs[eventName], h)
}

// Start launches the dispatch loop. It runs until Stop drains the queue.
func (b *Bus) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		go b.dispatchLoop(context.WithoutCancel(ctx))
		logctx.FromOr(ctx, b.log).Info("event_bus_started")
	})
}

// Stop refuses new events and waits for queued ones to be handled or ctx to expire.
func (b *Bus) Stop(ctx context.Context) error {
	b.Start(ctx)
	b.stopOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		close(b.queue)
		b.mu.Unlock()
	})

	select {
	case <-b.done:
		logctx.FromOr(ctx, b.log).Info("event_bus_stopped")
		return nil
	case <-ctx.Done():
		logctx.FromOr(ctx, b.log).Warn("event_bus_stop_timeout", observability.F("pending", len(b.queue)))
		return ctx.Err()
	}
}

func (b *Bus) Publish(ctx context.Context, e domoutbox.Event) error {
	if e == nil {
		return nil
	}
	logger := logctx.FromOr(ctx, b.log).With(observability.F("event", e.EventName()))

	// Holding the read lock keeps Stop from closing the queue under a pending send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}

	select {
	case b.queue <- e:
		logger.Debug("event_enqueued")
		return nil
	case <-ctx.Done():
		logger.Warn("event_enqueue_aborted", observability.F("error", ctx.Err()))
		return ctx.Err()
	}
}

func (b *Bus) dispatchLoop(ctx context.Context) {
	defer close(b.done)
	for e := range b.queue {
		b.fanout(ctx, e)
	}
}

func (b *Bus) fanout(ctx context.Context, e domoutbox.Event) {
	name := e.EventName()
	logger := b.log.With(observability.F("event", name))

	b.subsMu.RLock()
	handlers := append([]domoutbox.Handler(nil), b.subs[name]...)
	b.subsMu.RUnlock()

	if len(handlers) == 0 {
		logger.Debug("event_dropped_no_subscriber")
		return
	}

	sem := make(chan struct{}, b.concurrency)
	var wg sync.WaitGroup

	for _, h := range handlers {
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			outcome := "success"
			defer func() {
				if r := recover(); r != nil {
					outcome = "panic"
					logger.Error("event_handler_panic",
						observability.F("panic", r),
						observability.F("stack", string(debug.Stack())),
					)
				}
				b.handled.Add(1, observability.L("event", name), observability.L("outcome", outcome))
				<-sem
				wg.Done()
			}()

			hctx, cancel := context.WithTimeout(ctx, b.handlerTimeout)
			defer cancel()
			hctx = logctx.With(hctx, logger)
			if err := h(hctx, e); err != nil {
				outcome = "error"
				logger.Warn("event_handler_error", observability.F("error", err))
			}
		}()
	}

	wg.Wait()
	logger.Debug("event_fanned_out", observability.F("handlers", len(handlers)))
}
