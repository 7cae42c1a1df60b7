package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/codewandler/axon-go/core/es"
	"github.com/codewandler/axon-go/core/perkey"
	"github.com/codewandler/axon-go/core/retry"
)

var (
	ErrBusClosed             = errors.New("bus closed")
	ErrSubscribeAfterPublish = errors.New("subscribe after first publish")
	ErrDuplicateSubscriber   = errors.New("duplicate subscriber")
)

type subscriber struct {
	name    string
	filters []Filter
	handler Handler
	raw     Handler
}

// Bus fans committed events out to subscribers.
type Bus struct {
	id         string
	log        *slog.Logger
	metrics    Metrics
	decoder    es.Decoder
	redelivery retry.Policy
	deadLetter DeadLetterSink
	dlq        *DeadLetterQueue
	queue      *perkey.Scheduler[string]

	mu        sync.RWMutex
	subs      []*subscriber
	published bool
	closed    bool
	inflight  sync.WaitGroup
}

func New(opts ...Option) *Bus {
	options := busOptions{
		log:        slog.Default(),
		metrics:    NopMetrics(),
		redelivery: retry.Policy{MaxAttempts: 3, Backoff: retry.ExponentialBackoff(time.Millisecond, 2, 50*time.Millisecond, 0.2)},
	}
	for _, opt := range opts {
		opt.applyToBus(&options)
	}

	b := &Bus{
		id:         gonanoid.Must(8),
		metrics:    options.metrics,
		decoder:    options.decoder,
		redelivery: options.redelivery,
		deadLetter: options.deadLetter,
	}
	if b.deadLetter == nil {
		b.dlq = NewDeadLetterQueue()
		b.deadLetter = b.dlq
	}
	mode := "sync"
	if options.queueSize > 0 {
		mode = "queued"
		b.queue = perkey.New[string](perkey.WithBufferSize(options.queueSize))
	}
	b.log = options.log.With(slog.String("component", "bus"), slog.String("bus", b.id), slog.String("mode", mode))
	return b
}

// DeadLetters returns the default dead-letter queue, or nil if a custom
// sink was configured.
func (b *Bus) DeadLetters() *DeadLetterQueue { return b.dlq }

// Subscribe registers h under a unique name. It must be called before the
// first Publish.
func (b *Bus) Subscribe(name string, h Handler, opts ...SubscribeOption) error {
	if name == "" {
		return errors.New("subscriber name is empty")
	}
	options := subscribeOptions{}
	for _, opt := range opts {
		opt.applyToSubscribe(&options)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.closed:
		return ErrBusClosed
	case b.published:
		return fmt.Errorf("%w: %s", ErrSubscribeAfterPublish, name)
	}
	for _, s := range b.subs {
		if s.name == name {
			return fmt.Errorf("%w: %s", ErrDuplicateSubscriber, name)
		}
	}
	b.subs = append(b.subs, &subscriber{
		name:    name,
		filters: options.filters,
		handler: applyMiddlewares(h, options.middlewares),
		raw:     h,
	})
	b.log.Debug("subscribed", slog.String("subscriber", name), slog.Int("filters", len(options.filters)))
	return nil
}

// Publish delivers committed events to every matching subscriber. Handler
// failures never surface here; the only errors are ErrBusClosed and, in
// queued mode, ctx ending while a full queue blocks.
func (b *Bus) Publish(ctx context.Context, events ...es.Envelope) error {
	if len(events) == 0 {
		return nil
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	b.published = true
	subs := b.subs
	b.inflight.Add(1)
	b.mu.Unlock()
	defer b.inflight.Done()

	b.metrics.Published(len(events))

	decoded := make([]decodedEvent, len(events))
	for i, env := range events {
		decoded[i].env = env
		if b.decoder != nil {
			decoded[i].event, decoded[i].err = b.decoder.Decode(env)
		}
	}

	var errs []error
	for _, sub := range subs {
		batch := make([]decodedEvent, 0, len(decoded))
		for _, d := range decoded {
			if matchAll(d.env, sub.filters) {
				batch = append(batch, d)
			}
		}
		if len(batch) == 0 {
			continue
		}

		if b.queue == nil {
			b.deliver(ctx, sub, batch)
			continue
		}

		dctx := context.WithoutCancel(ctx)
		if err := b.queue.Submit(ctx, sub.name, func() { b.deliver(dctx, sub, batch) }); err != nil {
			for _, d := range batch {
				b.deadLetterEvent(dctx, sub, d.env, 0, fmt.Errorf("enqueue: %w", err))
			}
			errs = append(errs, fmt.Errorf("enqueue for %s: %w", sub.name, err))
		}
	}
	return errors.Join(errs...)
}

type decodedEvent struct {
	env   es.Envelope
	event any
	err   error
}

func (b *Bus) deliver(ctx context.Context, sub *subscriber, batch []decodedEvent) {
	for _, d := range batch {
		if d.err != nil {
			b.deadLetterEvent(ctx, sub, d.env, 0, fmt.Errorf("decode: %w", d.err))
			continue
		}
		b.deliverOne(ctx, sub, newMsg(ctx, b.log, sub.name, d.env, d.event))
	}
}

func (b *Bus) deliverOne(ctx context.Context, sub *subscriber, msg *Msg) {
	attempts, err := retry.Do(ctx, b.redelivery, func(_ context.Context, attempt int) error {
		if attempt > 1 {
			b.metrics.Redelivered(sub.name)
		}
		msg.attempt = attempt
		timer := b.metrics.HandleDuration(sub.name, msg.Type())
		err := safeHandle(sub.handler, msg)
		timer.ObserveDuration()
		b.metrics.Handled(sub.name, msg.Type(), err == nil)
		return err
	})
	if err != nil {
		b.deadLetterEvent(ctx, sub, msg.env, attempts, err)
	}
}

func (b *Bus) deadLetterEvent(ctx context.Context, sub *subscriber, env es.Envelope, attempts int, err error) {
	dl := DeadLetter{
		Subscriber: sub.name,
		Envelope:   env,
		Err:        err,
		Attempts:   attempts,
		FailedAt:   time.Now(),
	}
	b.metrics.DeadLettered(sub.name)
	b.log.Error("dead-lettered", dl.LogAttrs()...)
	b.deadLetter.DeadLetter(ctx, dl)
}

// Redeliver hands dead letters of the given subscriber back to it, once.
// Letters that fail again are dead-lettered again.
func (b *Bus) Redeliver(ctx context.Context, letters ...DeadLetter) error {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, dl := range letters {
		idx := -1
		for i, s := range subs {
			if s.name == dl.Subscriber {
				idx = i
			}
		}
		if idx < 0 {
			return fmt.Errorf("unknown subscriber %q", dl.Subscriber)
		}
		var d decodedEvent
		d.env = dl.Envelope
		if b.decoder != nil {
			d.event, d.err = b.decoder.Decode(dl.Envelope)
		}
		b.deliver(ctx, subs[idx], []decodedEvent{d})
	}
	return nil
}

// Subscribers returns the subscriber names in registration order.
func (b *Bus) Subscribers() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, len(b.subs))
	for i, s := range b.subs {
		out[i] = s.name
	}
	return out
}

// Close stops accepting events and waits until every pending delivery
// finished or ctx is done. Handlers implementing Shutdowner are shut down
// afterwards.
func (b *Bus) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subs
	b.mu.Unlock()

	var errs []error

	published := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(published)
	}()
	select {
	case <-published:
	case <-ctx.Done():
		return ctx.Err()
	}

	if b.queue != nil {
		if err := b.queue.Close(ctx); err != nil {
			return err
		}
	}

	for _, s := range subs {
		if sd, ok := s.raw.(Shutdowner); ok {
			if err := sd.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("shutdown %s: %w", s.name, err))
			}
		}
	}
	b.log.Debug("closed")
	return errors.Join(errs...)
}
