package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/codewandler/axon-go/core/bus"
	"github.com/codewandler/axon-go/core/cqrs"
	"github.com/codewandler/axon-go/core/es"
)

// Registration adds aggregates or subscribers to an app under construction.
type Registration func(a *App) error

// Aggregate routes cmds to agg.
func Aggregate[S any](agg es.Aggregate[S], cmds ...es.Command) Registration {
	return func(a *App) error {
		return cqrs.Register(a.dispatcher, agg, cmds...)
	}
}

// Subscriber receives events committed from now on.
func Subscriber(name string, h bus.Handler, opts ...bus.SubscribeOption) Registration {
	return func(a *App) error {
		return a.bus.Subscribe(name, h, opts...)
	}
}

// Projection replays the stored events matching filters into h and then
// subscribes it for new ones.
func Projection(name string, h bus.Handler, filters ...bus.Filter) Registration {
	return func(a *App) error {
		reader, ok := a.store.(es.AllReader)
		if !ok {
			return fmt.Errorf("projection %s: store cannot be replayed", name)
		}
		last, err := bus.Replay(a.ctx, reader, h, 0,
			bus.WithDecoder(a.registry),
			bus.WithLog(a.log),
			bus.WithName(name),
			bus.WithFilter(filters...),
		)
		if err != nil {
			return fmt.Errorf("projection %s: %w", name, err)
		}
		a.log.Debug("projection caught up", slog.String("projection", name), slog.Uint64("seq", last))
		return a.bus.Subscribe(name, h, bus.WithFilter(filters...))
	}
}

type App struct {
	ctx          context.Context
	cancelCtx    context.CancelFunc
	id           string
	log          *slog.Logger
	store        es.EventStore
	snapshotter  es.Snapshotter
	registry     *es.EventRegistry
	bus          *bus.Bus
	dispatcher   *cqrs.Dispatcher
	done         chan struct{}
	shutdownOnce sync.Once
	shutdownErr  error
}

func New(config Config, registrations ...Registration) (app *App, err error) {
	app = &App{
		id:       gonanoid.Must(6),
		registry: es.NewRegistry(),
		done:     make(chan struct{}),
	}

	// === logger ===
	if config.Log == nil {
		config.Log = slog.Default()
	}
	app.log = config.Log.With(slog.String("app", app.id))

	// === context ===
	if config.Context == nil {
		config.Context = context.Background()
	}
	app.ctx, app.cancelCtx = context.WithCancel(config.Context)

	metrics := config.Metrics.withDefaults()

	// === store ===
	app.store = config.Store
	if app.store == nil {
		app.store = es.NewInMemoryStore(es.WithLog(app.log), es.WithMetrics(metrics.ES))
	}
	app.snapshotter = config.Snapshotter

	// === bus ===
	busOpts := []bus.Option{
		bus.WithLog(app.log),
		bus.WithMetrics(metrics.Bus),
		bus.WithDecoder(app.registry),
		bus.WithQueued(config.Bus.QueueSize),
	}
	if config.Bus.Redelivery != nil {
		busOpts = append(busOpts, bus.WithRedelivery(*config.Bus.Redelivery))
	}
	if config.Bus.DeadLetters != nil {
		busOpts = append(busOpts, bus.WithDeadLetters(config.Bus.DeadLetters))
	}
	app.bus = bus.New(busOpts...)

	// === dispatcher ===
	repoOpts := []es.RepositoryOption{es.WithMetrics(metrics.ES)}
	if app.snapshotter != nil {
		repoOpts = append(repoOpts, es.WithSnapshotter(app.snapshotter), es.WithSnapshotEvery(config.SnapshotEvery))
	}
	if config.SchemaVersion > 0 {
		repoOpts = append(repoOpts, es.WithSchemaVersion(config.SchemaVersion))
	}
	dispatcherOpts := []cqrs.Option{
		cqrs.WithLog(app.log),
		cqrs.WithMetrics(metrics.Dispatcher),
		cqrs.WithRegistry(app.registry),
		cqrs.WithRepositoryOptions(repoOpts...),
	}
	if config.Retry != nil {
		dispatcherOpts = append(dispatcherOpts, cqrs.WithRetry(*config.Retry))
	}
	app.dispatcher = cqrs.NewDispatcher(app.store, app.bus, dispatcherOpts...)

	// === registrations ===
	for _, r := range registrations {
		if err := r(app); err != nil {
			return nil, errors.Join(err, app.Shutdown(context.Background()))
		}
	}

	context.AfterFunc(app.ctx, func() {
		_ = app.Shutdown(context.WithoutCancel(app.ctx))
	})

	app.log.Debug("app created", slog.Any("commands", app.dispatcher.CommandTypes()), slog.Any("subscribers", app.bus.Subscribers()))
	return app, nil
}

func (a *App) Store() es.EventStore         { return a.store }
func (a *App) Snapshotter() es.Snapshotter  { return a.snapshotter }
func (a *App) Registry() *es.EventRegistry  { return a.registry }
func (a *App) Bus() *bus.Bus                { return a.bus }
func (a *App) Dispatcher() *cqrs.Dispatcher { return a.dispatcher }
func (a *App) Log() *slog.Logger            { return a.log }
func (a *App) Done() <-chan struct{}        { return a.done }

// Dispatch hands cmd to the dispatcher.
func (a *App) Dispatch(ctx context.Context, cmd es.Command) (*cqrs.Result, error) {
	return a.dispatcher.Dispatch(ctx, cmd)
}

// Shutdown drains the bus and cancels the app context. Later calls return
// the result of the first.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownOnce.Do(func() {
		a.log.Debug("shutting down")
		a.shutdownErr = a.bus.Close(ctx)
		a.cancelCtx()
		close(a.done)
		a.log.Info("app shutdown")
	})
	return a.shutdownErr
}
