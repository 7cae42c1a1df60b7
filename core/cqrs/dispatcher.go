package cqrs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/codewandler/axon-go/core/es"
	"github.com/codewandler/axon-go/core/retry"
)

var (
	ErrUnknownCommand   = errors.New("unknown command")
	ErrInvalidCommand   = errors.New("invalid command")
	ErrDuplicateRoute   = errors.New("duplicate command route")
	ErrAggregateClash   = errors.New("aggregate type registered with a different definition")
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// Publisher receives committed events. *bus.Bus implements it.
type Publisher interface {
	Publish(ctx context.Context, events ...es.Envelope) error
}

// IDCarrier is implemented by commands that bring their own id. The id
// becomes the causation id of the events the command produces.
type IDCarrier interface {
	CommandID() string
}

// handleFunc runs one load/decide/commit cycle and records its progress
// in res.
type handleFunc func(ctx context.Context, cmd es.Command, md es.Metadata, res *Result) error

type route struct {
	aggType string
	handle  handleFunc
}

// Dispatcher routes commands to the aggregates registered with Register.
type Dispatcher struct {
	log       *slog.Logger
	store     es.EventStore
	publisher Publisher
	registry  *es.EventRegistry
	metrics   Metrics
	retry     retry.Policy
	repoOpts  []es.RepositoryOption
	newID     func() string

	mu         sync.RWMutex
	routes     map[string]route
	aggregates map[string]aggregateSig
}

// NewDispatcher creates a dispatcher committing to store. publisher may
// be nil.
func NewDispatcher(store es.EventStore, publisher Publisher, opts ...Option) *Dispatcher {
	options := dispatcherOptions{
		log:     slog.Default(),
		metrics: NopMetrics(),
		retry:   retry.Default(),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt.applyToDispatcher(&options)
	}
	p := options.retry
	p.ShouldRetry = retry.On(es.ErrConcurrencyConflict)
	if options.registry == nil {
		options.registry = es.NewRegistry()
	}

	return &Dispatcher{
		log:        options.log.With(slog.String("component", "dispatcher")),
		store:      store,
		publisher:  publisher,
		registry:   options.registry,
		metrics:    options.metrics,
		retry:      p,
		repoOpts:   options.repoOpts,
		newID:      options.newID,
		routes:     make(map[string]route),
		aggregates: make(map[string]aggregateSig),
	}
}

// Registry holds the events of every registered aggregate. It decodes
// anything the dispatcher commits, so it fits as the bus decoder.
func (d *Dispatcher) Registry() *es.EventRegistry { return d.registry }

// CommandTypes lists the routed command types.
func (d *Dispatcher) CommandTypes() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.routes))
	for t := range d.routes {
		out = append(out, t)
	}
	return out
}

// Register binds the command types of cmds to agg. The commands are
// samples; only their CommandType is used. The aggregate's events are
// added to the dispatcher's registry.
func Register[S any](d *Dispatcher, agg es.Aggregate[S], cmds ...es.Command) error {
	if len(cmds) == 0 {
		return fmt.Errorf("%w: no commands for %s", ErrInvalidCommand, agg.Type())
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	types := make([]string, len(cmds))
	for i, cmd := range cmds {
		t := cmd.CommandType()
		if t == "" {
			return fmt.Errorf("%w: empty command type for %s", ErrInvalidCommand, agg.Type())
		}
		if r, ok := d.routes[t]; ok {
			return fmt.Errorf("%w: %s already handled by %s", ErrDuplicateRoute, t, r.aggType)
		}
		for _, seen := range types[:i] {
			if seen == t {
				return fmt.Errorf("%w: %s listed twice", ErrDuplicateRoute, t)
			}
		}
		types[i] = t
	}

	sig := signature(agg)
	known, ok := d.aggregates[agg.Type()]
	if ok && known != sig {
		return fmt.Errorf("%w: %s", ErrAggregateClash, agg.Type())
	}
	if !ok {
		if err := es.RegisterEvents(d.registry, agg.Events()...); err != nil {
			return fmt.Errorf("register events of %s: %w", agg.Type(), err)
		}
	}

	repoOpts := append([]es.RepositoryOption{es.WithLog(d.log)}, d.repoOpts...)
	repoOpts = append(repoOpts, es.WithRegistry(d.registry))
	repo, err := es.NewRepository(agg, d.store, repoOpts...)
	if err != nil {
		return err
	}

	r := route{aggType: agg.Type(), handle: newHandleFunc(repo)}
	for _, t := range types {
		d.routes[t] = r
	}
	d.aggregates[agg.Type()] = sig
	d.log.Debug("registered", slog.String("aggregate", agg.Type()), slog.Any("commands", types))
	return nil
}

// aggregateSig identifies an aggregate definition by its state type and the
// events it produces.
type aggregateSig struct {
	state  reflect.Type
	events string
}

func signature[S any](agg es.Aggregate[S]) aggregateSig {
	defs := agg.Events()
	types := make([]string, len(defs))
	for i, def := range defs {
		types[i] = def.Type
	}
	slices.Sort(types)
	return aggregateSig{state: reflect.TypeFor[S](), events: strings.Join(types, ",")}
}

func newHandleFunc[S any](repo *es.Repository[S]) handleFunc {
	return func(ctx context.Context, cmd es.Command, md es.Metadata, res *Result) error {
		res.Stage = StageReceived
		root, err := repo.Load(ctx, cmd.AggregateID())
		if err != nil {
			return err
		}
		res.Stage = StageLoaded
		res.Version, res.State = root.Version, root.State

		events, err := repo.Aggregate().Decide(root.State, cmd)
		if err != nil {
			return err
		}
		res.Stage = StageDecided

		saved, err := repo.Save(ctx, root, events, es.WithMetadata(md))
		if err != nil {
			return err
		}
		res.Stage = StageCommitted
		res.Version, res.State = saved.Root.Version, saved.Root.State
		res.Events, res.Envelopes = saved.Events, saved.Envelopes
		return nil
	}
}

// Dispatch runs cmd against its aggregate. The returned Result is never
// nil once the command was routed; the error is nil only for Committed.
//
// Rejections wrap es.ErrDomainRejection. A conflict that outlasts the
// retry budget wraps es.ErrConcurrencyConflict and ErrRetriesExhausted.
// Until the commit a cancelled ctx aborts without side effects; after the
// commit the events are published even if ctx is done.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd es.Command) (*Result, error) {
	if cmd == nil {
		return nil, fmt.Errorf("%w: nil command", ErrInvalidCommand)
	}
	d.mu.RLock()
	r, ok := d.routes[cmd.CommandType()]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.CommandType())
	}
	if cmd.AggregateID() == "" {
		return nil, fmt.Errorf("%w: %s without aggregate id", ErrInvalidCommand, cmd.CommandType())
	}

	md := d.metadata(ctx, cmd)
	res := &Result{
		CommandType:   cmd.CommandType(),
		Stream:        es.NewStreamID(r.aggType, cmd.AggregateID()),
		CorrelationID: md.CorrelationID(),
	}
	log := d.log.With(
		slog.String("command", cmd.CommandType()),
		res.Stream.SlogAttr(),
		slog.String("correlation_id", res.CorrelationID),
	)

	timer := d.metrics.CommandDuration(res.CommandType)
	attempts, err := retry.Do(ctx, d.retry, func(ctx context.Context, attempt int) error {
		if attempt > 1 {
			d.metrics.CommandRetried(res.CommandType)
			log.Debug("retrying after conflict", slog.Int("attempt", attempt))
		}
		return r.handle(ctx, cmd, md, res)
	})
	timer.ObserveDuration()
	res.Attempts = attempts

	res.Outcome, err = classify(err)
	d.metrics.CommandOutcome(res.CommandType, res.Outcome)

	switch res.Outcome {
	case Committed:
		log.Debug("dispatched", res.LogAttrs()...)
		d.publish(ctx, log, res)
		return res, nil
	case Rejected:
		reason, _ := es.RejectionReason(err)
		log.Debug("dispatched", append(res.LogAttrs(), slog.String("reason", reason))...)
	case Conflicted:
		log.Warn("dispatched", append(res.LogAttrs(), slog.Any("error", err))...)
	default:
		log.Error("dispatched", append(res.LogAttrs(), slog.Any("error", err))...)
	}
	return res, err
}

func classify(err error) (Outcome, error) {
	switch {
	case err == nil:
		return Committed, nil
	case errors.Is(err, es.ErrDomainRejection):
		return Rejected, err
	case errors.Is(err, retry.ErrExhausted) && errors.Is(err, es.ErrConcurrencyConflict):
		return Conflicted, fmt.Errorf("%w: %w", ErrRetriesExhausted, err)
	default:
		return Failed, err
	}
}

func (d *Dispatcher) publish(ctx context.Context, log *slog.Logger, res *Result) {
	if d.publisher == nil || len(res.Envelopes) == 0 {
		return
	}
	if err := d.publisher.Publish(context.WithoutCancel(ctx), res.Envelopes...); err != nil {
		log.Error("publish failed", res.Stream.SlogAttr(), slog.Any("error", err))
	}
}

func (d *Dispatcher) metadata(ctx context.Context, cmd es.Command) es.Metadata {
	var md es.Metadata
	if mc, ok := cmd.(es.MetadataCarrier); ok {
		md = mc.Metadata().Clone()
	}
	if md == nil {
		md = es.Metadata{}
	}

	if md.CorrelationID() == "" {
		if id, ok := CorrelationID(ctx); ok {
			md[es.MetaCorrelationID] = id
		} else {
			md[es.MetaCorrelationID] = d.newID()
		}
	}
	if md.TraceID() == "" {
		if id, ok := TraceID(ctx); ok {
			md[es.MetaTraceID] = id
		}
	}
	causation := ""
	if ic, ok := cmd.(IDCarrier); ok {
		causation = ic.CommandID()
	}
	if causation == "" {
		causation = d.newID()
	}
	md[es.MetaCausationID] = causation
	md[es.MetaCommandType] = cmd.CommandType()
	return md
}

// DispatchTyped is Dispatch with the resulting state typed as S.
func DispatchTyped[S any](ctx context.Context, d *Dispatcher, cmd es.Command) (S, *Result, error) {
	res, err := d.Dispatch(ctx, cmd)
	var state S
	if res != nil {
		state, _ = res.State.(S)
	}
	return state, res, err
}
