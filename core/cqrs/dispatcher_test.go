package cqrs_test

import (
	"context"
	"errors"
	"iter"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/axon-go/core/bus"
	"github.com/codewandler/axon-go/core/cqrs"
	"github.com/codewandler/axon-go/core/es"
	"github.com/codewandler/axon-go/core/es/estests/domain"
	"github.com/codewandler/axon-go/core/retry"
)

type publisher struct {
	mu     sync.Mutex
	events []es.Envelope
	err    error
}

func (p *publisher) Publish(_ context.Context, events ...es.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return p.err
}

func (p *publisher) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func newDispatcher(t *testing.T, store es.EventStore, pub cqrs.Publisher, opts ...cqrs.Option) *cqrs.Dispatcher {
	t.Helper()
	d := cqrs.NewDispatcher(store, pub, opts...)
	require.NoError(t, cqrs.Register[account](d, accountAgg, openAccount{}, deposit{}, withdraw{}, noop{}))
	return d
}

func balanceProjection(t *testing.T) *bus.InMemoryProjection[map[string]int] {
	t.Helper()
	p, err := bus.NewInMemoryProjection(t.Context(), bus.ProjectionOpts{Name: "balances"}, map[string]int{},
		func(s map[string]int, msg *bus.Msg) (map[string]int, error) {
			switch e := msg.Event().(type) {
			case deposited:
				s[msg.AggregateID()] += e.Amount
			case withdrawn:
				s[msg.AggregateID()] -= e.Amount
			}
			return s, nil
		})
	require.NoError(t, err)
	return p
}

func TestDispatch_InsufficientFunds(t *testing.T) {
	store := es.NewInMemoryStore()
	reg := es.NewRegistry()
	b := bus.New(bus.WithDecoder(reg))
	d := newDispatcher(t, store, b, cqrs.WithRegistry(reg))
	balances := balanceProjection(t)
	require.NoError(t, b.Subscribe(balances.Name(), balances))

	res, err := d.Dispatch(t.Context(), openAccount{ID: "a1", Owner: "ann"})
	require.NoError(t, err)
	require.Equal(t, cqrs.Committed, res.Outcome)
	require.Equal(t, []any{accountOpened{Owner: "ann"}}, res.Events)

	res, err = d.Dispatch(t.Context(), deposit{ID: "a1", Amount: 100})
	require.NoError(t, err)
	require.Equal(t, []any{deposited{Amount: 100}}, res.Events)
	require.Equal(t, es.Version(2), res.Version)

	res, err = d.Dispatch(t.Context(), withdraw{ID: "a1", Amount: 150})
	require.ErrorIs(t, err, es.ErrDomainRejection)
	reason, ok := es.RejectionReason(err)
	require.True(t, ok)
	require.Equal(t, "insufficient funds", reason)
	require.Equal(t, cqrs.Rejected, res.Outcome)
	require.Equal(t, cqrs.StageLoaded, res.Stage)
	require.Equal(t, 1, res.Attempts)
	require.Empty(t, res.Events)

	v, err := store.Version(t.Context(), es.NewStreamID("account", "a1"))
	require.NoError(t, err)
	require.Equal(t, es.Version(2), v)
	require.Equal(t, 100, balances.State()["a1"])
	require.Equal(t, account{Open: true, Balance: 100}, res.State)
}

// barrierStore collects the first n reads eagerly and holds them until all
// of them arrived, so that n dispatches decide on the same version.
type barrierStore struct {
	*es.InMemoryStore
	n       int32
	arrived atomic.Int32
	release chan struct{}
}

func newBarrierStore(n int32) *barrierStore {
	return &barrierStore{InMemoryStore: es.NewInMemoryStore(), n: n, release: make(chan struct{})}
}

func (s *barrierStore) Read(ctx context.Context, stream es.StreamID, opts ...es.ReadOption) iter.Seq2[es.Envelope, error] {
	k := s.arrived.Add(1)
	if k > s.n {
		return s.InMemoryStore.Read(ctx, stream, opts...)
	}
	envs, err := es.LoadAll(ctx, s.InMemoryStore, stream, opts...)
	if k == s.n {
		close(s.release)
	}
	<-s.release
	return func(yield func(es.Envelope, error) bool) {
		if err != nil {
			yield(es.Envelope{}, err)
			return
		}
		for _, env := range envs {
			if !yield(env, nil) {
				return
			}
		}
	}
}

func TestDispatch_ConcurrentDepositsRetryOnConflict(t *testing.T) {
	store := newBarrierStore(2)
	pub := &publisher{}
	d := newDispatcher(t, store, pub, cqrs.WithRetry(retry.Policy{MaxAttempts: 3}))

	var wg sync.WaitGroup
	results := make([]*cqrs.Result, 2)
	errs := make([]error, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = d.Dispatch(t.Context(), deposit{ID: "a1", Amount: 50})
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	attempts := []int{results[0].Attempts, results[1].Attempts}
	require.ElementsMatch(t, []int{1, 2}, attempts)
	versions := []es.Version{results[0].Version, results[1].Version}
	require.ElementsMatch(t, []es.Version{1, 2}, versions)

	envs, err := es.LoadAll(t.Context(), store, es.NewStreamID("account", "a1"))
	require.NoError(t, err)
	require.Len(t, envs, 2)

	final, _, err := cqrs.DispatchTyped[account](t.Context(), d, noop{ID: "a1"})
	require.NoError(t, err)
	require.Equal(t, 100, final.Balance)
	require.Equal(t, 2, pub.len())
}

// reorderingPublisher holds the first publish until the second one returned.
type reorderingPublisher struct {
	next   cqrs.Publisher
	calls  atomic.Int32
	second chan struct{}
}

func (p *reorderingPublisher) Publish(ctx context.Context, events ...es.Envelope) error {
	if p.calls.Add(1) == 1 {
		<-p.second
		return p.next.Publish(ctx, events...)
	}
	defer close(p.second)
	return p.next.Publish(ctx, events...)
}

func TestDispatch_ConcurrentDepositsReachProjectionOutOfOrder(t *testing.T) {
	store := newBarrierStore(2)
	reg := es.NewRegistry()
	b := bus.New(bus.WithDecoder(reg))
	pub := &reorderingPublisher{next: b, second: make(chan struct{})}
	d := newDispatcher(t, store, pub, cqrs.WithRegistry(reg), cqrs.WithRetry(retry.Policy{MaxAttempts: 3}))
	balances := balanceProjection(t)
	require.NoError(t, b.Subscribe(balances.Name(), balances))

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Dispatch(t.Context(), deposit{ID: "a1", Amount: 50})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Equal(t, 100, balances.State()["a1"])
	require.Equal(t, es.Version(2), balances.StreamVersion(es.NewStreamID("account", "a1")))
	require.Zero(t, balances.Pending())
	require.Zero(t, b.DeadLetters().Len())
}

// conflictStore rejects every append with a conflict.
type conflictStore struct {
	*es.InMemoryStore
	appends atomic.Int32
}

func (s *conflictStore) Append(_ context.Context, stream es.StreamID, expected es.Version, _ []es.Envelope) (*es.AppendResult, error) {
	s.appends.Add(1)
	return nil, &es.ConflictError{Stream: stream, Expected: expected, Actual: expected + 1}
}

func TestDispatch_RetriesExhausted(t *testing.T) {
	store := &conflictStore{InMemoryStore: es.NewInMemoryStore()}
	pub := &publisher{}
	d := newDispatcher(t, store, pub, cqrs.WithRetry(retry.Policy{MaxAttempts: 3}))

	res, err := d.Dispatch(t.Context(), deposit{ID: "a1", Amount: 1})
	require.ErrorIs(t, err, cqrs.ErrRetriesExhausted)
	require.ErrorIs(t, err, es.ErrConcurrencyConflict)
	require.Equal(t, cqrs.Conflicted, res.Outcome)
	require.Equal(t, cqrs.StageDecided, res.Stage)
	require.Equal(t, 3, res.Attempts)
	require.Equal(t, int32(3), store.appends.Load())
	require.Zero(t, pub.len())
}

func TestDispatch_NoRetry(t *testing.T) {
	store := &conflictStore{InMemoryStore: es.NewInMemoryStore()}
	d := newDispatcher(t, store, nil, cqrs.WithRetry(retry.NoRetry()))

	res, err := d.Dispatch(t.Context(), deposit{ID: "a1", Amount: 1})
	require.ErrorIs(t, err, cqrs.ErrRetriesExhausted)
	require.Equal(t, cqrs.Conflicted, res.Outcome)
	require.Equal(t, 1, res.Attempts)
}

// faultyStore fails appends with an I/O error.
type faultyStore struct {
	*es.InMemoryStore
}

var errDisk = errors.New("disk on fire")

func (faultyStore) Append(context.Context, es.StreamID, es.Version, []es.Envelope) (*es.AppendResult, error) {
	return nil, errDisk
}

func TestDispatch_StoreFault(t *testing.T) {
	pub := &publisher{}
	d := newDispatcher(t, faultyStore{es.NewInMemoryStore()}, pub)

	res, err := d.Dispatch(t.Context(), deposit{ID: "a1", Amount: 1})
	require.ErrorIs(t, err, es.ErrStoreFault)
	require.ErrorIs(t, err, errDisk)
	require.Equal(t, cqrs.Failed, res.Outcome)
	require.Equal(t, 1, res.Attempts, "faults are not retried")
	require.Zero(t, pub.len())
}

func TestDispatch_CancelledBeforeCommit(t *testing.T) {
	store := es.NewInMemoryStore()
	pub := &publisher{}
	d := newDispatcher(t, store, pub)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	res, err := d.Dispatch(ctx, deposit{ID: "a1", Amount: 1})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, cqrs.Failed, res.Outcome)
	require.Zero(t, pub.len())
	require.Zero(t, store.LastSeq())
}

func TestDispatch_RejectionIsSideEffectFree(t *testing.T) {
	store := es.NewInMemoryStore()
	pub := &publisher{}
	d := newDispatcher(t, store, pub)

	_, err := d.Dispatch(t.Context(), deposit{ID: "a1", Amount: 5})
	require.NoError(t, err)
	seq := store.LastSeq()

	for _, cmd := range []es.Command{
		withdraw{ID: "a1", Amount: 6},
		deposit{ID: "a1", Amount: -1},
		withdraw{ID: "a2", Amount: 1},
	} {
		res, err := d.Dispatch(t.Context(), cmd)
		require.ErrorIs(t, err, es.ErrDomainRejection)
		require.Equal(t, cqrs.Rejected, res.Outcome)
	}
	require.Equal(t, seq, store.LastSeq())
	require.Equal(t, 1, pub.len())

	res, err := d.Dispatch(t.Context(), deposit{ID: "a1", Amount: 0})
	require.Error(t, err)
	reason, _ := es.RejectionReason(err)
	require.Equal(t, "positive_amount", reason)
	require.Equal(t, es.Version(1), res.Version)
}

func TestDispatch_NoEvents(t *testing.T) {
	pub := &publisher{}
	d := newDispatcher(t, es.NewInMemoryStore(), pub)

	res, err := d.Dispatch(t.Context(), noop{ID: "a1"})
	require.NoError(t, err)
	require.Equal(t, cqrs.Committed, res.Outcome)
	require.Equal(t, es.Version(0), res.Version)
	require.Empty(t, res.Events)
	require.Zero(t, pub.len())
}

func TestDispatch_PublishFailureDoesNotFailCommand(t *testing.T) {
	pub := &publisher{err: bus.ErrBusClosed}
	d := newDispatcher(t, es.NewInMemoryStore(), pub)

	res, err := d.Dispatch(t.Context(), deposit{ID: "a1", Amount: 1})
	require.NoError(t, err)
	require.Equal(t, cqrs.Committed, res.Outcome)
	require.Equal(t, 1, pub.len())
}

type trackedDeposit struct {
	deposit
	id string
	md es.Metadata
}

func (c trackedDeposit) CommandID() string     { return c.id }
func (c trackedDeposit) Metadata() es.Metadata { return c.md }

func TestDispatch_Metadata(t *testing.T) {
	pub := &publisher{}
	d := newDispatcher(t, es.NewInMemoryStore(), pub)

	ctx := cqrs.WithCorrelationID(t.Context(), "corr-1")
	res, err := d.Dispatch(ctx, deposit{ID: "a1", Amount: 1, CmdID: "cmd-1", Meta: es.Metadata{"tenant": "acme"}})
	require.NoError(t, err)
	require.Equal(t, "corr-1", res.CorrelationID)

	md := res.Envelopes[0].Metadata
	require.Equal(t, "corr-1", md.CorrelationID())
	require.Equal(t, "cmd-1", md.CausationID())
	require.Equal(t, "account.deposit", md[es.MetaCommandType])
	require.Equal(t, "acme", md["tenant"])
	require.Empty(t, md.TraceID())

	res, err = d.Dispatch(t.Context(), deposit{ID: "a1", Amount: 1})
	require.NoError(t, err)
	require.NotEmpty(t, res.CorrelationID)
	require.NotEqual(t, "corr-1", res.CorrelationID)
	require.NotEmpty(t, res.Envelopes[0].Metadata.CausationID())
}

func TestDispatch_TraceID(t *testing.T) {
	store := es.NewInMemoryStore()
	d := newDispatcher(t, store, nil)
	ctx := cqrs.WithTraceID(t.Context(), "trace-ctx")

	res, err := d.Dispatch(ctx, deposit{ID: "a1", Amount: 1})
	require.NoError(t, err)
	require.Equal(t, "trace-ctx", res.Envelopes[0].Metadata.TraceID())

	res, err = d.Dispatch(ctx, deposit{ID: "a1", Amount: 1, Meta: es.Metadata{es.MetaTraceID: "trace-cmd"}})
	require.NoError(t, err)
	require.Equal(t, "trace-cmd", res.Envelopes[0].Metadata.TraceID())

	envs, err := es.LoadAll(t.Context(), store, res.Stream)
	require.NoError(t, err)
	require.Len(t, envs, 2)
	require.Equal(t, "trace-ctx", envs[0].Metadata.TraceID())
	require.Equal(t, "trace-cmd", envs[1].Metadata.TraceID())
}

func TestDispatch_InvalidCommands(t *testing.T) {
	d := newDispatcher(t, es.NewInMemoryStore(), nil)

	_, err := d.Dispatch(t.Context(), nil)
	require.ErrorIs(t, err, cqrs.ErrInvalidCommand)

	_, err = d.Dispatch(t.Context(), deposit{Amount: 1})
	require.ErrorIs(t, err, cqrs.ErrInvalidCommand)

	_, err = d.Dispatch(t.Context(), domain.Increment{ID: "c1", By: 1})
	require.ErrorIs(t, err, cqrs.ErrUnknownCommand)
}

func TestRegister(t *testing.T) {
	d := cqrs.NewDispatcher(es.NewInMemoryStore(), nil)
	require.NoError(t, cqrs.Register[account](d, accountAgg, openAccount{}, deposit{}))
	require.NoError(t, cqrs.Register[account](d, accountAgg, withdraw{}), "more commands for a known aggregate")
	require.NoError(t, cqrs.Register[domain.Counter](d, domain.CounterAgg{}, domain.Increment{}, domain.Reset{}))

	require.ErrorIs(t, cqrs.Register[account](d, accountAgg, deposit{}), cqrs.ErrDuplicateRoute)
	require.ErrorIs(t, cqrs.Register[account](d, accountAgg, noop{}, noop{}), cqrs.ErrDuplicateRoute)
	require.ErrorIs(t, cqrs.Register[account](d, accountAgg), cqrs.ErrInvalidCommand)

	impostor := accountAgg
	impostor.EventDefs = []es.EventDef{es.Event[deposited]()}
	require.ErrorIs(t, cqrs.Register[account](d, impostor, closeAccount{}), cqrs.ErrAggregateClash)
	require.ErrorIs(t, cqrs.Register[domain.Counter](d, es.AggregateFuncs[domain.Counter]{Name: "account"}, closeAccount{}), cqrs.ErrAggregateClash)
	require.NotContains(t, d.CommandTypes(), "account.close")

	assert.ElementsMatch(t, []string{"account.open", "account.deposit", "account.withdraw", "counter.increment", "counter.reset"}, d.CommandTypes())
	assert.True(t, d.Registry().Has("counter.incremented"))
	assert.True(t, d.Registry().Has("account.deposited"))

	res, err := d.Dispatch(t.Context(), domain.Increment{ID: "c1", By: 2})
	require.NoError(t, err)
	require.Equal(t, domain.Counter{Value: 2, Increments: 1}, res.State)
}

func TestDispatch_Snapshots(t *testing.T) {
	store := es.NewInMemoryStore()
	snaps := es.NewInMemorySnapshotter(nil)
	d := newDispatcher(t, store, nil, cqrs.WithRepositoryOptions(es.WithSnapshotter(snaps), es.WithSnapshotEvery(2)))

	for range 3 {
		_, err := d.Dispatch(t.Context(), deposit{ID: "a1", Amount: 10})
		require.NoError(t, err)
	}
	s, err := snaps.LoadSnapshot(t.Context(), es.NewStreamID("account", "a1"))
	require.NoError(t, err)
	require.Equal(t, es.Version(2), s.ObjVersion)

	state, _, err := cqrs.DispatchTyped[account](t.Context(), d, noop{ID: "a1"})
	require.NoError(t, err)
	require.Equal(t, 30, state.Balance)
}

func TestOutcomeAndStageStrings(t *testing.T) {
	assert.Equal(t, "committed", cqrs.Committed.String())
	assert.Equal(t, "rejected", cqrs.Rejected.String())
	assert.Equal(t, "conflicted", cqrs.Conflicted.String())
	assert.Equal(t, "failed", cqrs.Failed.String())
	assert.Equal(t, "decided", cqrs.StageDecided.String())
}
