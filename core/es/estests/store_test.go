package estests

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/axon-go/core/es"
	"github.com/codewandler/axon-go/core/es/estests/domain"
)

func newRegistry(t *testing.T) *es.EventRegistry {
	t.Helper()
	reg := es.NewRegistry()
	require.NoError(t, es.RegisterEvents(reg, domain.CounterAgg{}.Events()...))
	return reg
}

func TestStore_AppendAndRead(t *testing.T) {
	var (
		s      = es.NewInMemoryStore()
		reg    = newRegistry(t)
		stream = es.NewStreamID(domain.AggType, "c1")
	)

	v, err := s.Version(t.Context(), stream)
	require.NoError(t, err)
	require.Equal(t, es.Version(0), v)

	res, err := es.AppendEvents(t.Context(), s, reg, stream, 0, domain.Incremented{By: 1}, domain.Incremented{By: 2})
	require.NoError(t, err)
	require.Equal(t, es.Version(2), res.Version)
	require.Equal(t, uint64(1), res.FirstSeq)
	require.Equal(t, uint64(2), res.LastSeq)

	res, err = es.AppendEvents(t.Context(), s, reg, stream, 2, domain.WasReset{})
	require.NoError(t, err)
	require.Equal(t, es.Version(3), res.Version)

	loaded, err := es.LoadAll(t.Context(), s, stream)
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	for i, e := range loaded {
		require.Equal(t, uint64(i), e.SequenceNumber())
		require.Equal(t, es.Version(i+1), e.Version)
		require.Equal(t, stream, e.Stream())
	}
	require.Equal(t, "counter.reset", loaded[2].Type)

	after, err := es.LoadAll(t.Context(), s, stream, es.WithAfterVersion(2))
	require.NoError(t, err)
	require.Len(t, after, 1)
	require.Equal(t, es.Version(3), after[0].Version)

	none, err := es.LoadAll(t.Context(), s, es.NewStreamID(domain.AggType, "unknown"))
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestStore_Conflict(t *testing.T) {
	var (
		s      = es.NewInMemoryStore()
		reg    = newRegistry(t)
		stream = es.NewStreamID(domain.AggType, "c1")
	)
	_, err := es.AppendEvents(t.Context(), s, reg, stream, 0, domain.Incremented{By: 1})
	require.NoError(t, err)

	_, err = es.AppendEvents(t.Context(), s, reg, stream, 0, domain.Incremented{By: 1})
	require.ErrorIs(t, err, es.ErrConcurrencyConflict)

	var ce *es.ConflictError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, es.Version(0), ce.Expected)
	require.Equal(t, es.Version(1), ce.Actual)

	v, err := s.Version(t.Context(), stream)
	require.NoError(t, err)
	require.Equal(t, es.Version(1), v)
}

func TestStore_AppendIsAllOrNothing(t *testing.T) {
	var (
		s      = es.NewInMemoryStore()
		reg    = newRegistry(t)
		stream = es.NewStreamID(domain.AggType, "c1")
	)
	envs, err := es.NewEnvelopes(reg, stream, 0, nil, domain.Incremented{By: 1}, domain.Incremented{By: 2})
	require.NoError(t, err)
	envs[1].Data = []byte("{not json")

	_, err = s.Append(t.Context(), stream, 0, envs)
	require.ErrorIs(t, err, es.ErrStoreFault)

	v, err := s.Version(t.Context(), stream)
	require.NoError(t, err)
	require.Equal(t, es.Version(0), v)
	require.Equal(t, uint64(0), s.LastSeq())

	_, err = s.Append(t.Context(), stream, 0, nil)
	require.ErrorIs(t, err, es.ErrNoEvents)
}

func TestStore_UnregisteredEventIsRejected(t *testing.T) {
	type Unknown struct{}
	s := es.NewInMemoryStore()
	_, err := es.AppendEvents(t.Context(), s, newRegistry(t), es.NewStreamID(domain.AggType, "c1"), 0, Unknown{})
	require.ErrorIs(t, err, es.ErrUnknownEventType)
	require.ErrorIs(t, err, es.ErrStoreFault)
	require.Equal(t, uint64(0), s.LastSeq())
}

// Concurrent appends with the same expected version: exactly one wins,
// the stream never has gaps or duplicates.
func TestStore_ConcurrentAppendAtomicity(t *testing.T) {
	var (
		s       = es.NewInMemoryStore()
		reg     = newRegistry(t)
		stream  = es.NewStreamID(domain.AggType, "c1")
		workers = 16
		rounds  = 20
	)

	for round := range rounds {
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
		)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := es.AppendEvents(t.Context(), s, reg, stream, es.Version(round*2),
					domain.Incremented{By: 1}, domain.Incremented{By: 1})
				if err == nil {
					mu.Lock()
					successes++
					mu.Unlock()
					return
				}
				assert.ErrorIs(t, err, es.ErrConcurrencyConflict)
			}()
		}
		wg.Wait()
		require.Equal(t, 1, successes, "round %d", round)
	}

	loaded, err := es.LoadAll(t.Context(), s, stream)
	require.NoError(t, err)
	require.Len(t, loaded, rounds*2)
	for i, e := range loaded {
		require.Equal(t, es.Version(i+1), e.Version)
	}
}

func TestStore_GlobalOrderAcrossStreams(t *testing.T) {
	var (
		s   = es.NewInMemoryStore()
		reg = newRegistry(t)
		wg  sync.WaitGroup
	)
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stream := es.NewStreamID(domain.AggType, fmt.Sprintf("c%d", i))
			for v := range 5 {
				_, err := es.AppendEvents(t.Context(), s, reg, stream, es.Version(v), domain.Incremented{By: 1})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	var (
		lastSeq  uint64
		versions = map[es.StreamID]es.Version{}
	)
	for e, err := range s.ReadAll(t.Context(), 0) {
		require.NoError(t, err)
		require.Equal(t, lastSeq+1, e.Seq)
		lastSeq = e.Seq
		require.Equal(t, versions[e.Stream()]+1, e.Version)
		versions[e.Stream()] = e.Version
	}
	require.Equal(t, uint64(40), lastSeq)
	require.Len(t, s.Streams(), 8)

	var tail int
	for _, err := range s.ReadAll(t.Context(), 35) {
		require.NoError(t, err)
		tail++
	}
	require.Equal(t, 5, tail)
}

func TestStore_ReadIsLazyAndImmutable(t *testing.T) {
	var (
		s      = es.NewInMemoryStore()
		reg    = newRegistry(t)
		stream = es.NewStreamID(domain.AggType, "c1")
	)
	_, err := es.AppendEvents(t.Context(), s, reg, stream, 0, domain.Incremented{By: 1}, domain.Incremented{By: 2})
	require.NoError(t, err)

	n := 0
	for e, err := range s.Read(t.Context(), stream) {
		require.NoError(t, err)
		e.Data[0] = 'X'
		n++
		break
	}
	require.Equal(t, 1, n)

	loaded, err := es.LoadAll(t.Context(), s, stream)
	require.NoError(t, err)
	require.JSONEq(t, `{"by":1}`, string(loaded[0].Data))
}

func TestStore_ReadCancelled(t *testing.T) {
	s := es.NewInMemoryStore()
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := es.LoadAll(ctx, s, es.NewStreamID(domain.AggType, "c1"))
	require.ErrorIs(t, err, context.Canceled)
}
