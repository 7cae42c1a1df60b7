// Package es provides the event sourcing core: events and their envelopes,
// the aggregate abstraction, an append-only event store with optimistic
// concurrency, and a generic repository with optional snapshots.
//
// # Aggregates
//
// An aggregate is a pure state machine over a value type S. It has an
// initial state, folds events onto a state with Apply, and turns a command
// plus the current state into new events with Decide:
//
//	type Account struct{ Open bool; Balance int64 }
//
//	func (accountAgg) Decide(s Account, cmd es.Command) ([]any, error) {
//	    switch c := cmd.(type) {
//	    case Withdraw:
//	        if err := es.Require(assert.GTE(s.Balance, c.Amount, "sufficient_funds")); err != nil {
//	            return nil, err
//	        }
//	        return []any{Withdrawn{Amount: c.Amount}}, nil
//	    }
//	    return nil, es.Reject("unsupported command %s", cmd.CommandType())
//	}
//
// Decide never mutates state and never performs I/O. A business rule
// violation is reported as a rejection (see [Reject] and [Require]) which
// matches [ErrDomainRejection].
//
// # Event Store
//
// [EventStore.Append] appends a batch to a stream only if the stream is at
// the expected version, atomically: either every event is stored with
// consecutive versions or nothing is. [EventStore.Read] iterates a stream
// lazily in version order. [NewInMemoryStore] is the in-process store.
//
// # Repository
//
// [Repository] rehydrates a [Root] by replaying its stream, optionally
// seeded by a snapshot, and persists newly decided events:
//
//	repo, _ := es.NewRepository[Account](accountAgg{}, store)
//	root, _ := repo.Load(ctx, "acc-1")
//	events, err := accountAgg{}.Decide(root.State, Withdraw{Amount: 10})
//	res, err := repo.Save(ctx, root, events)
//
// # Events
//
// Events are plain values registered once per aggregate via [Event]. The
// type tag defaults to "pkg.TypeName" and can be overridden by an
// EventType() string method. Events are applied in their decoded form,
// so the state returned by Save always equals the state a later Load
// rebuilds.
//
// # Snapshots
//
// Snapshots are derived data and never authoritative. A snapshot that is
// missing, has a bad checksum, an unknown encoding or another schema
// version is ignored and the stream is replayed from the start.
package es
