// Package cqrs routes commands to aggregates and commits their events.
//
// A [Dispatcher] is configured once with the aggregates it serves:
//
//	d := cqrs.NewDispatcher(store, b, cqrs.WithLog(log))
//	err := cqrs.Register(d, account.Aggregate{}, account.Open{}, account.Deposit{}, account.Withdraw{})
//
// Each [Dispatcher.Dispatch] loads the aggregate from the store, lets it
// decide, and appends the resulting events with the loaded version as the
// expected version. A concurrency conflict reloads and decides again, up to
// the retry budget. Committed events are then published to the bus.
//
// The outcome is reported in [Result]: Committed, Rejected (the aggregate
// refused the command), Conflicted (retry budget exhausted) or Failed.
package cqrs
