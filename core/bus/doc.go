// Package bus delivers committed events to subscribers such as projections.
//
// A [Bus] is an explicit component with a lifecycle: subscribers are
// registered while wiring, events are published only after they were
// committed to the store, and [Bus.Close] drains pending deliveries.
//
//	b := bus.New(bus.WithLog(log), bus.WithDecoder(registry), bus.WithQueued(256))
//	_ = b.Subscribe("balances", balances, bus.WithFilter(bus.ForAggregateType("account")))
//	...
//	defer b.Close(ctx)
//
// # Delivery
//
// Every subscriber receives the events of one Publish call in order. In
// the default synchronous mode Publish delivers inline, one subscriber after
// the other. In queued mode every subscriber has its own FIFO queue and
// Publish only enqueues.
//
// # Failures
//
// Handlers are isolated from each other and from the publisher: errors and
// panics are retried according to the redelivery policy, then handed to the
// dead-letter sink. Nothing is dropped silently and no handler failure is
// returned to the publisher.
//
// # Registration
//
// Subscribing after the first Publish fails with [ErrSubscribeAfterPublish].
// A late subscriber can catch up with [Replay] before it goes live.
package bus
