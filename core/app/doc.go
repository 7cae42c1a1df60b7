// Package app wires an event store, a bus and a command dispatcher into one
// component with a lifecycle.
//
// # Basic Usage
//
//	a, err := app.New(app.Config{Log: log},
//	    app.Aggregate[account.State](account.Aggregate{}, account.Open{}, account.Deposit{}),
//	    app.Projection("balances", balances),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer a.Shutdown(ctx)
//
//	res, err := a.Dispatch(ctx, account.Deposit{ID: "acc-1", Amount: 100})
//
// # Registrations
//
// Aggregates and subscribers are registered in New, before anything is
// published. [Projection] first replays the stored history into the handler
// and then subscribes it, so read models built over a persistent store are
// complete before the first command.
//
// # Configuration
//
// Every Config field is optional. Without a Store the app uses an
// [es.InMemoryStore]; without a Snapshotter no snapshots are taken. Bus
// delivery is synchronous unless Bus.QueueSize is set.
//
// # Shutdown
//
// [App.Shutdown] drains the bus and cancels the app context. It is safe to
// call more than once.
package app
