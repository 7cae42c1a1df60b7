// Package sf is a generic wrapper around golang.org/x/sync/singleflight.
//
// Concurrent calls to [Group.Do] with the same key share one execution of
// fn; every caller receives the same result.
//
//	var g sf.Group[*Snapshot]
//	snap, err := g.Do("account:42", func() (*Snapshot, error) {
//	    return loadSnapshot(ctx, "account", "42")
//	})
package sf
