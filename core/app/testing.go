package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/axon-go/core/cqrs"
	"github.com/codewandler/axon-go/core/es"
)

// TestApp is an App bound to a test.
type TestApp struct {
	*App
	t *testing.T
}

// StartTest creates an app that is shut down when the test ends.
func StartTest(t *testing.T, config Config, registrations ...Registration) *TestApp {
	t.Helper()
	a, err := New(config, registrations...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, a.Shutdown(ctx))
	})
	return &TestApp{App: a, t: t}
}

func (ta *TestApp) Assert() *TestAppAssert { return &TestAppAssert{app: ta} }

type TestAppAssert struct {
	app *TestApp
}

// Committed dispatches cmd and fails the test unless it commits.
func (a *TestAppAssert) Committed(cmd es.Command) *cqrs.Result {
	a.app.t.Helper()
	res, err := a.app.Dispatch(a.app.t.Context(), cmd)
	require.NoError(a.app.t, err)
	require.Equal(a.app.t, cqrs.Committed, res.Outcome)
	return res
}

// Rejected dispatches cmd and fails the test unless it is rejected for
// reason.
func (a *TestAppAssert) Rejected(cmd es.Command, reason string) *cqrs.Result {
	a.app.t.Helper()
	res, err := a.app.Dispatch(a.app.t.Context(), cmd)
	require.ErrorIs(a.app.t, err, es.ErrDomainRejection)
	got, _ := es.RejectionReason(err)
	require.Equal(a.app.t, reason, got)
	require.Equal(a.app.t, cqrs.Rejected, res.Outcome)
	return res
}

// Version fails the test unless the stream is at v.
func (a *TestAppAssert) Version(stream es.StreamID, v es.Version) {
	a.app.t.Helper()
	got, err := a.app.Store().Version(a.app.t.Context(), stream)
	require.NoError(a.app.t, err)
	require.Equal(a.app.t, v, got)
}
