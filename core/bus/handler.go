package bus

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

type (
	Handler interface {
		Handle(msg *Msg) error
	}
	// Shutdowner is implemented by handlers that release resources when
	// the bus closes.
	Shutdowner interface {
		Shutdown(ctx context.Context) error
	}
	HandleFunc           func(msg *Msg) error
	Middleware           func(next Handler) Handler
	MiddlewareHandleFunc func(msg *Msg, next Handler) error
)

func (f HandleFunc) Handle(msg *Msg) error { return f(msg) }

// Typed adapts a handler for one event type. Events of other types are
// ignored.
func Typed[E any](fn func(msg *Msg, event E) error) HandleFunc {
	return func(msg *Msg) error {
		ev, ok := msg.Event().(E)
		if !ok {
			return nil
		}
		return fn(msg, ev)
	}
}

func applyMiddlewares(h Handler, middlewares []Middleware) Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

type middleware struct {
	next Handler
	mw   MiddlewareHandleFunc
}

func (m *middleware) Handle(msg *Msg) error { return m.mw(msg, m.next) }

func MiddlewareHandle(mw MiddlewareHandleFunc) Middleware {
	return func(next Handler) Handler { return &middleware{next: next, mw: mw} }
}

// === log ===

func NewLogMiddleware(attrs ...any) Middleware {
	return MiddlewareHandle(func(msg *Msg, next Handler) error {
		start := time.Now()
		log := msg.Log().With(attrs...)

		err := next.Handle(msg)
		if err != nil {
			log.Error("failed", slog.Any("error", err), slog.Int("attempt", msg.Attempt()), slog.Duration("duration", time.Since(start)))
		} else {
			log.Debug("handled", slog.Duration("duration", time.Since(start)))
		}
		return err
	})
}

// === recover ===

// PanicError is a recovered handler panic.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string { return fmt.Sprintf("handler panic: %v", e.Value) }

// NewRecoverMiddleware turns panics into *PanicError. The bus always
// recovers handlers; use this to recover closer to the handler, e.g.
// below a checkpoint middleware.
func NewRecoverMiddleware() Middleware {
	return MiddlewareHandle(func(msg *Msg, next Handler) error {
		return safeHandle(next, msg)
	})
}

func safeHandle(h Handler, msg *Msg) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: string(debug.Stack())}
		}
	}()
	return h.Handle(msg)
}

// === checkpoint ===

type checkpointHandler struct {
	mu sync.Mutex
	cp CpStore
	h  Handler
}

func (c *checkpointHandler) Handle(msg *Msg) error {
	if msg.Replay() {
		lastSeq, err := c.cp.Get(msg.Context())
		if err != nil {
			return err
		}
		if msg.Seq() <= lastSeq {
			msg.Log().Debug("skip", slog.Uint64("checkpoint", lastSeq), slog.String("middleware", "checkpoint"))
			return nil
		}
	}
	if err := c.h.Handle(msg); err != nil {
		return err
	}
	return c.advance(msg)
}

func (c *checkpointHandler) advance(msg *Msg) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	lastSeq, err := c.cp.Get(msg.Context())
	if err != nil {
		return err
	}
	if msg.Seq() <= lastSeq {
		return nil
	}
	return c.cp.Set(msg.Context(), msg.Seq())
}

// NewCheckpointMiddleware records the highest delivered global sequence.
// During Replay, events at or below it are skipped, so a catch-up resumes
// where the last one stopped. Live deliveries are never skipped: the bus
// does not order publishes of different streams by sequence.
func NewCheckpointMiddleware(cp CpStore) Middleware {
	return func(h Handler) Handler { return &checkpointHandler{cp: cp, h: h} }
}
