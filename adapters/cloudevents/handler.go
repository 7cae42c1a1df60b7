package cloudevents

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudevents/sdk-go/v2/binding"
	"github.com/cloudevents/sdk-go/v2/protocol"

	"github.com/codewandler/axon-go/core/bus"
)

type HandlerOpts struct {
	// Source is the CloudEvents source attribute (default DefaultSource).
	Source string
	Log    *slog.Logger
}

// Handler forwards bus deliveries to a CloudEvents protocol sender, e.g.
// an HTTP or broker binding. A NACK is returned as an error so the bus
// redelivers or dead-letters the event.
type Handler struct {
	sender protocol.Sender
	source string
	log    *slog.Logger
}

func NewHandler(sender protocol.Sender, opts HandlerOpts) *Handler {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		sender: sender,
		source: opts.Source,
		log:    log.With(slog.String("component", "cloudevents")),
	}
}

func (h *Handler) Handle(msg *bus.Msg) error {
	e, err := ToCloudEvent(msg.Envelope(), h.source)
	if err != nil {
		return err
	}
	result := h.sender.Send(msg.Context(), binding.ToMessage(e))
	if !protocol.IsACK(result) {
		return fmt.Errorf("send %s: %w", e.ID(), result)
	}
	h.log.Debug("sent", slog.String("id", e.ID()), slog.String("type", e.Type()))
	return nil
}

// Shutdown closes the sender if it is a protocol.Closer.
func (h *Handler) Shutdown(ctx context.Context) error {
	if c, ok := h.sender.(protocol.Closer); ok {
		return c.Close(ctx)
	}
	return nil
}

var (
	_ bus.Handler    = (*Handler)(nil)
	_ bus.Shutdowner = (*Handler)(nil)
)
