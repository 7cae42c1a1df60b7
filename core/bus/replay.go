package bus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codewandler/axon-go/core/es"
)

// Replay feeds every stored event after afterSeq to h in global order. The
// first handler error stops the replay; the returned sequence is the last
// one handled or filtered out. Messages carry Replay() == true.
func Replay(ctx context.Context, reader es.AllReader, h Handler, afterSeq uint64, opts ...ReplayOption) (uint64, error) {
	options := replayOptions{log: slog.Default()}
	for _, opt := range opts {
		opt.applyToReplay(&options)
	}
	log := options.log.With(slog.String("component", "replay"))

	last := afterSeq
	n := 0
	for env, err := range reader.ReadAll(ctx, afterSeq) {
		if err != nil {
			return last, fmt.Errorf("replay after %d: %w", last, err)
		}
		if !matchAll(env, options.filters) {
			last = env.Seq
			continue
		}
		var event any
		if options.decoder != nil {
			if event, err = options.decoder.Decode(env); err != nil {
				return last, fmt.Errorf("replay seq %d: %w", env.Seq, err)
			}
		}
		msg := newMsg(ctx, log, options.name, env, event)
		msg.replay = true
		msg.attempt = 1
		if err := safeHandle(h, msg); err != nil {
			return last, fmt.Errorf("replay seq %d: %w", env.Seq, err)
		}
		last = env.Seq
		n++
	}
	log.Debug("replayed", slog.Int("events", n), slog.Uint64("last_seq", last))
	return last, nil
}

type (
	replayOptions struct {
		log     *slog.Logger
		decoder es.Decoder
		filters []Filter
		name    string
	}
	ReplayOption interface{ applyToReplay(*replayOptions) }
	NameOption   valueOption[string]
)

// WithName sets the subscriber name reported by replayed messages.
func WithName(name string) NameOption { return NameOption{v: name} }

func (o NameOption) applyToReplay(opts *replayOptions)    { opts.name = o.v }
func (o LogOption) applyToReplay(opts *replayOptions)     { opts.log = o.v }
func (o DecoderOption) applyToReplay(opts *replayOptions) { opts.decoder = o.v }
func (o FilterOption) applyToReplay(opts *replayOptions) {
	opts.filters = append(opts.filters, o.v...)
}
