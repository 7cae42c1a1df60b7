package bus

import (
	"log/slog"

	"github.com/codewandler/axon-go/core/es"
	"github.com/codewandler/axon-go/core/retry"
)

type (
	valueOption[T any] struct{ v T }

	LogOption         valueOption[*slog.Logger]
	MetricsOption     valueOption[Metrics]
	DecoderOption     valueOption[es.Decoder]
	QueuedOption      valueOption[int]
	RedeliveryOption  valueOption[retry.Policy]
	DeadLetterOption  valueOption[DeadLetterSink]
	FilterOption      valueOption[[]Filter]
	MiddlewaresOption valueOption[[]Middleware]

	busOptions struct {
		log        *slog.Logger
		metrics    Metrics
		decoder    es.Decoder
		queueSize  int
		redelivery retry.Policy
		deadLetter DeadLetterSink
	}
	Option interface{ applyToBus(*busOptions) }

	subscribeOptions struct {
		filters     []Filter
		middlewares []Middleware
	}
	SubscribeOption interface{ applyToSubscribe(*subscribeOptions) }
)

func WithLog(l *slog.Logger) LogOption       { return LogOption{v: l} }
func WithMetrics(m Metrics) MetricsOption    { return MetricsOption{v: m} }
func WithDecoder(d es.Decoder) DecoderOption { return DecoderOption{v: d} }

// WithRedelivery sets how often a failing handler is retried before the
// event is dead-lettered (default: 3 attempts).
func WithRedelivery(p retry.Policy) RedeliveryOption { return RedeliveryOption{v: p} }

// WithQueued delivers asynchronously through a per-subscriber queue of size.
func WithQueued(size int) QueuedOption { return QueuedOption{v: size} }

// WithDeadLetters replaces the default in-memory dead-letter queue.
func WithDeadLetters(sink DeadLetterSink) DeadLetterOption { return DeadLetterOption{v: sink} }

func WithFilter(filters ...Filter) FilterOption { return FilterOption{v: filters} }
func WithMiddlewares(mws ...Middleware) MiddlewaresOption {
	return MiddlewaresOption{v: mws}
}

func (o LogOption) applyToBus(opts *busOptions)        { opts.log = o.v }
func (o MetricsOption) applyToBus(opts *busOptions)    { opts.metrics = o.v }
func (o DecoderOption) applyToBus(opts *busOptions)    { opts.decoder = o.v }
func (o QueuedOption) applyToBus(opts *busOptions)     { opts.queueSize = o.v }
func (o RedeliveryOption) applyToBus(opts *busOptions) { opts.redelivery = o.v }
func (o DeadLetterOption) applyToBus(opts *busOptions) { opts.deadLetter = o.v }

func (o FilterOption) applyToSubscribe(opts *subscribeOptions) {
	opts.filters = append(opts.filters, o.v...)
}
func (o MiddlewaresOption) applyToSubscribe(opts *subscribeOptions) {
	opts.middlewares = append(opts.middlewares, o.v...)
}
