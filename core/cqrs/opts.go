package cqrs

import (
	"log/slog"

	"github.com/codewandler/axon-go/core/es"
	"github.com/codewandler/axon-go/core/retry"
)

type (
	valueOption[T any] struct{ v T }

	LogOption         valueOption[*slog.Logger]
	MetricsOption     valueOption[Metrics]
	RetryOption       valueOption[retry.Policy]
	RepoOptionsOption valueOption[[]es.RepositoryOption]
	IDGeneratorOption valueOption[func() string]
	RegistryOption    valueOption[*es.EventRegistry]

	dispatcherOptions struct {
		log      *slog.Logger
		metrics  Metrics
		retry    retry.Policy
		repoOpts []es.RepositoryOption
		newID    func() string
		registry *es.EventRegistry
	}
	Option interface{ applyToDispatcher(*dispatcherOptions) }
)

func WithLog(l *slog.Logger) LogOption    { return LogOption{v: l} }
func WithMetrics(m Metrics) MetricsOption { return MetricsOption{v: m} }

// WithRetry sets the budget for concurrency conflicts. Only conflicts are
// retried; the policy's ShouldRetry is ignored.
func WithRetry(p retry.Policy) RetryOption { return RetryOption{v: p} }

// WithRepositoryOptions passes options to every repository the dispatcher
// creates, e.g. es.WithSnapshotter.
func WithRepositoryOptions(opts ...es.RepositoryOption) RepoOptionsOption {
	return RepoOptionsOption{v: opts}
}

// WithRegistry makes the dispatcher register aggregate events in reg, e.g.
// a registry that is also the bus decoder.
func WithRegistry(reg *es.EventRegistry) RegistryOption { return RegistryOption{v: reg} }

// WithIDGenerator sets the generator for command and correlation ids.
func WithIDGenerator(f func() string) IDGeneratorOption { return IDGeneratorOption{v: f} }

func (o LogOption) applyToDispatcher(opts *dispatcherOptions)     { opts.log = o.v }
func (o MetricsOption) applyToDispatcher(opts *dispatcherOptions) { opts.metrics = o.v }
func (o RetryOption) applyToDispatcher(opts *dispatcherOptions)   { opts.retry = o.v }
func (o RepoOptionsOption) applyToDispatcher(opts *dispatcherOptions) {
	opts.repoOpts = append(opts.repoOpts, o.v...)
}
func (o IDGeneratorOption) applyToDispatcher(opts *dispatcherOptions) { opts.newID = o.v }
func (o RegistryOption) applyToDispatcher(opts *dispatcherOptions)    { opts.registry = o.v }
