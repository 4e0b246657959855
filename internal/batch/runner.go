// Package batch turns a template library into sealed bundles and hands them to sinks.
//
// Templates are built independently: a failure is recorded against its template and the batch
// carries on. A bundle reaches the sinks only once it is fully sealed and linked, so a sink never
// sees a partial triple.
package batch

import (
	"context"
	"fmt"
	"sync"

	"github.com/dyluth/microbundle/pkg/gep"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Sink receives every successfully built bundle.
// Runner serializes calls, so implementations need not be safe for concurrent use.
//
// Sinks are written in order and a failing sink stops the rest, but writes already made by
// earlier sinks stay in place. Put remote sinks ahead of local files so a failed publish leaves
// nothing on disk.
type Sink interface {
	WriteBundle(ctx context.Context, b *gep.Bundle) error
}

// Checker is implemented by sinks that can reject a bundle before any sink writes it.
type Checker interface {
	CheckBundle(b *gep.Bundle) error
}

// Failure records a template that produced no bundle.
type Failure struct {
	Position   int
	TemplateID string
	Err        error
}

func (f Failure) Error() string {
	if f.TemplateID == "" {
		return fmt.Sprintf("template #%d: %v", f.Position, f.Err)
	}
	return fmt.Sprintf("template %q: %v", f.TemplateID, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// Result is the outcome of a batch run.
// Index holds one entry per bundle written, in template order.
type Result struct {
	Index    []gep.IndexEntry
	Failures []Failure
}

// Runner builds templates with a gep.Builder and writes them to its sinks.
type Runner struct {
	builder     *gep.Builder
	sinks       []Sink
	parallelism int
	logger      *zap.Logger

	mu sync.Mutex
}

// Option configures a Runner.
type Option func(*Runner)

// WithSinks appends sinks. Bundles are written to them in the order given.
func WithSinks(sinks ...Sink) Option {
	return func(r *Runner) { r.sinks = append(r.sinks, sinks...) }
}

// WithParallelism sets how many templates are built at once. Values below 1 mean 1.
func WithParallelism(n int) Option {
	return func(r *Runner) { r.parallelism = n }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// NewRunner returns a Runner using builder.
func NewRunner(builder *gep.Builder, opts ...Option) *Runner {
	r := &Runner{
		builder:     builder,
		parallelism: 1,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.parallelism < 1 {
		r.parallelism = 1
	}
	return r
}

// Run builds every template and writes the results to the sinks.
// Per-template errors are collected in Result.Failures. The returned error is non-nil only when
// ctx is cancelled, in which case the partial result is still returned.
func (r *Runner) Run(ctx context.Context, templates []gep.Template) (*Result, error) {
	entries := make([]*gep.IndexEntry, len(templates))
	failures := make([]*Failure, len(templates))

	var g errgroup.Group
	g.SetLimit(r.parallelism)

	for i := range templates {
		if ctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			entry, err := r.runOne(ctx, templates[i], i)
			if err != nil {
				failures[i] = &Failure{Position: i, TemplateID: templates[i].ID, Err: err}
				r.logger.Warn("template failed",
					zap.Int("position", i),
					zap.String("template_id", templates[i].ID),
					zap.Error(err))
				return nil
			}
			entries[i] = entry
			return nil
		})
	}
	_ = g.Wait()

	result := &Result{Index: []gep.IndexEntry{}}
	for i := range templates {
		if entries[i] != nil {
			result.Index = append(result.Index, *entries[i])
		}
		if failures[i] != nil {
			result.Failures = append(result.Failures, *failures[i])
		}
	}

	r.logger.Info("batch finished",
		zap.Int("templates", len(templates)),
		zap.Int("bundles", len(result.Index)),
		zap.Int("failures", len(result.Failures)))

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("batch interrupted: %w", err)
	}
	return result, nil
}

func (r *Runner) runOne(ctx context.Context, t gep.Template, position int) (*gep.IndexEntry, error) {
	bundle, err := r.builder.BuildAt(t, position)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sinks {
		if c, ok := s.(Checker); ok {
			if err := c.CheckBundle(bundle); err != nil {
				return nil, fmt.Errorf("bundle rejected: %w", err)
			}
		}
	}
	for _, s := range r.sinks {
		if err := s.WriteBundle(ctx, bundle); err != nil {
			return nil, fmt.Errorf("failed to write bundle: %w", err)
		}
	}

	r.logger.Debug("bundle written",
		zap.String("template_id", bundle.TemplateID),
		zap.String("gene", bundle.Gene.AssetID),
		zap.String("capsule", bundle.Capsule.AssetID),
		zap.String("event", bundle.Event.AssetID))

	entry := bundle.Index()
	return &entry, nil
}
