// Package include runs the fragment include pipeline over a document.
//
// A run selects every placeholder element, then for each one, on its own
// goroutine, resolves the source, fetches it, gathers parameters, renders
// tokens, and installs the result. The first failure settles the run's token
// at once; pipelines already in flight still finish in the background and
// their installs stay. A run that installs everything publishes a
// ready.Event and dispatches it to the window.
package include

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/stitch/internal/alias"
	"github.com/conneroisu/stitch/internal/dom"
	"github.com/conneroisu/stitch/internal/errors"
	"github.com/conneroisu/stitch/internal/fetch"
	"github.com/conneroisu/stitch/internal/fragment"
	"github.com/conneroisu/stitch/internal/logging"
	"github.com/conneroisu/stitch/internal/params"
	"github.com/conneroisu/stitch/internal/ready"
	"github.com/conneroisu/stitch/internal/render"
)

// Dispatcher delivers a named event to the page's window.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, detail map[string]interface{})
}

// Options configures an Engine. Resolver and Fetcher are required.
type Options struct {
	Resolver *alias.Resolver
	Fetcher  fetch.Fetcher
	Registry *ready.Registry
	Logger   logging.Logger
	// Window receives includes:ready after each successful run.
	Window Dispatcher
	Attrs  params.AttrNames
	// MaxConcurrency limits concurrent pipelines; 0 means unlimited.
	MaxConcurrency int
}

// Engine runs include passes.
type Engine struct {
	resolver  *alias.Resolver
	fetcher   fetch.Fetcher
	gatherer  *params.Gatherer
	installer *fragment.Installer
	registry  *ready.Registry
	window    Dispatcher
	attrs     params.AttrNames
	limit     int
	logger    logging.Logger
	runs      sync.WaitGroup
}

// New builds an Engine from opts.
func New(opts Options) (*Engine, error) {
	if opts.Resolver == nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "include engine requires an alias resolver")
	}
	if opts.Fetcher == nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "include engine requires a fetcher")
	}
	if opts.MaxConcurrency < 0 {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "max concurrency cannot be negative")
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	attrs := opts.Attrs
	if attrs == (params.AttrNames{}) {
		attrs = params.DefaultAttrNames()
	}
	registry := opts.Registry
	if registry == nil {
		registry = ready.NewRegistry(logger)
	}

	return &Engine{
		resolver:  opts.Resolver,
		fetcher:   opts.Fetcher,
		gatherer:  params.NewGatherer(attrs, logger),
		installer: fragment.NewInstaller(opts.Resolver, logger),
		registry:  registry,
		window:    opts.Window,
		attrs:     attrs,
		limit:     opts.MaxConcurrency,
		logger:    logger.WithComponent("include"),
	}, nil
}

// Registry returns the engine's readiness registry.
func (e *Engine) Registry() *ready.Registry {
	return e.registry
}

// Start begins a run over the elements of doc matching selector and returns
// its token at once. An empty selector selects every element carrying the
// source attribute.
func (e *Engine) Start(ctx context.Context, doc *dom.Document, selector string) *ready.Token {
	token := e.registry.Begin()
	e.runs.Add(1)
	go func() {
		defer e.runs.Done()
		token.Settle(e.run(ctx, doc, selector, token))
	}()
	return token
}

// Include runs a pass and waits for its token. It returns as soon as one
// placeholder fails, while the other pipelines of the run may still be
// installing; use Wait to join them.
func (e *Engine) Include(ctx context.Context, doc *dom.Document, selector string) error {
	return e.Start(ctx, doc, selector).Wait(ctx)
}

// Wait blocks until every pipeline of every run started so far has finished.
func (e *Engine) Wait() {
	e.runs.Wait()
}

func (e *Engine) run(ctx context.Context, doc *dom.Document, selector string, token *ready.Token) error {
	runID := token.ID
	if selector == "" {
		selector = "[" + e.attrs.Source + "]"
	}
	logger := e.logger.With("run_id", runID)
	perf := logging.StartOperation(logger, "include")

	placeholders, err := e.Select(doc, selector)
	if err != nil {
		perf.EndWithError(ctx, err, "selector", selector)
		return err
	}

	var g errgroup.Group
	if e.limit > 0 {
		g.SetLimit(e.limit)
	}
	failures := errors.NewErrorCollector()
	var installed atomic.Int64

	for _, p := range placeholders {
		p := p
		g.Go(func() error {
			ok, err := e.includeOne(ctx, doc, p)
			if err != nil {
				failures.Add(p.Source, err)
				token.Settle(failures.First())
				return err
			}
			if ok {
				installed.Add(1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		handler := errors.NewErrorHandler(logger)
		for _, f := range failures.Failures() {
			handler.Handle(ctx, f.Err)
		}
		perf.EndWithError(ctx, err, "placeholders", len(placeholders), "failed", len(failures.Failures()))
		return err
	}

	count := int(installed.Load())
	e.registry.Publish(ready.Event{Name: ready.EventName, RunID: runID, Count: count})
	if e.window != nil {
		e.window.Dispatch(ctx, ready.EventName, map[string]interface{}{
			"runId": runID,
			"count": count,
		})
	}
	perf.End(ctx, "placeholders", len(placeholders), "installed", count)
	return nil
}

// Select returns the placeholders of doc matching selector, in document
// order. Elements without a non-empty source attribute are skipped.
func (e *Engine) Select(doc *dom.Document, selector string) ([]Placeholder, error) {
	nodes, err := doc.QueryAll(selector)
	if err != nil {
		return nil, err
	}
	out := make([]Placeholder, 0, len(nodes))
	for _, n := range nodes {
		if p, ok := newPlaceholder(n, doc.Attrs(n), e.attrs.Source); ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// includeOne runs the pipeline for one placeholder. It reports false without
// an error when the placeholder was already replaced by another run.
func (e *Engine) includeOne(ctx context.Context, doc *dom.Document, p Placeholder) (bool, error) {
	if !doc.Attached(p.Node) {
		return false, nil
	}

	u, err := e.resolver.Resolve(p.Source)
	if err != nil {
		return false, describe(doc, p, err)
	}
	p.URL = u

	text, err := e.fetcher.Fetch(ctx, u)
	if err != nil {
		return false, describe(doc, p, err)
	}

	set := e.gatherer.Gather(ctx, p.Attrs, u)
	rendered := render.Render(text, set)

	if err := e.installer.Install(ctx, doc, p.Node, rendered); err != nil {
		if stderrors.Is(err, dom.ErrDetached) {
			return false, nil
		}
		return false, describe(doc, p, err)
	}
	e.logger.Debug(ctx, "Fragment installed", "source", p.Source, "url", u.String(), "params", set.Len())
	return true, nil
}

// describe records the placeholder's markup on a structured error so that
// reports can show which element failed.
func describe(doc *dom.Document, p Placeholder, err error) error {
	var se *errors.StitchError
	if stderrors.As(err, &se) {
		se.WithContext("placeholder", doc.OuterHTML(p.Node))
	}
	return err
}
