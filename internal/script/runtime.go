// Package script executes classic scripts connected to a document in an
// embedded JavaScript engine.
//
// A Runtime owns one goja VM that plays the part of the page's window: every
// script shares its globals, so a fragment script can call a function defined
// by the page. Module scripts and data blocks are not executed.
//
// The document is exposed read-only: scripts can query elements and read
// their attributes and text, and listeners they add to elements never fire.
// Mutating methods such as appendChild do not exist.
package script

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"golang.org/x/net/html"

	"github.com/conneroisu/stitch/internal/dom"
	"github.com/conneroisu/stitch/internal/errors"
	"github.com/conneroisu/stitch/internal/logging"
)

// Fetcher loads external script sources.
type Fetcher interface {
	Fetch(ctx context.Context, u *url.URL) (string, error)
}

// Viewport size reported as window.innerWidth and innerHeight.
const (
	viewportWidth  = 1280
	viewportHeight = 800
)

// Runtime is a dom.ScriptRunner backed by goja.
type Runtime struct {
	mu        sync.Mutex
	vm        *goja.Runtime
	fetcher   Fetcher
	logger    logging.Logger
	listeners map[string][]goja.Value
	doc       *dom.Document
	// query is the document view of the script or dispatch in progress.
	query dom.Query
}

// New creates a Runtime. fetcher may be nil, in which case scripts with a src
// attribute fail.
func New(fetcher Fetcher, logger logging.Logger) *Runtime {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Runtime{
		vm:        goja.New(),
		fetcher:   fetcher,
		logger:    logger.WithComponent("script"),
		listeners: make(map[string][]goja.Value),
	}
	r.installGlobals()
	return r
}

func (r *Runtime) installGlobals() {
	global := r.vm.GlobalObject()
	_ = global.Set("window", global)
	_ = global.Set("self", global)
	_ = global.Set("innerWidth", viewportWidth)
	_ = global.Set("innerHeight", viewportHeight)
	_ = global.Set("document", r.documentObject())

	_ = global.Set("addEventListener", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		fn := call.Argument(1)
		if _, ok := goja.AssertFunction(fn); ok {
			r.listeners[name] = append(r.listeners[name], fn)
		}
		return goja.Undefined()
	})
	_ = global.Set("removeEventListener", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		fn := call.Argument(1)
		kept := r.listeners[name][:0]
		for _, l := range r.listeners[name] {
			if !l.StrictEquals(fn) {
				kept = append(kept, l)
			}
		}
		r.listeners[name] = kept
		return goja.Undefined()
	})

	console := r.vm.NewObject()
	logFn := func(level string) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, a := range call.Arguments {
				parts[i] = a.String()
			}
			msg := strings.Join(parts, " ")
			ctx := context.Background()
			switch level {
			case "warn":
				r.logger.Warn(ctx, nil, msg, "source", "console")
			case "error":
				r.logger.Error(ctx, nil, msg, "source", "console")
			case "debug":
				r.logger.Debug(ctx, msg, "source", "console")
			default:
				r.logger.Info(ctx, msg, "source", "console")
			}
			return goja.Undefined()
		}
	}
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		_ = console.Set(level, logFn(level))
	}
	_ = global.Set("console", console)
}

// RunScript executes s. Classic scripts run in the shared global scope;
// module scripts and data blocks are skipped.
func (r *Runtime) RunScript(ctx context.Context, s dom.Script) error {
	switch s.Kind() {
	case dom.ScriptData:
		return nil
	case dom.ScriptModule:
		r.logger.Debug(ctx, "Skipping module script", "src", srcString(s))
		return nil
	}

	name := "inline"
	source := s.Text
	if s.Src != nil {
		if r.fetcher == nil {
			return errors.NewFetchError(errors.ErrCodeFetch, "no fetcher for external script", nil).
				WithURL(s.Src.String())
		}
		text, err := r.fetcher.Fetch(ctx, s.Src)
		if err != nil {
			return err
		}
		name = s.Src.String()
		source = text
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.query = s.Query
	defer func() { r.query = nil }()
	return r.run(ctx, name, source)
}

// Attach gives event listeners run by Dispatch a view of doc.
func (r *Runtime) Attach(doc *dom.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doc = doc
}

func (r *Runtime) run(ctx context.Context, name, source string) error {
	if err := ctx.Err(); err != nil {
		return errors.NewInternalError(errors.ErrCodeInternalError,
			fmt.Sprintf("script %s not run", name), err)
	}

	interrupted := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(interrupted)
		r.vm.Interrupt(ctx.Err())
	})
	defer func() {
		// A callback that already started must finish before the interrupt
		// is cleared, or it would stop the next script.
		if !stop() {
			<-interrupted
		}
		r.vm.ClearInterrupt()
	}()

	if _, err := r.vm.RunScript(name, source); err != nil {
		return errors.NewInternalError(errors.ErrCodeInternalError,
			fmt.Sprintf("script %s failed", name), err)
	}
	return nil
}

// Dispatch calls every listener registered on window for name with an event
// object carrying type and detail. A listener that throws is logged and the
// rest still run.
func (r *Runtime) Dispatch(ctx context.Context, name string, detail map[string]interface{}) {
	r.mu.Lock()
	doc := r.doc
	r.mu.Unlock()

	if doc == nil {
		r.dispatch(ctx, name, detail, nil)
		return
	}
	// The document is locked before the runtime, the same order as scripts
	// run by the document.
	doc.View(func(q dom.Query) {
		r.dispatch(ctx, name, detail, q)
	})
}

func (r *Runtime) dispatch(ctx context.Context, name string, detail map[string]interface{}, q dom.Query) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.query = q
	defer func() { r.query = nil }()

	event := r.vm.NewObject()
	_ = event.Set("type", name)
	_ = event.Set("detail", detail)

	listeners := append([]goja.Value(nil), r.listeners[name]...)
	for _, l := range listeners {
		fn, ok := goja.AssertFunction(l)
		if !ok {
			continue
		}
		if _, err := fn(r.vm.GlobalObject(), event); err != nil {
			r.logger.Warn(ctx, err, "Event listener failed", "event", name)
		}
	}
}

// Get returns the exported value of a global variable.
func (r *Runtime) Get(name string) (interface{}, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := r.vm.GlobalObject().Get(name)
	if v == nil || goja.IsUndefined(v) {
		return nil, false
	}
	return v.Export(), true
}

func (r *Runtime) documentObject() *goja.Object {
	document := r.vm.NewObject()
	_ = document.Set("querySelector", func(call goja.FunctionCall) goja.Value {
		return r.first(nil, call.Argument(0).String())
	})
	_ = document.Set("querySelectorAll", func(call goja.FunctionCall) goja.Value {
		return r.all(nil, call.Argument(0).String())
	})
	_ = document.Set("getElementById", func(call goja.FunctionCall) goja.Value {
		id := call.Argument(0).String()
		for _, el := range r.find(nil, "[id]") {
			if v, _ := el.Attr("id"); v == id {
				return r.element(el)
			}
		}
		return goja.Null()
	})
	_ = document.Set("addEventListener", ignoreListener)
	_ = document.Set("removeEventListener", ignoreListener)
	return document
}

// element wraps a read-only element copy.
func (r *Runtime) element(el dom.Element) goja.Value {
	o := r.vm.NewObject()
	id, _ := el.Attr("id")
	class, _ := el.Attr("class")
	_ = o.Set("tagName", strings.ToUpper(el.Tag))
	_ = o.Set("id", id)
	_ = o.Set("className", class)
	_ = o.Set("textContent", el.Text)

	_ = o.Set("getAttribute", func(call goja.FunctionCall) goja.Value {
		if v, ok := el.Attr(call.Argument(0).String()); ok {
			return r.vm.ToValue(v)
		}
		return goja.Null()
	})
	_ = o.Set("hasAttribute", func(call goja.FunctionCall) goja.Value {
		_, ok := el.Attr(call.Argument(0).String())
		return r.vm.ToValue(ok)
	})

	classes := strings.Fields(class)
	classList := r.vm.NewObject()
	_ = classList.Set("length", len(classes))
	_ = classList.Set("contains", func(call goja.FunctionCall) goja.Value {
		want := call.Argument(0).String()
		for _, c := range classes {
			if c == want {
				return r.vm.ToValue(true)
			}
		}
		return r.vm.ToValue(false)
	})
	_ = o.Set("classList", classList)

	node := el.Node
	_ = o.Set("querySelector", func(call goja.FunctionCall) goja.Value {
		return r.first(node, call.Argument(0).String())
	})
	_ = o.Set("querySelectorAll", func(call goja.FunctionCall) goja.Value {
		return r.all(node, call.Argument(0).String())
	})
	_ = o.Set("addEventListener", ignoreListener)
	_ = o.Set("removeEventListener", ignoreListener)
	return o
}

func (r *Runtime) first(root *html.Node, selector string) goja.Value {
	els := r.find(root, selector)
	if len(els) == 0 {
		return goja.Null()
	}
	return r.element(els[0])
}

func (r *Runtime) all(root *html.Node, selector string) goja.Value {
	els := r.find(root, selector)
	out := make([]interface{}, len(els))
	for i, el := range els {
		out[i] = r.element(el)
	}
	return r.vm.NewArray(out...)
}

// find runs selector against the current document view. An invalid selector
// throws in the calling script.
func (r *Runtime) find(root *html.Node, selector string) []dom.Element {
	if r.query == nil {
		return nil
	}
	els, err := r.query(root, selector)
	if err != nil {
		panic(r.vm.NewGoError(err))
	}
	return els
}

func ignoreListener(goja.FunctionCall) goja.Value {
	return goja.Undefined()
}

func srcString(s dom.Script) string {
	if s.Src == nil {
		return ""
	}
	return s.Src.String()
}
