package cmd

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/stitch/internal/alias"
	"github.com/conneroisu/stitch/internal/config"
	"github.com/conneroisu/stitch/internal/dom"
	"github.com/conneroisu/stitch/internal/errors"
	"github.com/conneroisu/stitch/internal/fetch"
	"github.com/conneroisu/stitch/internal/include"
	"github.com/conneroisu/stitch/internal/logging"
	"github.com/conneroisu/stitch/internal/script"
)

var renderNoScripts bool

var renderCmd = &cobra.Command{
	Use:   "render <page>",
	Short: "Print a page with its includes applied",
	Long: `Load a page, run its scripts and one include pass, and print the
resulting HTML to stdout. The page is a file path or an http(s) URL.

File pages resolve fragments against site.base, which defaults to the site
root. URL pages resolve against site.base or the page's own directory.

Nothing is written to disk; the output is a preview, not a bundle.

Examples:
  stitch render index.html
  stitch render docs/guide.html --selector "main [data-include]"
  stitch render https://example.com/ --no-scripts`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().String("selector", "[data-include]", "CSS selector for placeholder elements")
	renderCmd.Flags().String("base", "", "module base URL include sources resolve against")
	renderCmd.Flags().BoolVar(&renderNoScripts, "no-scripts", false, "don't run page or fragment scripts")

	_ = viper.BindPFlag("include.selector", renderCmd.Flags().Lookup("selector"))
	_ = viper.BindPFlag("site.base", renderCmd.Flags().Lookup("base"))
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if renderNoScripts {
		cfg.Scripts.Enabled = false
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := openPage(ctx, cfg, args[0])
	if err != nil {
		return err
	}

	doc, err := renderPage(ctx, cfg, logger, p)
	if err != nil {
		return err
	}
	return doc.Render(cmd.OutOrStdout())
}

// page is a loaded page and the means to fetch what it references.
type page struct {
	text    string
	url     *url.URL
	base    *url.URL
	fetcher fetch.Fetcher
}

// openPage loads arg as an http(s) URL or a file path.
func openPage(ctx context.Context, cfg *config.Config, arg string) (*page, error) {
	if u, err := url.Parse(arg); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return openRemotePage(ctx, cfg, u)
	}
	return openFilePage(cfg, arg)
}

func openRemotePage(ctx context.Context, cfg *config.Config, u *url.URL) (*page, error) {
	fetcher := fetch.New(fetch.Options{
		Timeout:   cfg.Fetch.Timeout,
		UserAgent: cfg.Fetch.UserAgent,
	})
	text, err := fetcher.Fetch(ctx, u)
	if err != nil {
		return nil, err
	}

	base := u.ResolveReference(&url.URL{Path: "./"})
	if cfg.Site.Base != "" {
		if base, err = cfg.BaseURL(); err != nil {
			return nil, err
		}
	}
	return &page{text: text, url: u, base: base, fetcher: fetcher}, nil
}

// openFilePage reads a page from disk. Pages under site.root are addressed
// as file:///<path relative to the root>; a page outside it gets its own
// directory as the root.
func openFilePage(cfg *config.Config, name string) (*page, error) {
	abs, err := filepath.Abs(name)
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeFileNotFound, "invalid page path")
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeFileNotFound, fmt.Sprintf("failed to read page %s", name))
	}

	root, err := filepath.Abs(cfg.Site.Root)
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeFileNotFound, "invalid site root")
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		root = filepath.Dir(abs)
		rel = filepath.Base(abs)
	}

	base, err := cfg.BaseURL()
	if err != nil {
		return nil, err
	}

	return &page{
		text: string(data),
		url:  &url.URL{Scheme: "file", Path: "/" + filepath.ToSlash(rel)},
		base: base,
		fetcher: fetch.New(fetch.Options{
			Timeout:   cfg.Fetch.Timeout,
			UserAgent: cfg.Fetch.UserAgent,
			FileRoot:  root,
		}),
	}, nil
}

// renderPage parses p, runs its scripts when enabled, and runs one include
// pass over it.
func renderPage(ctx context.Context, cfg *config.Config, logger logging.Logger, p *page) (*dom.Document, error) {
	opts := []dom.Option{dom.WithURL(p.url), dom.WithLogger(logger)}

	var host *script.Runtime
	var window include.Dispatcher
	if cfg.Scripts.Enabled {
		host = script.New(p.fetcher, logger)
		opts = append(opts, dom.WithScriptRunner(host))
		window = host
	}

	doc, err := dom.ParseString(p.text, opts...)
	if err != nil {
		return nil, err
	}
	if host != nil {
		host.Attach(doc)
	}
	doc.RunScripts(ctx)

	resolver, err := alias.NewResolver(cfg.Aliases, p.base)
	if err != nil {
		return nil, err
	}
	engine, err := include.New(include.Options{
		Resolver:       resolver,
		Fetcher:        p.fetcher,
		Logger:         logger,
		Window:         window,
		Attrs:          cfg.AttrNames(),
		MaxConcurrency: cfg.Include.MaxConcurrency,
	})
	if err != nil {
		return nil, err
	}

	if err := engine.Include(ctx, doc, cfg.Include.Selector); err != nil {
		return nil, err
	}
	return doc, nil
}
