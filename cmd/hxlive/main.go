package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/docopt/docopt-go"

	"github.com/pthm/hxlive"
	"github.com/pthm/hxlive/lib/dom"
	"github.com/pthm/hxlive/lib/protocol"
)

const version = "0.1.0"

const usage = `hxlive - headless client for live pages.

Connects to a live-rendered page, keeps its socket open and prints the page
again after every patch the server sends.

Usage:
    hxlive connect <url> [--config=<path>] [--format=<format>] [--cookie=<name>] [--reconnect=<delay>] [--verbose]
    hxlive render <url> [--config=<path>] [--format=<format>] [--verbose]
    hxlive -h | --help
    hxlive --version

Options:
    -h --help              Show this screen.
    --version              Show version.
    --config=<path>        YAML configuration file.
    --format=<format>      Output format: markdown or html.
    --cookie=<name>        Session cookie name.
    --reconnect=<delay>    Delay before re-dialing a lost socket, e.g. 2s.
    --verbose              Log at debug level.`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	level, _ := cfg.level()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	target, _ := opts.String("<url>")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if connect, _ := opts.Bool("connect"); connect {
		err = runConnect(ctx, cfg, logger, target, os.Stdout)
	} else if render, _ := opts.Bool("render"); render {
		err = runRender(ctx, cfg, target, os.Stdout)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads --config when given and applies the flag overrides.
func loadConfig(opts docopt.Opts) (*Config, error) {
	cfg := Default()
	if path, err := opts.String("--config"); err == nil && path != "" {
		loaded, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if format, err := opts.String("--format"); err == nil && format != "" {
		cfg.Output.Format = format
	}
	if name, err := opts.String("--cookie"); err == nil && name != "" {
		cfg.Cookie.Name = name
	}
	if delay, err := opts.String("--reconnect"); err == nil && delay != "" {
		d, err := time.ParseDuration(delay)
		if err != nil {
			return nil, fmt.Errorf("hxlive: --reconnect: %w", err)
		}
		cfg.Reconnect = d
	}
	if verbose, _ := opts.Bool("--verbose"); verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, cfg.validate()
}

func runRender(ctx context.Context, cfg *Config, target string, out io.Writer) error {
	jar, _ := cookiejar.New(nil)
	client := &http.Client{Jar: jar, Timeout: cfg.Timeout}
	doc, _, err := fetch(ctx, client, target)
	if err != nil {
		return err
	}
	return newPrinter(cfg, out).Print(doc)
}

func runConnect(ctx context.Context, cfg *Config, logger *slog.Logger, target string, out io.Writer) error {
	jar, _ := cookiejar.New(nil)
	client := &http.Client{Jar: jar, Timeout: cfg.Timeout}
	doc, loc, err := fetch(ctx, client, target)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := newPrinter(cfg, out)
	win := dom.NewWindow(doc, loc, jar)
	win.OnNavigate = func(u *url.URL) {
		fmt.Fprintf(out, "\n--- redirected to %s\n", u)
		cancel()
	}

	opts := append(cfg.Options(),
		hxlive.WithLogger(logger),
		hxlive.WithHTTPClient(client),
		hxlive.WithObserver(func(m protocol.Message) {
			switch m := m.(type) {
			case protocol.PatchMessage:
				fmt.Fprintf(out, "\n--- %s (%d instructions)\n", win.Location(), len(m.Instructions))
				if err := p.Print(win.Document()); err != nil {
					logger.Error("hxlive: print page", "error", err)
				}
			case protocol.ErrorMessage:
				logger.Warn("hxlive: server error", "detail", m.Detail)
			}
		}),
	)
	live := hxlive.New(win, opts...)
	defer live.Close()

	if err := p.Print(doc); err != nil {
		return err
	}
	if err := live.Start(ctx); err != nil {
		if errors.Is(err, hxlive.ErrNotLiveRendered) {
			return fmt.Errorf("%s is not a live page", loc)
		}
		return err
	}
	<-ctx.Done()
	return nil
}

// fetch loads the page at target and returns it with its final location.
func fetch(ctx context.Context, client *http.Client, target string) (*dom.Document, *url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Accept", "text/html")

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("GET %s: %s", target, resp.Status)
	}

	doc, err := dom.Parse(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", target, err)
	}
	return doc, resp.Request.URL, nil
}

// printer writes a page body in the configured format.
type printer struct {
	format string
	domain string
	out    io.Writer
	md     *converter.Converter
}

func newPrinter(cfg *Config, out io.Writer) *printer {
	return &printer{
		format: cfg.Output.Format,
		domain: cfg.Output.Domain,
		out:    out,
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}
}

func (p *printer) Print(doc *dom.Document) error {
	body := doc.Body()
	if body == nil {
		return nil
	}
	markup := body.OuterHTML()
	if p.format == "html" {
		_, err := fmt.Fprintln(p.out, markup)
		return err
	}

	var (
		md  string
		err error
	)
	if p.domain != "" {
		md, err = p.md.ConvertString(markup, converter.WithDomain(p.domain))
	} else {
		md, err = p.md.ConvertString(markup)
	}
	if err != nil {
		return fmt.Errorf("convert to markdown: %w", err)
	}
	_, err = fmt.Fprintln(p.out, md)
	return err
}
