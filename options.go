package hxlive

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/pthm/hxlive/lib/protocol"
)

// Defaults.
const (
	DefaultCookieName     = "_psid"
	DefaultCookieTTL      = 60 * time.Second
	DefaultReconnectDelay = time.Second
	DefaultChunkSize      = 20 * 1024

	// RenderedAttr marks a page produced by the live render pipeline.
	RenderedAttr = "live-rendered"
)

// Option configures a Live runtime.
type Option func(*options)

type options struct {
	logger         *slog.Logger
	hooks          Hooks
	ext            DOMExtension
	loop           Loop
	transport      Transport
	reconnectDelay time.Duration
	cookieName     string
	cookieTTL      time.Duration
	chunkSize      int
	client         *http.Client
	observer       func(protocol.Message)
}

func defaultOptions() *options {
	return &options{
		reconnectDelay: DefaultReconnectDelay,
		cookieName:     DefaultCookieName,
		cookieTTL:      DefaultCookieTTL,
		chunkSize:      DefaultChunkSize,
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithHooks registers lifecycle hooks by the value of their live-hook
// attribute.
func WithHooks(h Hooks) Option {
	return func(o *options) {
		o.hooks = h
	}
}

// WithDOMExtension installs a callback for third-party DOM libraries that
// runs just before an element is replaced.
func WithDOMExtension(ext DOMExtension) Option {
	return func(o *options) {
		o.ext = ext
	}
}

// WithLoop runs the runtime on l instead of a private EventLoop.
func WithLoop(l Loop) Option {
	return func(o *options) {
		o.loop = l
	}
}

// WithTransport sets how sockets are opened. Defaults to a
// WebsocketTransport.
func WithTransport(t Transport) Option {
	return func(o *options) {
		o.transport = t
	}
}

// WithReconnectDelay sets the fixed delay between a lost connection and the
// next dial. Defaults to one second.
func WithReconnectDelay(d time.Duration) Option {
	return func(o *options) {
		o.reconnectDelay = d
	}
}

// WithCookie sets the name and lifetime of the session identity cookie.
// Defaults to "_psid" and 60 seconds.
func WithCookie(name string, ttl time.Duration) Option {
	return func(o *options) {
		o.cookieName = name
		o.cookieTTL = ttl
	}
}

// WithChunkSize sets the largest binary frame Upload sends.
func WithChunkSize(n int) Option {
	return func(o *options) {
		o.chunkSize = n
	}
}

// WithHTTPClient sets the client for multipart form posts. Its Jar is
// replaced by the host's cookie jar.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.client = c
	}
}

// WithObserver calls fn with every inbound message after the runtime has
// handled it.
func WithObserver(fn func(protocol.Message)) Option {
	return func(o *options) {
		o.observer = fn
	}
}
