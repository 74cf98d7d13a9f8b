package hxlive

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/pthm/hxlive/lib/dom"
	"github.com/pthm/hxlive/lib/protocol"
)

// Live is the runtime for one page. It owns one of each service, wired
// together; nothing is shared between Live instances.
type Live struct {
	host    Host
	loop    Loop
	ownLoop *EventLoop
	log     *slog.Logger
	closing sync.Once

	ids        protocol.IDGen
	session    *Session
	dispatcher *Dispatcher
	forms      *FormStore
	patcher    *Patcher
	wiring     *Wiring
	uploader   *Uploader
}

// New builds the runtime for the page shown by host.
//
//	live := hxlive.New(window,
//	    hxlive.WithHooks(hxlive.Hooks{"chart": chartHook}),
//	    hxlive.WithLogger(logger),
//	)
//	if err := live.Start(ctx); err != nil { ... }
func New(host Host, opts ...Option) *Live {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	l := &Live{host: host, log: logger}

	l.loop = o.loop
	if l.loop == nil {
		l.ownLoop = NewEventLoop()
		l.loop = l.ownLoop
	}
	transport := o.transport
	if transport == nil {
		transport = &WebsocketTransport{}
	}
	client := o.client
	if client == nil {
		client = &http.Client{}
	}

	l.dispatcher = newDispatcher(host, o.hooks, o.ext, logger)
	l.session = newSession(host, l.loop, transport, l.dispatcher, o, logger)
	l.dispatcher.sender = l.session
	l.forms = newFormStore(host, logger)
	l.patcher = newPatcher(host, l.forms, l.dispatcher, logger)
	l.uploader = newUploader(host, l.session, l.loop, client, o.chunkSize, logger)
	l.wiring = newWiring(host, l.session, l.dispatcher, l.forms, l.uploader, &l.ids, l.loop, logger)
	l.session.onPatch = func(batch []protocol.Instruction) {
		l.patcher.Apply(batch)
		l.wiring.Attach()
	}
	return l
}

// Start wires the page and dials the server. It returns ErrNotLiveRendered
// for pages without the live-rendered marker, leaving them untouched.
// Cancelling ctx aborts pending dials and uploads. Start must not be
// called from the loop.
func (l *Live) Start(ctx context.Context) error {
	return l.call(ctx, func() error {
		if len(l.host.FindByAttribute(RenderedAttr)) == 0 {
			return ErrNotLiveRendered
		}
		l.wiring.ctx = ctx
		l.wiring.Attach()
		l.host.Window().AddEventListener("popstate", l.wiring.popState)
		l.session.start(ctx)
		context.AfterFunc(ctx, func() { l.loop.Post(l.session.Close) })
		return nil
	})
}

// Send pushes an untracked envelope from the host page.
func (l *Live) Send(typ string, data any) {
	l.loop.Post(func() {
		if err := l.session.Send(protocol.New(typ, data)); err != nil {
			l.log.Debug("hxlive: send dropped", "type", typ, "error", err)
		}
	})
}

// Upload streams f over the socket and returns its ref.
func (l *Live) Upload(ctx context.Context, field string, f dom.File) (string, error) {
	var ref string
	err := l.call(ctx, func() error {
		var err error
		ref, err = l.uploader.Upload(field, f)
		return err
	})
	return ref, err
}

// Do runs fn on the loop and waits for it. Use it to touch the DOM from
// outside the loop.
func (l *Live) Do(ctx context.Context, fn func()) error {
	return l.call(ctx, func() error {
		fn()
		return nil
	})
}

// Close ends the session with a normal closure and stops the private loop
// if New created one. Cancelling the Start context closes the session too.
// Close must not be called from the loop.
func (l *Live) Close() {
	l.closing.Do(func() {
		done := make(chan struct{})
		l.loop.Post(func() {
			l.session.Close()
			close(done)
		})
		<-done
		if l.ownLoop != nil {
			l.ownLoop.Close()
		}
	})
}

// Session returns the session service.
func (l *Live) Session() *Session { return l.session }

// Dispatcher returns the lifecycle dispatcher.
func (l *Live) Dispatcher() *Dispatcher { return l.dispatcher }

// Forms returns the form state store.
func (l *Live) Forms() *FormStore { return l.forms }

// Patcher returns the patch engine.
func (l *Live) Patcher() *Patcher { return l.patcher }

// Wiring returns the trigger wiring.
func (l *Live) Wiring() *Wiring { return l.wiring }

// Uploader returns the upload channel.
func (l *Live) Uploader() *Uploader { return l.uploader }

// NextID returns a fresh tracking ID from the runtime's generator.
func (l *Live) NextID() uint64 { return l.ids.Next() }

func (l *Live) call(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	l.loop.Post(func() { errc <- fn() })
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
