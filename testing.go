package hxlive

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pthm/hxlive/lib/dom"
	"github.com/pthm/hxlive/lib/protocol"
)

// ManualLoop is a Loop for tests. Posted work runs immediately on the
// posting goroutine unless other work is already running, in which case it
// is queued behind it. Time only moves when Advance is called.
//
//	loop := &hxlive.ManualLoop{}
//	live := hxlive.New(window, hxlive.WithLoop(loop), ...)
//	loop.Advance(time.Second) // fires the reconnect timer
type ManualLoop struct {
	mu      sync.Mutex
	queue   []func()
	running bool
	now     time.Duration
	timers  []*manualTimer
}

// Post runs fn, or queues it behind the work currently running.
func (l *ManualLoop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.mu.Unlock()
	l.drain()
}

func (l *ManualLoop) drain() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.running = false
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()
		fn()
	}
}

// AfterFunc schedules fn on the fake clock.
func (l *ManualLoop) AfterFunc(d time.Duration, fn func()) Timer {
	l.mu.Lock()
	defer l.mu.Unlock()
	t := &manualTimer{loop: l, at: l.now + d, fn: fn}
	l.timers = append(l.timers, t)
	return t
}

// Advance moves the fake clock forward by d, running every timer that
// comes due in order.
func (l *ManualLoop) Advance(d time.Duration) {
	l.mu.Lock()
	target := l.now + d
	l.mu.Unlock()

	for {
		l.mu.Lock()
		sort.SliceStable(l.timers, func(i, j int) bool { return l.timers[i].at < l.timers[j].at })
		var next *manualTimer
		if len(l.timers) > 0 && l.timers[0].at <= target {
			next = l.timers[0]
			l.timers = l.timers[1:]
			l.now = next.at
		}
		if next == nil {
			l.now = target
			l.mu.Unlock()
			return
		}
		next.done = true
		l.mu.Unlock()
		l.Post(next.fn)
	}
}

// Now returns the fake clock.
func (l *ManualLoop) Now() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.now
}

// Timers returns the number of pending timers.
func (l *ManualLoop) Timers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.timers)
}

type manualTimer struct {
	loop *ManualLoop
	at   time.Duration
	fn   func()
	done bool
}

func (t *manualTimer) Stop() bool {
	l := t.loop
	l.mu.Lock()
	defer l.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	for i, other := range l.timers {
		if other == t {
			l.timers = append(l.timers[:i], l.timers[i+1:]...)
			break
		}
	}
	return true
}

// PipeTransport is a Transport whose sockets are driven by the test. Every
// Open returns a new PipeSocket that stays connecting until Accept or Drop
// is called on it.
type PipeTransport struct {
	mu      sync.Mutex
	sockets []*PipeSocket
}

// Open records the dial.
func (p *PipeTransport) Open(ctx context.Context, u *url.URL, jar http.CookieJar, h SocketHandler) Socket {
	cookieURL := *u
	cookieURL.Scheme = "http"
	if u.Scheme == "wss" {
		cookieURL.Scheme = "https"
	}
	s := &PipeSocket{
		URL:     u,
		Cookies: jar.Cookies(&cookieURL),
		handler: h,
	}
	p.mu.Lock()
	p.sockets = append(p.sockets, s)
	p.mu.Unlock()
	return s
}

// Dials returns the number of Open calls.
func (p *PipeTransport) Dials() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sockets)
}

// Last returns the most recent socket, or nil before the first dial.
func (p *PipeTransport) Last() *PipeSocket {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sockets) == 0 {
		return nil
	}
	return p.sockets[len(p.sockets)-1]
}

// Frame is one frame written by the runtime.
type Frame struct {
	Type int
	Data []byte
}

// PipeSocket is the test's end of a socket.
type PipeSocket struct {
	// URL is the endpoint dialed.
	URL *url.URL
	// Cookies are the cookies the handshake would carry.
	Cookies []*http.Cookie

	handler SocketHandler

	mu        sync.Mutex
	frames    []Frame
	closed    bool
	closeCode int
	changed   chan struct{}
}

// Accept reports the socket as open.
func (s *PipeSocket) Accept() {
	s.handler.OnOpen()
}

// Deliver sends e to the runtime as a text frame.
func (s *PipeSocket) Deliver(e protocol.Envelope) error {
	wire, err := protocol.Serialize(e)
	if err != nil {
		return err
	}
	s.handler.OnMessage(websocket.TextMessage, []byte(wire))
	return nil
}

// DeliverRaw sends a frame as is.
func (s *PipeSocket) DeliverRaw(messageType int, data []byte) {
	s.handler.OnMessage(messageType, data)
}

// Drop reports the socket as closed by the peer with code.
func (s *PipeSocket) Drop(code int) {
	s.handler.OnClose(code, "dropped by test")
}

// Send records a frame written by the runtime.
func (s *PipeSocket) Send(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("hxlive: pipe closed")
	}
	s.frames = append(s.frames, Frame{Type: messageType, Data: append([]byte(nil), data...)})
	s.notify()
	return nil
}

// Close records a close by the runtime.
func (s *PipeSocket) Close(code int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.closeCode = code
	s.notify()
	return nil
}

func (s *PipeSocket) notify() {
	if s.changed != nil {
		close(s.changed)
		s.changed = nil
	}
}

// Closed reports whether the runtime closed the socket and with which code.
func (s *PipeSocket) Closed() (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed, s.closeCode
}

// Frames returns every frame written so far.
func (s *PipeSocket) Frames() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Frame(nil), s.frames...)
}

// Envelopes returns the text frames written so far, parsed.
func (s *PipeSocket) Envelopes() []protocol.Envelope {
	var out []protocol.Envelope
	for _, f := range s.Frames() {
		if f.Type != websocket.TextMessage {
			continue
		}
		if e, err := protocol.Parse(f.Data); err == nil {
			out = append(out, e)
		}
	}
	return out
}

// Sent returns the written envelopes of type typ.
func (s *PipeSocket) Sent(typ string) []protocol.Envelope {
	var out []protocol.Envelope
	for _, e := range s.Envelopes() {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// Binary returns the binary frames written so far.
func (s *PipeSocket) Binary() [][]byte {
	var out [][]byte
	for _, f := range s.Frames() {
		if f.Type == websocket.BinaryMessage {
			out = append(out, f.Data)
		}
	}
	return out
}

// WaitFor blocks until an envelope of type typ has been written or the
// timeout passes. Use it when work completes off the test goroutine.
func (s *PipeSocket) WaitFor(typ string, timeout time.Duration) (protocol.Envelope, bool) {
	deadline := time.After(timeout)
	for {
		s.mu.Lock()
		if s.changed == nil {
			s.changed = make(chan struct{})
		}
		changed := s.changed
		s.mu.Unlock()

		if sent := s.Sent(typ); len(sent) > 0 {
			return sent[0], true
		}
		select {
		case <-changed:
		case <-deadline:
			return protocol.Envelope{}, false
		}
	}
}

// TestLive is a Live runtime over an in-memory page, a ManualLoop and a
// PipeTransport.
type TestLive struct {
	*Live
	Window    *dom.Window
	Loop      *ManualLoop
	Transport *PipeTransport
}

// NewTestLive parses page, shows it at location and builds a runtime for
// it. Extra options are applied after the test loop and transport.
//
//	tl, err := hxlive.NewTestLive(`<html live-rendered>...`, "http://example.com/todos")
//	sock, err := tl.Connect()
//	tl.Document().ByID("save").Click()
//	sent := sock.Sent("save")
func NewTestLive(page, location string, opts ...Option) (*TestLive, error) {
	doc, err := dom.ParseString(page)
	if err != nil {
		return nil, err
	}
	loc, err := url.Parse(location)
	if err != nil {
		return nil, err
	}

	tl := &TestLive{
		Window:    dom.NewWindow(doc, loc, nil),
		Loop:      &ManualLoop{},
		Transport: &PipeTransport{},
	}
	base := []Option{WithLoop(tl.Loop), WithTransport(tl.Transport)}
	tl.Live = New(tl.Window, append(base, opts...)...)
	return tl, nil
}

// Document returns the page document.
func (tl *TestLive) Document() *dom.Document {
	return tl.Window.Document()
}

// Connect starts the runtime and accepts the first dial.
func (tl *TestLive) Connect() (*PipeSocket, error) {
	if err := tl.Start(context.Background()); err != nil {
		return nil, err
	}
	sock := tl.Transport.Last()
	sock.Accept()
	return sock, nil
}

// Patch delivers a patch batch on sock.
func (tl *TestLive) Patch(sock *PipeSocket, batch ...protocol.Instruction) error {
	return sock.Deliver(protocol.New(protocol.TypePatch, batch))
}
