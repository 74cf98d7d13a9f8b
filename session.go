package hxlive

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pthm/hxlive/lib/dom"
	"github.com/pthm/hxlive/lib/protocol"
)

// State is the connection state of a Session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateReconnecting:
		return "reconnecting"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// AckSignal is dispatched on the element that produced a tracked envelope
// when the server acknowledges it.
const AckSignal = "ack"

type trackedEvent struct {
	env protocol.Envelope
	el  *dom.Element
}

// connection is one dial attempt. Callbacks from an older connection are
// ignored once a newer one exists.
type connection struct {
	sock Socket
}

// Session owns the socket to the server. It keeps the session identity
// cookie fresh, re-dials after abnormal closes, and routes inbound
// messages. All methods must be called on the loop.
type Session struct {
	host      Host
	loop      Loop
	transport Transport
	lifecycle *Dispatcher
	log       *slog.Logger

	cookieName     string
	cookieTTL      time.Duration
	reconnectDelay time.Duration

	// onPatch applies a patch batch and rewires the page.
	onPatch  func([]protocol.Instruction)
	observer func(protocol.Message)

	ctx                context.Context
	id                 string
	conn               *connection
	state              State
	ready              bool
	disconnectNotified bool
	closed             bool
	redial             Timer
	tracked            map[uint64]trackedEvent
}

func newSession(host Host, loop Loop, transport Transport, lifecycle *Dispatcher, o *options, log *slog.Logger) *Session {
	return &Session{
		host:           host,
		loop:           loop,
		transport:      transport,
		lifecycle:      lifecycle,
		log:            log.With("component", "session"),
		cookieName:     o.cookieName,
		cookieTTL:      o.cookieTTL,
		reconnectDelay: o.reconnectDelay,
		observer:       o.observer,
		tracked:        make(map[uint64]trackedEvent),
	}
}

// ID returns the session identity.
func (s *Session) ID() string {
	return s.id
}

// State returns the connection state.
func (s *Session) State() State {
	return s.state
}

// Ready reports whether the socket is open.
func (s *Session) Ready() bool {
	return s.ready
}

// Pending returns the number of tracked envelopes awaiting an ack.
func (s *Session) Pending() int {
	return len(s.tracked)
}

// IsTracked reports whether id awaits an ack.
func (s *Session) IsTracked(id uint64) bool {
	_, ok := s.tracked[id]
	return ok
}

func (s *Session) start(ctx context.Context) {
	s.ctx = ctx
	s.dial()
}

func (s *Session) dial() {
	if s.closed {
		return
	}
	s.tracked = make(map[uint64]trackedEvent)
	s.ready = false
	if s.state == StateIdle {
		s.state = StateConnecting
	} else {
		s.state = StateReconnecting
	}

	s.id = s.identity()
	s.refreshCookie()

	target := SocketURL(s.host.Location())
	s.log.Debug("hxlive: dial", "url", target.String(), "session", s.id)

	c := &connection{}
	s.conn = c
	c.sock = s.transport.Open(s.ctx, target, s.host.CookieJar(), SocketHandler{
		OnOpen: func() {
			s.loop.Post(func() { s.opened(c) })
		},
		OnMessage: func(mt int, data []byte) {
			s.loop.Post(func() { s.received(c, mt, data) })
		},
		OnClose: func(code int, reason string) {
			s.loop.Post(func() { s.lost(c, code, reason) })
		},
	})
}

// identity reuses the current ID, then the cookie, then mints a new one.
func (s *Session) identity() string {
	if s.id != "" {
		return s.id
	}
	if v, ok := s.host.Cookie(s.cookieName); ok && v != "" {
		return v
	}
	return uuid.NewString()
}

func (s *Session) refreshCookie() {
	s.host.SetCookie(&http.Cookie{
		Name:    s.cookieName,
		Value:   s.id,
		Path:    "/",
		MaxAge:  int(s.cookieTTL / time.Second),
		Expires: time.Now().Add(s.cookieTTL),
	})
}

func (s *Session) opened(c *connection) {
	if c != s.conn || s.closed {
		return
	}
	s.ready = true
	s.state = StateOpen
	s.log.Info("hxlive: connected", "session", s.id)

	if err := s.Send(protocol.New(protocol.TypePing, s.host.Location().Path)); err != nil {
		s.log.Warn("hxlive: ping failed", "error", err)
	}
	s.lifecycle.Reconnected()
	s.disconnectNotified = false
}

func (s *Session) lost(c *connection, code int, reason string) {
	if c != s.conn {
		return
	}
	s.ready = false
	s.state = StateClosed
	if s.closed {
		return
	}
	s.log.Warn("hxlive: disconnected", "code", code, "reason", reason)

	if code == CloseGoingAway {
		return
	}
	if !s.disconnectNotified {
		s.lifecycle.Disconnected()
		s.disconnectNotified = true
	}
	s.state = StateReconnecting
	s.redial = s.loop.AfterFunc(s.reconnectDelay, s.dial)
}

func (s *Session) received(c *connection, mt int, data []byte) {
	if c != s.conn || s.closed {
		return
	}
	if mt != websocket.TextMessage {
		s.log.Error("hxlive: unexpected message type", "type", mt, "size", len(data))
		return
	}

	env, err := protocol.Parse(data)
	if err != nil {
		s.log.Error("hxlive: dropping frame", "error", err)
		return
	}
	msg, err := protocol.Decode(env)
	if err != nil {
		s.log.Error("hxlive: dropping message", "type", env.Type, "error", err)
		return
	}
	s.route(msg)
	if s.observer != nil {
		s.observer(msg)
	}
}

func (s *Session) route(msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.PatchMessage:
		if s.onPatch != nil {
			s.onPatch(m.Instructions)
		}
	case protocol.ParamsMessage:
		loc := s.host.Location()
		s.host.PushState(&url.URL{Path: loc.Path, RawQuery: m.Query.Encode()})
	case protocol.RedirectMessage:
		u, err := url.Parse(m.URL)
		if err != nil {
			s.log.Error("hxlive: bad redirect", "url", m.URL, "error", err)
			return
		}
		s.host.Navigate(u)
	case protocol.AckMessage:
		s.ack(m.ID)
	case protocol.ErrorMessage:
		s.lifecycle.Error()
		s.lifecycle.HandleEvent(protocol.TypeError, m.Detail)
	case protocol.AppMessage:
		s.lifecycle.HandleEvent(m.Name, m.Payload)
	}
}

func (s *Session) ack(id uint64) {
	t, ok := s.tracked[id]
	if !ok {
		return
	}
	if t.el != nil {
		s.host.DispatchSignal(t.el, AckSignal, t.env)
	}
	delete(s.tracked, id)
}

// Send transmits e. It is dropped with a warning when the socket is not
// open; nothing is queued. After Close it returns ErrClosed.
func (s *Session) Send(e protocol.Envelope) error {
	if s.closed {
		return ErrClosed
	}
	if !s.ready {
		s.log.Warn("hxlive: connection not ready for send of event", "type", e.Type, "id", e.ID)
		return ErrNotReady
	}
	return s.transmit(e)
}

// SendAndTrack transmits e and remembers el so the ack can be signalled on
// it. The entry is recorded before transmitting.
func (s *Session) SendAndTrack(e protocol.Envelope, el *dom.Element) error {
	if s.closed {
		return ErrClosed
	}
	if !s.ready {
		s.log.Warn("hxlive: connection not ready for send of event", "type", e.Type, "id", e.ID)
		return ErrNotReady
	}
	s.tracked[e.ID] = trackedEvent{env: e, el: el}
	return s.transmit(e)
}

// SendBinary transmits a binary frame.
func (s *Session) SendBinary(frame []byte) error {
	if s.closed {
		return ErrClosed
	}
	if !s.ready {
		s.log.Warn("hxlive: connection not ready for binary frame", "size", len(frame))
		return ErrNotReady
	}
	return s.conn.sock.Send(websocket.BinaryMessage, frame)
}

func (s *Session) transmit(e protocol.Envelope) error {
	wire, err := protocol.Serialize(e)
	if err != nil {
		s.log.Error("hxlive: encode envelope", "type", e.Type, "error", err)
		return err
	}
	if err := s.conn.sock.Send(websocket.TextMessage, []byte(wire)); err != nil {
		s.log.Warn("hxlive: send failed", "type", e.Type, "error", err)
		return fmt.Errorf("hxlive: send %q: %w", e.Type, err)
	}
	return nil
}

// Close ends the session with a normal closure. No reconnect follows.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.ready = false
	s.state = StateClosed
	if s.redial != nil {
		s.redial.Stop()
	}
	if s.conn != nil {
		if err := s.conn.sock.Close(CloseNormal, "page teardown"); err != nil {
			s.log.Debug("hxlive: close", "error", err)
		}
	}
}

// SocketURL derives the socket endpoint from the page location:
// ws(s)://host + path + query + fragment.
func SocketURL(loc *url.URL) *url.URL {
	u := *loc
	u.Scheme = "ws"
	if loc.Scheme == "https" {
		u.Scheme = "wss"
	}
	u.User = nil
	return &u
}
