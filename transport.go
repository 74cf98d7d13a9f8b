package hxlive

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Close codes the session distinguishes.
const (
	CloseNormal    = websocket.CloseNormalClosure
	CloseGoingAway = websocket.CloseGoingAway
	CloseAbnormal  = websocket.CloseAbnormalClosure
)

// Transport opens sockets. Open must not block: the outcome is reported
// through the handler, from any goroutine.
type Transport interface {
	Open(ctx context.Context, u *url.URL, jar http.CookieJar, h SocketHandler) Socket
}

// SocketHandler receives socket events. OnClose is called exactly once,
// including when the dial itself fails.
type SocketHandler struct {
	OnOpen    func()
	OnMessage func(messageType int, data []byte)
	OnClose   func(code int, reason string)
}

// Socket is an open or opening duplex connection. Message types are the
// websocket.TextMessage and websocket.BinaryMessage constants.
type Socket interface {
	Send(messageType int, data []byte) error
	Close(code int, reason string) error
}

// WebsocketTransport dials with gorilla/websocket. The cookie jar is handed
// to the dialer so the handshake carries the session cookie.
type WebsocketTransport struct {
	Dialer *websocket.Dialer
}

// Open dials u on a new goroutine and then reads frames until the
// connection ends.
func (t *WebsocketTransport) Open(ctx context.Context, u *url.URL, jar http.CookieJar, h SocketHandler) Socket {
	d := websocket.DefaultDialer
	if t.Dialer != nil {
		d = t.Dialer
	}
	dialer := *d
	dialer.Jar = jar

	s := &wsSocket{}
	go s.run(ctx, &dialer, u.String(), h)
	return s
}

type wsSocket struct {
	mu        sync.Mutex
	conn      *websocket.Conn
	closed    bool
	closeCode int
}

func (s *wsSocket) run(ctx context.Context, d *websocket.Dialer, target string, h SocketHandler) {
	conn, resp, err := d.DialContext(ctx, target, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		h.OnClose(CloseAbnormal, err.Error())
		return
	}

	s.mu.Lock()
	if s.closed {
		code := s.closeCode
		s.mu.Unlock()
		conn.Close()
		h.OnClose(code, "closed while dialing")
		return
	}
	s.conn = conn
	s.mu.Unlock()

	h.OnOpen()
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			h.OnClose(s.codeFor(err), err.Error())
			return
		}
		h.OnMessage(mt, data)
	}
}

func (s *wsSocket) codeFor(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.closeCode
	}
	return CloseAbnormal
}

func (s *wsSocket) Send(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || s.closed {
		return ErrNotReady
	}
	return s.conn.WriteMessage(messageType, data)
}

func (s *wsSocket) Close(code int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.closeCode = code
	if s.conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(code, reason)
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return s.conn.Close()
}
