package hxlive

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/gorilla/websocket"
	"github.com/pthm/hxlive/lib/dom"
	"github.com/pthm/hxlive/lib/protocol"
)

const basicPage = `<html live-rendered><head></head><body>
	<div id="greeting" data-anchor>Hello</div>
	<button id="save" live-click="save" live-value-id="42">Save</button>
</body></html>`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLive(t *testing.T, page string, opts ...Option) *TestLive {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	tl, err := NewTestLive(page, "http://example.com/todos?page=1#top", opts...)
	if err != nil {
		t.Fatalf("NewTestLive() error = %v", err)
	}
	return tl
}

func mustURL(t *testing.T, s string) *url.URL {
	t.Helper()
	u, err := url.Parse(s)
	if err != nil {
		t.Fatalf("url.Parse(%q) error = %v", s, err)
	}
	return u
}

func connect(t *testing.T, tl *TestLive) *PipeSocket {
	t.Helper()
	sock, err := tl.Connect()
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return sock
}

func TestStartRequiresLiveRenderedMarker(t *testing.T) {
	tl := newTestLive(t, `<html><body><button live-click="save">Save</button></body></html>`)

	err := tl.Start(context.Background())
	if err != ErrNotLiveRendered {
		t.Fatalf("Start() error = %v, want ErrNotLiveRendered", err)
	}
	assert.Equal(t, tl.Transport.Dials(), 0)
	assert.Equal(t, tl.Document().QueryAttr("live-click")[0].HasAttribute("live-click-wired"), false)
}

func TestDialURLAndCookie(t *testing.T) {
	tl := newTestLive(t, basicPage)
	if err := tl.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	sock := tl.Transport.Last()
	assert.Equal(t, sock.URL.String(), "ws://example.com/todos?page=1#top")
	assert.Equal(t, tl.Session().State(), StateConnecting)
	assert.Equal(t, tl.Session().Ready(), false)

	id := tl.Session().ID()
	if id == "" {
		t.Fatal("session ID is empty")
	}
	v, ok := tl.Window.Cookie(DefaultCookieName)
	assert.Equal(t, ok, true)
	assert.Equal(t, v, id)

	if len(sock.Cookies) != 1 || sock.Cookies[0].Value != id {
		t.Errorf("handshake cookies = %v, want %s=%s", sock.Cookies, DefaultCookieName, id)
	}
}

func TestSessionIDReusedFromCookie(t *testing.T) {
	tl := newTestLive(t, basicPage, WithCookie("sid", time.Minute))
	tl.Window.SetCookie(&http.Cookie{Name: "sid", Value: "prior-session", Path: "/"})

	connect(t, tl)
	assert.Equal(t, tl.Session().ID(), "prior-session")
}

func TestSocketURLSecure(t *testing.T) {
	u := SocketURL(mustURL(t, "https://user:pw@example.com/a/b?x=1#frag"))
	assert.Equal(t, u.String(), "wss://example.com/a/b?x=1#frag")
}

func TestOpenSendsPingAndMarksConnected(t *testing.T) {
	tl := newTestLive(t, basicPage)
	sock := connect(t, tl)

	assert.Equal(t, tl.Session().Ready(), true)
	assert.Equal(t, tl.Session().State(), StateOpen)

	pings := sock.Sent(protocol.TypePing)
	if len(pings) != 1 {
		t.Fatalf("got %d pings, want 1", len(pings))
	}
	assert.Equal(t, pings[0].ID, uint64(0))
	assert.Equal(t, pings[0].Data, any("/todos"))

	body := tl.Document().Body()
	assert.Equal(t, body.HasClass(ClassConnected), true)
	assert.Equal(t, body.HasClass(ClassDisconnected), false)
}

func TestSendWhileNotReadyIsDropped(t *testing.T) {
	tl := newTestLive(t, basicPage)
	if err := tl.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	sock := tl.Transport.Last()

	err := tl.Session().Send(protocol.New("hello", nil))
	if !IsNotReady(err) {
		t.Errorf("Send() error = %v, want ErrNotReady", err)
	}
	err = tl.Session().SendAndTrack(protocol.Envelope{Type: "hello", ID: 5}, nil)
	if !IsNotReady(err) {
		t.Errorf("SendAndTrack() error = %v, want ErrNotReady", err)
	}
	assert.Equal(t, tl.Session().Pending(), 0)

	sock.Accept()
	assert.Equal(t, len(sock.Sent("hello")), 0)
}

func TestTrackedSendResolvesOnAck(t *testing.T) {
	tl := newTestLive(t, basicPage)
	sock := connect(t, tl)
	el := tl.Document().ByID("greeting")

	acks := 0
	el.AddEventListener(AckSignal, func(*dom.Event) { acks++ })

	e := protocol.Envelope{Type: "poke", ID: tl.NextID()}
	assert.Equal(t, tl.Session().SendAndTrack(e, el), nil)
	assert.Equal(t, tl.Session().IsTracked(e.ID), true)

	sock.Deliver(protocol.Envelope{Type: protocol.TypeAck, ID: e.ID})
	assert.Equal(t, tl.Session().IsTracked(e.ID), false)
	assert.Equal(t, acks, 1)

	// A second ack for the same ID is ignored.
	sock.Deliver(protocol.Envelope{Type: protocol.TypeAck, ID: e.ID})
	assert.Equal(t, acks, 1)
}

func TestDisconnectNotifiedOncePerOutage(t *testing.T) {
	disconnects, reconnects := 0, 0
	hooks := Hooks{"status": {
		Disconnected: func(*HookContext) { disconnects++ },
		Reconnected:  func(*HookContext) { reconnects++ },
	}}
	page := `<html live-rendered><body><div live-hook="status"></div></body></html>`
	tl := newTestLive(t, page, WithHooks(hooks))
	sock := connect(t, tl)
	assert.Equal(t, reconnects, 1)

	sock.Drop(CloseAbnormal)
	assert.Equal(t, disconnects, 1)
	assert.Equal(t, tl.Session().State(), StateReconnecting)
	assert.Equal(t, tl.Document().Body().HasClass(ClassDisconnected), true)

	// The redial fails too: still one notification.
	tl.Loop.Advance(DefaultReconnectDelay)
	assert.Equal(t, tl.Transport.Dials(), 2)
	tl.Transport.Last().Drop(CloseAbnormal)
	assert.Equal(t, disconnects, 1)

	tl.Loop.Advance(DefaultReconnectDelay)
	assert.Equal(t, tl.Transport.Dials(), 3)
	tl.Transport.Last().Accept()
	assert.Equal(t, reconnects, 2)
	assert.Equal(t, tl.Document().Body().HasClass(ClassConnected), true)

	// A new outage notifies again.
	tl.Transport.Last().Drop(CloseAbnormal)
	assert.Equal(t, disconnects, 2)
}

func TestReconnectAfterFixedDelay(t *testing.T) {
	tl := newTestLive(t, basicPage)
	sock := connect(t, tl)

	sock.Drop(CloseAbnormal)
	tl.Loop.Advance(999 * time.Millisecond)
	assert.Equal(t, tl.Transport.Dials(), 1)
	tl.Loop.Advance(time.Millisecond)
	assert.Equal(t, tl.Transport.Dials(), 2)

	// No growth: the next retry is one second later again.
	tl.Transport.Last().Drop(CloseAbnormal)
	tl.Loop.Advance(time.Second)
	assert.Equal(t, tl.Transport.Dials(), 3)

	// The identity survives the reconnect.
	assert.Equal(t, tl.Transport.Last().Cookies[0].Value, tl.Session().ID())
}

func TestReconnectClearsTrackedEvents(t *testing.T) {
	tl := newTestLive(t, basicPage)
	sock := connect(t, tl)

	e := protocol.Envelope{Type: "poke", ID: tl.NextID()}
	tl.Session().SendAndTrack(e, tl.Document().ByID("greeting"))
	assert.Equal(t, tl.Session().Pending(), 1)

	sock.Drop(CloseAbnormal)
	tl.Loop.Advance(time.Second)
	assert.Equal(t, tl.Session().Pending(), 0)
}

func TestGoingAwayDoesNotReconnect(t *testing.T) {
	disconnects := 0
	hooks := Hooks{"status": {Disconnected: func(*HookContext) { disconnects++ }}}
	page := `<html live-rendered><body><div live-hook="status"></div></body></html>`
	tl := newTestLive(t, page, WithHooks(hooks))
	sock := connect(t, tl)

	sock.Drop(CloseGoingAway)
	tl.Loop.Advance(10 * time.Second)
	assert.Equal(t, tl.Transport.Dials(), 1)
	assert.Equal(t, disconnects, 0)
	assert.Equal(t, tl.Session().Ready(), false)
}

func TestCustomReconnectDelay(t *testing.T) {
	tl := newTestLive(t, basicPage, WithReconnectDelay(5*time.Second))
	sock := connect(t, tl)

	sock.Drop(CloseAbnormal)
	tl.Loop.Advance(4 * time.Second)
	assert.Equal(t, tl.Transport.Dials(), 1)
	tl.Loop.Advance(time.Second)
	assert.Equal(t, tl.Transport.Dials(), 2)
}

func TestProtocolErrorKeepsSessionOpen(t *testing.T) {
	tl := newTestLive(t, basicPage)
	sock := connect(t, tl)

	sock.DeliverRaw(websocket.TextMessage, []byte("{not json"))
	sock.DeliverRaw(websocket.TextMessage, []byte(`{"t":"patch","i":0,"d":"nope"}`))
	sock.DeliverRaw(websocket.BinaryMessage, []byte{1, 2, 3})

	assert.Equal(t, tl.Session().Ready(), true)
	closed, _ := sock.Closed()
	assert.Equal(t, closed, false)

	// The session still processes later frames.
	tl.Patch(sock, protocol.Instruction{Anchor: "data-anchor", Action: protocol.Replace, HTML: `<div data-anchor>World</div>`})
	assert.Equal(t, tl.Document().QueryAttr("data-anchor")[0].Text(), "World")
}

func TestParamsUpdatesHistoryOnly(t *testing.T) {
	tl := newTestLive(t, basicPage)
	sock := connect(t, tl)
	before := len(sock.Envelopes())

	sock.Deliver(protocol.New(protocol.TypeParams, "page=2&sort=asc"))
	assert.Equal(t, tl.Window.Location().String(), "http://example.com/todos?page=2&sort=asc")
	assert.Equal(t, len(sock.Envelopes()), before)

	sock.Deliver(protocol.New(protocol.TypeParams, map[string]any{"page": "3"}))
	assert.Equal(t, tl.Window.Location().RawQuery, "page=3")
}

func TestRedirectNavigates(t *testing.T) {
	tl := newTestLive(t, basicPage)
	sock := connect(t, tl)

	var target string
	tl.Window.OnNavigate = func(u *url.URL) { target = u.String() }
	sock.Deliver(protocol.New(protocol.TypeRedirect, "/login?next=todos"))
	assert.Equal(t, target, "http://example.com/login?next=todos")
}

func TestServerErrorMarksPageAndDispatches(t *testing.T) {
	var got any
	hooks := Hooks{"errors": {Mounted: func(ctx *HookContext) {
		ctx.HandleEvent(protocol.TypeError, func(p any) { got = p })
	}}}
	page := `<html live-rendered><body><div live-hook="errors"></div></body></html>`
	tl := newTestLive(t, page, WithHooks(hooks))
	sock := connect(t, tl)

	sock.Deliver(protocol.New(protocol.TypeError, "boom"))
	assert.Equal(t, tl.Document().Body().HasClass(ClassError), true)
	assert.Equal(t, got, any("boom"))

	// A reconnect clears the error state.
	sock.Drop(CloseAbnormal)
	tl.Loop.Advance(time.Second)
	tl.Transport.Last().Accept()
	assert.Equal(t, tl.Document().Body().HasClass(ClassError), false)
}

func TestCloseIsNormalAndFinal(t *testing.T) {
	tl := newTestLive(t, basicPage)
	sock := connect(t, tl)

	tl.Close()
	closed, code := sock.Closed()
	assert.Equal(t, closed, true)
	assert.Equal(t, code, CloseNormal)
	assert.Equal(t, tl.Session().State(), StateClosed)

	sock.Drop(CloseNormal)
	tl.Loop.Advance(10 * time.Second)
	assert.Equal(t, tl.Transport.Dials(), 1)

	if err := tl.Session().Send(protocol.New("late", nil)); err != ErrClosed {
		t.Errorf("Send() after Close error = %v, want ErrClosed", err)
	}
}

func TestStaleSocketCallbacksIgnored(t *testing.T) {
	tl := newTestLive(t, basicPage)
	first := connect(t, tl)

	first.Drop(CloseAbnormal)
	tl.Loop.Advance(time.Second)
	second := tl.Transport.Last()
	second.Accept()

	// Late frames from the first socket change nothing.
	first.Deliver(protocol.New(protocol.TypeRedirect, "/elsewhere"))
	first.Drop(CloseAbnormal)
	assert.Equal(t, tl.Window.Location().Path, "/todos")
	assert.Equal(t, tl.Session().Ready(), true)
	assert.Equal(t, tl.Loop.Timers(), 0)
}

func TestObserverSeesInboundMessages(t *testing.T) {
	var kinds []string
	tl := newTestLive(t, basicPage, WithObserver(func(m protocol.Message) { kinds = append(kinds, m.Kind()) }))
	sock := connect(t, tl)

	tl.Patch(sock)
	sock.Deliver(protocol.New("chart:point", 1))
	assert.Equal(t, kinds, []string{protocol.TypePatch, "chart:point"})
}
