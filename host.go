package hxlive

import (
	"net/http"
	"net/url"

	"github.com/pthm/hxlive/lib/dom"
)

// Host is the environment a Live page runs in. The runtime never touches a
// browser directly; everything it needs from the page goes through Host.
//
// *dom.Window is the in-memory implementation. Host methods are only called
// from the event loop.
type Host interface {
	// Document returns the live DOM tree.
	Document() *dom.Document

	// FindByAttribute returns the elements carrying the attribute name in
	// document order.
	FindByAttribute(name string) []*dom.Element

	// CreateFromHTML parses markup into a detached node without executing
	// anything. Markup with no element yields a text node; blank markup
	// yields nil.
	CreateFromHTML(markup string) *dom.Element

	// DispatchSignal fires a custom event on el.
	DispatchSignal(el *dom.Element, name string, detail any)

	Cookie(name string) (string, bool)
	SetCookie(c *http.Cookie)

	// CookieJar is shared with the socket dialer and the upload client so
	// both present the session cookie.
	CookieJar() http.CookieJar

	Location() *url.URL
	PushState(u *url.URL)
	Navigate(u *url.URL)

	// Window is the target for window-scoped listeners.
	Window() *dom.EventTarget
}

var _ Host = (*dom.Window)(nil)
