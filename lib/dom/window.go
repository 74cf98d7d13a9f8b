package dom

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
)

// Window is a headless browsing context: one document, a location with
// history, a cookie jar, and window-scoped event listeners.
type Window struct {
	EventTarget

	doc      *Document
	location *url.URL
	history  []*url.URL
	jar      http.CookieJar

	// OnNavigate is called for hard navigations. A nil hook only updates
	// the location.
	OnNavigate func(*url.URL)
}

// NewWindow returns a window showing doc at location. A nil jar is replaced
// by an empty in-memory jar.
func NewWindow(doc *Document, location *url.URL, jar http.CookieJar) *Window {
	if jar == nil {
		// cookiejar.New only fails on a bad PublicSuffixList.
		jar, _ = cookiejar.New(nil)
	}
	loc := *location
	return &Window{
		doc:      doc,
		location: &loc,
		history:  []*url.URL{&loc},
		jar:      jar,
	}
}

// Document returns the current document.
func (w *Window) Document() *Document {
	return w.doc
}

// SetDocument replaces the document, as a navigation does.
func (w *Window) SetDocument(doc *Document) {
	w.doc = doc
}

// FindByAttribute returns every element carrying the attribute name.
func (w *Window) FindByAttribute(name string) []*Element {
	return w.doc.QueryAttr(name)
}

// CreateFromHTML parses markup into a detached node without running it.
func (w *Window) CreateFromHTML(markup string) *Element {
	return w.doc.Fragment(markup)
}

// DispatchSignal fires a custom event named name on el.
func (w *Window) DispatchSignal(el *Element, name string, detail any) {
	ev := NewEvent(name)
	ev.Detail = detail
	el.Dispatch(ev)
}

// Cookie returns the value of the named cookie visible at the current
// location.
func (w *Window) Cookie(name string) (string, bool) {
	for _, c := range w.jar.Cookies(w.location) {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

// SetCookie stores c for the current location.
func (w *Window) SetCookie(c *http.Cookie) {
	w.jar.SetCookies(w.location, []*http.Cookie{c})
}

// CookieJar returns the jar shared with network clients.
func (w *Window) CookieJar() http.CookieJar {
	return w.jar
}

// Location returns a copy of the current location.
func (w *Window) Location() *url.URL {
	loc := *w.location
	return &loc
}

// PushState moves to u, resolved against the current location, without
// loading a new document.
func (w *Window) PushState(u *url.URL) {
	next := w.location.ResolveReference(u)
	w.location = next
	w.history = append(w.history, next)
}

// Navigate performs a hard navigation to u.
func (w *Window) Navigate(u *url.URL) {
	w.PushState(u)
	if w.OnNavigate != nil {
		w.OnNavigate(w.Location())
	}
}

// Back returns to the previous history entry and fires popstate. It reports
// false when there is no previous entry.
func (w *Window) Back() bool {
	if len(w.history) < 2 {
		return false
	}
	w.history = w.history[:len(w.history)-1]
	w.location = w.history[len(w.history)-1]
	ev := NewEvent("popstate")
	w.DispatchEvent(ev)
	return true
}

// History returns the visited locations, oldest first.
func (w *Window) History() []*url.URL {
	out := make([]*url.URL, len(w.history))
	for i, u := range w.history {
		c := *u
		out[i] = &c
	}
	return out
}

// Window returns the window-scoped event target.
func (w *Window) Window() *EventTarget {
	return &w.EventTarget
}
