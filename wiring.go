package hxlive

import (
	"context"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/pthm/hxlive/lib/dom"
	"github.com/pthm/hxlive/lib/protocol"
)

// Wiring attaches trigger listeners to the page. Attach is safe to run any
// number of times: each element is marked with <attribute>-wired the first
// time it is wired and skipped afterwards.
type Wiring struct {
	host      Host
	session   *Session
	lifecycle *Dispatcher
	forms     *FormStore
	uploader  *Uploader
	ids       *protocol.IDGen
	limiter   *limiter
	triggers  []Trigger
	log       *slog.Logger
	ctx       context.Context

	// windowed holds the window listeners of window triggers, so they can
	// be removed once their element leaves the page.
	windowed []windowBinding
}

type windowBinding struct {
	el     *dom.Element
	remove func()
}

func newWiring(host Host, session *Session, lifecycle *Dispatcher, forms *FormStore, uploader *Uploader, ids *protocol.IDGen, loop Loop, log *slog.Logger) *Wiring {
	log = log.With("component", "wiring")
	return &Wiring{
		host:      host,
		session:   session,
		lifecycle: lifecycle,
		forms:     forms,
		uploader:  uploader,
		ids:       ids,
		limiter:   newLimiter(loop, log),
		triggers:  DefaultTriggers(),
		log:       log,
		ctx:       context.Background(),
	}
}

// Attach releases what was held for elements no longer in the page, then
// wires every trigger.
func (w *Wiring) Attach() {
	w.release()
	for _, t := range w.triggers {
		w.attach(t)
	}
}

func (w *Wiring) attach(t Trigger) {
	if t.Form {
		w.attachForms(t)
		return
	}
	for _, el := range w.host.FindByAttribute(t.Attribute) {
		if wired(el, t.Attribute) {
			continue
		}
		if t.Event == "" {
			t.Fire(w, el, nil, nil)
			continue
		}

		if t.Window {
			remove := w.host.Window().Listen(t.Event, w.listener(t, el, el))
			w.windowed = append(w.windowed, windowBinding{el: el, remove: remove})
		} else {
			el.AddEventListener(t.Event, w.listener(t, el, el))
		}
		el.AddEventListener(AckSignal, w.clearLoading(t.Attribute, el))
	}
}

// release removes the window listeners of detached elements and drops
// their held blur sends.
func (w *Wiring) release() {
	w.windowed = slices.DeleteFunc(w.windowed, func(b windowBinding) bool {
		if b.el.Connected() {
			return false
		}
		b.remove()
		return true
	})
	w.limiter.release()
}

// attachForms wires the controls of each form carrying t.Attribute. The
// controls are re-scanned on every pass so inputs patched into a wired form
// are picked up.
func (w *Wiring) attachForms(t Trigger) {
	for _, form := range w.host.FindByAttribute(t.Attribute) {
		if form.Tag() != "form" {
			continue
		}
		if !wired(form, t.Attribute) {
			form.AddEventListener(AckSignal, w.clearLoading(t.Attribute, form))
		}

		controls := form.QueryTag("input", "select", "textarea")
		if id := form.ID(); id != "" {
			for _, el := range w.host.FindByAttribute("form") {
				if el.GetAttribute("form") == id {
					controls = append(controls, el)
				}
			}
		}
		for _, el := range controls {
			if wired(el, t.Attribute) {
				continue
			}
			el.AddEventListener(t.Event, w.listener(t, el, form))
		}
	}
}

// listener returns the handler for t. source is the element whose debounce
// settings apply; el is the element the envelope is sent for.
func (w *Wiring) listener(t Trigger, source, el *dom.Element) dom.Listener {
	return func(ev *dom.Event) {
		if t.PreventDefault {
			ev.PreventDefault()
		}
		if w.limiter.has(source) {
			w.limiter.debounce(t.Attribute, source, func() { w.fire(t, el, ev) })
			return
		}
		w.fire(t, el, ev)
	}
}

func (w *Wiring) fire(t Trigger, el *dom.Element, ev *dom.Event) {
	if t.Window && !el.Connected() {
		return
	}
	name, ok := el.Attr(t.Attribute)
	if !ok {
		return
	}
	if t.KeyFilter {
		if want, ok := el.Attr(KeyAttr); ok && ev.Key != want {
			return
		}
	}

	params := w.Params(el)
	if t.Fire != nil {
		t.Fire(w, el, ev, params)
		return
	}

	data := params
	if t.KeyFilter {
		data = keyPayload(ev, data)
	}
	if t.Payload != nil {
		data = t.Payload(w, el, ev, data)
	}
	w.track(t.Attribute, el, name, data)
}

// track marks el as loading and sends a tracked envelope for it.
func (w *Wiring) track(attribute string, el *dom.Element, typ string, data map[string]any) {
	el.AddClass(attribute + "-loading")
	if err := w.session.SendAndTrack(w.ids.Tracked(typ, data), el); err != nil {
		w.log.Debug("hxlive: trigger send dropped", "trigger", attribute, "type", typ, "error", err)
	}
}

func (w *Wiring) clearLoading(attribute string, el *dom.Element) dom.Listener {
	return func(*dom.Event) {
		el.RemoveClass(attribute + "-loading")
	}
}

// Params returns the ambient parameters of el: the page query merged with
// el's live-value-* attributes. A nil el yields the query alone.
func (w *Wiring) Params(el *dom.Element) map[string]any {
	params := queryParams(w.host.Location().Query())
	if el == nil {
		return params
	}
	for _, a := range el.Attributes() {
		if name, ok := strings.CutPrefix(a.Key, ValueAttrPrefix); ok {
			params[name] = a.Val
		}
	}
	return params
}

// LinkPatch moves the page to href without loading it and asks the server
// to render the new location. With an element the params envelope is
// tracked against it and carries its live-value-* attributes.
func (w *Wiring) LinkPatch(href string, el *dom.Element) {
	u, err := url.Parse(href)
	if err != nil {
		w.log.Error("hxlive: bad patch link", "href", href, "error", err)
		return
	}
	w.host.PushState(u)

	if el == nil {
		if err := w.session.Send(protocol.New(protocol.TypeParams, queryParams(u.Query()))); err != nil {
			w.log.Debug("hxlive: params send dropped", "error", err)
		}
		return
	}
	data := w.Params(el)
	for k, v := range queryParams(u.Query()) {
		data[k] = v
	}
	if err := w.session.SendAndTrack(w.ids.Tracked(protocol.TypeParams, data), el); err != nil {
		w.log.Debug("hxlive: params send dropped", "error", err)
	}
}

// popState tells the server about a back or forward navigation.
func (w *Wiring) popState(*dom.Event) {
	q := queryParams(w.host.Location().Query())
	if err := w.session.Send(w.ids.Tracked(protocol.TypeParams, q)); err != nil {
		w.log.Debug("hxlive: params send dropped", "error", err)
	}
}

// queryParams flattens a query to its last value per key.
func queryParams(q url.Values) map[string]any {
	out := make(map[string]any, len(q))
	for k, vs := range q {
		if len(vs) > 0 {
			out[k] = vs[len(vs)-1]
		}
	}
	return out
}

// wired reports whether el was already wired for attribute, marking it if
// not.
func wired(el *dom.Element, attribute string) bool {
	marker := attribute + "-wired"
	if el.HasAttribute(marker) {
		return true
	}
	el.SetAttribute(marker, "")
	return false
}

type limiterKey struct {
	attribute string
	el        *dom.Element
}

// limiter implements live-debounce. A numeric value delays the send by that
// many milliseconds, restarting on every firing; "blur" holds the latest
// send until the element next loses focus.
type limiter struct {
	loop    Loop
	log     *slog.Logger
	pending map[limiterKey]Timer
	onBlur  map[limiterKey]func()
	blurs   map[*dom.Element]bool
}

func newLimiter(loop Loop, log *slog.Logger) *limiter {
	return &limiter{
		loop:    loop,
		log:     log,
		pending: make(map[limiterKey]Timer),
		onBlur:  make(map[limiterKey]func()),
		blurs:   make(map[*dom.Element]bool),
	}
}

func (l *limiter) has(el *dom.Element) bool {
	return el.HasAttribute(DebounceAttr)
}

func (l *limiter) debounce(attribute string, el *dom.Element, fn func()) {
	key := limiterKey{attribute: attribute, el: el}
	if t, ok := l.pending[key]; ok {
		t.Stop()
		delete(l.pending, key)
	}

	v := strings.TrimSpace(el.GetAttribute(DebounceAttr))
	if v == "blur" {
		l.onBlur[key] = fn
		l.watchBlur(el)
		return
	}

	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		if err != nil {
			l.log.Warn("hxlive: bad debounce value", "value", v, "error", err)
		}
		fn()
		return
	}
	l.pending[key] = l.loop.AfterFunc(time.Duration(ms)*time.Millisecond, func() {
		delete(l.pending, key)
		fn()
	})
}

// watchBlur installs one blur listener per element that flushes every send
// held for it.
func (l *limiter) watchBlur(el *dom.Element) {
	if l.blurs[el] {
		return
	}
	l.blurs[el] = true
	el.AddEventListener("blur", func(*dom.Event) {
		for key, fn := range l.onBlur {
			if key.el == el {
				delete(l.onBlur, key)
				fn()
			}
		}
	})
}

// release forgets blur-held sends of elements that left the page. Their
// blur can no longer fire.
func (l *limiter) release() {
	for el := range l.blurs {
		if !el.Connected() {
			delete(l.blurs, el)
		}
	}
	for key := range l.onBlur {
		if !key.el.Connected() {
			delete(l.onBlur, key)
		}
	}
}
