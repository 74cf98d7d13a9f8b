package hxlive

import (
	"log/slog"

	"github.com/pthm/hxlive/lib/dom"
	"github.com/pthm/hxlive/lib/protocol"
)

// Lifecycle signals fired on hooked elements.
const (
	SignalMounted       = "live:mounted"
	SignalBeforeUpdate  = "live:beforeupdate"
	SignalUpdated       = "live:updated"
	SignalBeforeDestroy = "live:beforedestroy"
	SignalDestroyed     = "live:destroyed"
	SignalDisconnected  = "live:disconnected"
	SignalReconnected   = "live:reconnected"
)

// Presentation classes set on <body>.
const (
	ClassConnected    = "live-connected"
	ClassDisconnected = "live-disconnected"
	ClassError        = "live-error"
)

// HookAttr names the hook bound to an element.
const HookAttr = "live-hook"

// Hook is a set of lifecycle callbacks. Any of them may be nil.
type Hook struct {
	Mounted       func(*HookContext)
	BeforeUpdate  func(*HookContext)
	Updated       func(*HookContext)
	BeforeDestroy func(*HookContext)
	Destroyed     func(*HookContext)
	Disconnected  func(*HookContext)
	Reconnected   func(*HookContext)
}

// Hooks maps live-hook attribute values to their definitions.
type Hooks map[string]*Hook

// HookContext is what a hook callback sees.
type HookContext struct {
	El *dom.Element

	d *Dispatcher
}

// PushEvent sends e to the server untracked.
func (c *HookContext) PushEvent(e protocol.Envelope) error {
	if c.d.sender == nil {
		return ErrNotReady
	}
	return c.d.sender.Send(e)
}

// HandleEvent subscribes fn to server messages of type name. Every call
// adds a subscriber, so a hook that subscribes in Mounted and is mounted
// twice receives each message twice.
func (c *HookContext) HandleEvent(name string, fn func(payload any)) {
	c.d.Subscribe(name, fn)
}

// DOMExtension lets a third-party DOM library carry its own state from an
// element to the element replacing it.
type DOMExtension interface {
	OnBeforeElUpdated(from, to *dom.Element)
}

// DOMExtensionFunc adapts a function to DOMExtension.
type DOMExtensionFunc func(from, to *dom.Element)

func (f DOMExtensionFunc) OnBeforeElUpdated(from, to *dom.Element) { f(from, to) }

type sender interface {
	Send(protocol.Envelope) error
}

// Dispatcher runs hook callbacks, fires lifecycle signals and routes named
// server messages to subscribers.
type Dispatcher struct {
	host     Host
	hooks    Hooks
	ext      DOMExtension
	sender   sender
	handlers map[string][]func(any)
	log      *slog.Logger
}

func newDispatcher(host Host, hooks Hooks, ext DOMExtension, log *slog.Logger) *Dispatcher {
	if hooks == nil {
		hooks = Hooks{}
	}
	return &Dispatcher{
		host:     host,
		hooks:    hooks,
		ext:      ext,
		handlers: make(map[string][]func(any)),
		log:      log.With("component", "dispatcher"),
	}
}

// Subscribe appends fn to the subscribers of name.
func (d *Dispatcher) Subscribe(name string, fn func(any)) {
	d.handlers[name] = append(d.handlers[name], fn)
}

// HandleEvent delivers a server message to every subscriber of name.
func (d *Dispatcher) HandleEvent(name string, payload any) {
	subs := d.handlers[name]
	if len(subs) == 0 {
		d.log.Debug("hxlive: no subscribers", "event", name)
		return
	}
	for _, fn := range subs {
		fn(payload)
	}
}

// Mounted runs once when a hooked element is first wired.
func (d *Dispatcher) Mounted(el *dom.Element) {
	d.call(el, SignalMounted, func(h *Hook) func(*HookContext) { return h.Mounted })
}

// BeforeUpdate runs before el is changed. next is the parsed incoming markup
// and is handed to the DOM extension.
func (d *Dispatcher) BeforeUpdate(el, next *dom.Element) {
	d.call(el, SignalBeforeUpdate, func(h *Hook) func(*HookContext) { return h.BeforeUpdate })
	if d.ext != nil {
		d.ext.OnBeforeElUpdated(el, next)
	}
}

// Updated runs after el was changed by a patch. For a replace, el is the
// element that left the page.
func (d *Dispatcher) Updated(el *dom.Element) {
	d.call(el, SignalUpdated, func(h *Hook) func(*HookContext) { return h.Updated })
}

// BeforeDestroy runs before el is removed by a patch.
func (d *Dispatcher) BeforeDestroy(el *dom.Element) {
	d.call(el, SignalBeforeDestroy, func(h *Hook) func(*HookContext) { return h.BeforeDestroy })
}

// Destroyed runs after el was removed by a patch.
func (d *Dispatcher) Destroyed(el *dom.Element) {
	d.call(el, SignalDestroyed, func(h *Hook) func(*HookContext) { return h.Destroyed })
}

// Disconnected notifies every hooked element and marks the page
// disconnected.
func (d *Dispatcher) Disconnected() {
	for _, el := range d.host.FindByAttribute(HookAttr) {
		d.call(el, SignalDisconnected, func(h *Hook) func(*HookContext) { return h.Disconnected })
	}
	if body := d.host.Document().Body(); body != nil {
		body.AddClass(ClassDisconnected)
		body.RemoveClass(ClassConnected)
	}
}

// Reconnected notifies every hooked element and marks the page connected.
func (d *Dispatcher) Reconnected() {
	for _, el := range d.host.FindByAttribute(HookAttr) {
		d.call(el, SignalReconnected, func(h *Hook) func(*HookContext) { return h.Reconnected })
	}
	if body := d.host.Document().Body(); body != nil {
		body.RemoveClass(ClassDisconnected)
		body.RemoveClass(ClassError)
		body.AddClass(ClassConnected)
	}
}

// Error marks the page as having received a server error.
func (d *Dispatcher) Error() {
	if body := d.host.Document().Body(); body != nil {
		body.AddClass(ClassError)
	}
}

// call runs the selected callback of el's hook, then fires signal on el.
// Elements without a registered hook are left alone.
func (d *Dispatcher) call(el *dom.Element, signal string, pick func(*Hook) func(*HookContext)) {
	if el == nil || el.IsText() {
		return
	}
	name, ok := el.Attr(HookAttr)
	if !ok {
		return
	}
	hook := d.hooks[name]
	if hook == nil {
		d.log.Debug("hxlive: unknown hook", "hook", name)
		return
	}
	if cb := pick(hook); cb != nil {
		cb(&HookContext{El: el, d: d})
	}
	d.host.DispatchSignal(el, signal, nil)
}
