package hxlive

import (
	"github.com/pthm/hxlive/lib/dom"
)

// Trigger binds a DOM event on elements carrying Attribute to an outbound
// envelope whose type is the attribute's value.
type Trigger struct {
	// Event is the native event listened for. Empty means the trigger fires
	// once when the element is first wired.
	Event     string
	Attribute string

	// Window listens on the window instead of the element.
	Window bool

	// KeyFilter drops events whose key differs from the element's live-key
	// attribute and adds the key and modifiers to the payload.
	KeyFilter bool

	// Form wires the inputs of a form (and the controls that name it with a
	// form attribute) and sends from the form.
	Form bool

	// PreventDefault cancels the native action before any debounce.
	PreventDefault bool

	// Payload builds the event data from the ambient params. Nil sends the
	// params as they are.
	Payload func(w *Wiring, el *dom.Element, ev *dom.Event, params map[string]any) map[string]any

	// Fire replaces the default tracked send.
	Fire func(w *Wiring, el *dom.Element, ev *dom.Event, params map[string]any)
}

// Attributes read by the built-in triggers.
const (
	KeyAttr         = "live-key"
	DebounceAttr    = "live-debounce"
	ValueAttrPrefix = "live-value-"
)

// DefaultTriggers returns the built-in trigger set in wiring order.
func DefaultTriggers() []Trigger {
	return []Trigger{
		{Event: "click", Attribute: "live-click"},
		{Event: "contextmenu", Attribute: "live-contextmenu"},
		{Event: "mousedown", Attribute: "live-mousedown"},
		{Event: "mouseup", Attribute: "live-mouseup"},
		{Event: "focus", Attribute: "live-focus"},
		{Event: "blur", Attribute: "live-blur"},
		{Event: "focus", Attribute: "live-window-focus", Window: true},
		{Event: "blur", Attribute: "live-window-blur", Window: true},
		{Event: "keydown", Attribute: "live-keydown", KeyFilter: true},
		{Event: "keyup", Attribute: "live-keyup", KeyFilter: true},
		{Event: "keyup", Attribute: "live-window-keyup", Window: true, KeyFilter: true},
		{Event: "keydown", Attribute: "live-window-keydown", Window: true, KeyFilter: true},
		{Event: "input", Attribute: "live-change", Form: true, Payload: formPayload},
		{Event: "submit", Attribute: "live-submit", PreventDefault: true, Fire: fireSubmit},
		{Attribute: HookAttr, Fire: fireMount},
		{Event: "click", Attribute: "live-patch", PreventDefault: true, Fire: fireLinkPatch},
	}
}

func keyPayload(ev *dom.Event, params map[string]any) map[string]any {
	params["key"] = ev.Key
	params["altKey"] = ev.AltKey
	params["ctrlKey"] = ev.CtrlKey
	params["shiftKey"] = ev.ShiftKey
	params["metaKey"] = ev.MetaKey
	return params
}

func formPayload(w *Wiring, form *dom.Element, _ *dom.Event, _ map[string]any) map[string]any {
	return w.forms.Serialize(form)
}

func fireMount(w *Wiring, el *dom.Element, _ *dom.Event, _ map[string]any) {
	w.lifecycle.Mounted(el)
}

// fireSubmit posts the form's files first when it has any, so the server
// already holds them when the submit event arrives.
func fireSubmit(w *Wiring, form *dom.Element, _ *dom.Event, params map[string]any) {
	name := form.GetAttribute("live-submit")
	send := func() {
		data := params
		for k, v := range w.forms.Serialize(form) {
			data[k] = v
		}
		w.track("live-submit", form, name, data)
	}

	if !w.forms.HasFiles(form) {
		send()
		return
	}
	w.uploader.Post(w.ctx, form, func(err error) {
		if err != nil {
			w.log.Error("hxlive: form upload failed", "form", form.ID(), "error", err)
			return
		}
		send()
	})
}

func fireLinkPatch(w *Wiring, el *dom.Element, _ *dom.Event, _ map[string]any) {
	href, ok := el.Attr("href")
	if !ok {
		return
	}
	w.LinkPatch(href, el)
}
