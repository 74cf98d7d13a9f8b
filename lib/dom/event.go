package dom

import "slices"

// Event is a DOM event. Key and the modifier flags are only meaningful for
// keyboard events; Detail carries the payload of custom signals.
type Event struct {
	Type     string
	Target   *Element
	Key      string
	AltKey   bool
	CtrlKey  bool
	ShiftKey bool
	MetaKey  bool
	Detail   any

	defaultPrevented bool
}

// NewEvent creates an event of the given type.
func NewEvent(typ string) *Event {
	return &Event{Type: typ}
}

// KeyEvent creates a keyboard event for key.
func KeyEvent(typ, key string) *Event {
	return &Event{Type: typ, Key: key}
}

// PreventDefault cancels the default action of the event.
func (e *Event) PreventDefault() {
	e.defaultPrevented = true
}

// DefaultPrevented reports whether a listener called PreventDefault.
func (e *Event) DefaultPrevented() bool {
	return e.defaultPrevented
}

// Listener handles an event.
type Listener func(*Event)

// EventTarget holds listeners keyed by event type. Events do not bubble.
// The zero value is ready to use.
type EventTarget struct {
	listeners map[string][]registered
	next      uint64
}

type registered struct {
	id uint64
	fn Listener
}

// AddEventListener registers fn for events of type typ. Registering the same
// function twice delivers the event twice.
func (t *EventTarget) AddEventListener(typ string, fn Listener) {
	t.Listen(typ, fn)
}

// Listen registers fn like AddEventListener and returns a func that removes
// it again. Calling the returned func more than once does nothing.
func (t *EventTarget) Listen(typ string, fn Listener) (remove func()) {
	if t.listeners == nil {
		t.listeners = make(map[string][]registered)
	}
	t.next++
	id := t.next
	t.listeners[typ] = append(t.listeners[typ], registered{id: id, fn: fn})
	return func() {
		t.listeners[typ] = slices.DeleteFunc(t.listeners[typ], func(r registered) bool {
			return r.id == id
		})
		if len(t.listeners[typ]) == 0 {
			delete(t.listeners, typ)
		}
	}
}

// DispatchEvent runs the listeners registered for ev.Type in registration
// order and reports whether the default action should proceed. Listeners
// added while dispatching are not called for this event.
func (t *EventTarget) DispatchEvent(ev *Event) bool {
	current := t.listeners[ev.Type]
	if len(current) == 0 {
		return !ev.defaultPrevented
	}
	snapshot := slices.Clone(current)
	for _, r := range snapshot {
		r.fn(ev)
	}
	return !ev.defaultPrevented
}

// ListenerCount returns the number of listeners registered for typ.
func (t *EventTarget) ListenerCount(typ string) int {
	return len(t.listeners[typ])
}
