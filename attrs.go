package hxlive

import (
	"fmt"
	"strconv"
	"time"

	"github.com/a-h/templ"
)

// Binding builds the live-* attributes that wire an element to a server
// event, for pages rendered with templ:
//
//	<button { hxlive.Click("save").Value("id", item.ID).Attrs()... }>Save</button>
//	<input { hxlive.KeyUp("search").Key("Enter").Debounce(300 * time.Millisecond).Attrs()... }/>
type Binding struct {
	attribute string
	event     string
	values    [][2]string
	key       string
	debounce  string
}

// On binds event to the trigger attribute, e.g. On("live-mousedown", "drag").
func On(attribute, event string) *Binding {
	return &Binding{attribute: attribute, event: event}
}

func Click(event string) *Binding   { return On("live-click", event) }
func KeyUp(event string) *Binding   { return On("live-keyup", event) }
func KeyDown(event string) *Binding { return On("live-keydown", event) }
func Submit(event string) *Binding  { return On("live-submit", event) }
func Change(event string) *Binding  { return On("live-change", event) }

// Value adds a live-value-<name> parameter. Values are formatted with
// fmt.Sprint.
func (b *Binding) Value(name string, v any) *Binding {
	b.values = append(b.values, [2]string{name, fmt.Sprint(v)})
	return b
}

// Key restricts a key trigger to one key.
func (b *Binding) Key(key string) *Binding {
	b.key = key
	return b
}

// Debounce delays the send until d has passed without another firing.
func (b *Binding) Debounce(d time.Duration) *Binding {
	b.debounce = strconv.FormatInt(d.Milliseconds(), 10)
	return b
}

// DebounceBlur holds the send until the element loses focus.
func (b *Binding) DebounceBlur() *Binding {
	b.debounce = "blur"
	return b
}

// Attrs returns the attributes to spread on the element.
func (b *Binding) Attrs() templ.Attributes {
	attrs := templ.Attributes{b.attribute: b.event}
	for _, v := range b.values {
		attrs[ValueAttrPrefix+v[0]] = v[1]
	}
	if b.key != "" {
		attrs[KeyAttr] = b.key
	}
	if b.debounce != "" {
		attrs[DebounceAttr] = b.debounce
	}
	return attrs
}

// PatchLink returns the attributes of a link that moves the page to href
// without reloading it.
func PatchLink(href string) templ.Attributes {
	return templ.Attributes{"href": href, "live-patch": true}
}

// HookAttrs binds the named hook to an element.
func HookAttrs(name string) templ.Attributes {
	return templ.Attributes{HookAttr: name}
}

// AnchorAttrs marks an element as the patch anchor name.
func AnchorAttrs(name string) templ.Attributes {
	return templ.Attributes{name: true}
}

// RenderedAttrs marks the root element of a live-rendered page.
func RenderedAttrs() templ.Attributes {
	return templ.Attributes{RenderedAttr: true}
}
