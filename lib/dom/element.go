package dom

import (
	"bytes"
	"slices"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Element wraps one node of a Document. Text nodes produced by
// Document.Fragment are also wrapped so they can be inserted like elements.
//
// Form control state (value, checked, files) lives on the Element, the way
// browser properties shadow the markup attributes they were parsed from.
type Element struct {
	EventTarget

	doc  *Document
	node *html.Node

	value   *string
	checked *bool
	files   []File

	// siblings holds every top-level node of the fragment e was parsed
	// from, e included, until e is inserted.
	siblings []*html.Node
}

// Node returns the underlying node.
func (e *Element) Node() *html.Node {
	return e.node
}

// Document returns the owning document.
func (e *Element) Document() *Document {
	return e.doc
}

// IsText reports whether e wraps a text node.
func (e *Element) IsText() bool {
	return e.node.Type == html.TextNode
}

// Tag returns the lower-case tag name, or "" for text nodes.
func (e *Element) Tag() string {
	if e.node.Type != html.ElementNode {
		return ""
	}
	return strings.ToLower(e.node.Data)
}

// ---- attributes ----

// Attr returns the value of the named attribute and whether it is present.
func (e *Element) Attr(name string) (string, bool) {
	return attr(e.node, name)
}

// GetAttribute returns the named attribute, or "" when it is absent.
func (e *Element) GetAttribute(name string) string {
	v, _ := attr(e.node, name)
	return v
}

// HasAttribute reports whether the named attribute is present.
func (e *Element) HasAttribute(name string) bool {
	return hasAttr(e.node, name)
}

// SetAttribute adds or updates an attribute.
func (e *Element) SetAttribute(name, value string) {
	for i, a := range e.node.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, name) {
			e.node.Attr[i].Val = value
			return
		}
	}
	e.node.Attr = append(e.node.Attr, html.Attribute{Key: strings.ToLower(name), Val: value})
}

// RemoveAttribute deletes an attribute if present.
func (e *Element) RemoveAttribute(name string) {
	e.node.Attr = slices.DeleteFunc(e.node.Attr, func(a html.Attribute) bool {
		return a.Namespace == "" && strings.EqualFold(a.Key, name)
	})
}

// Attributes returns a copy of the element's attributes in source order.
func (e *Element) Attributes() []html.Attribute {
	return slices.Clone(e.node.Attr)
}

// ID returns the id attribute.
func (e *Element) ID() string {
	return e.GetAttribute("id")
}

// ---- class list ----

// Classes returns the class list.
func (e *Element) Classes() []string {
	return strings.Fields(e.GetAttribute("class"))
}

// HasClass reports whether the class list contains c.
func (e *Element) HasClass(c string) bool {
	return slices.Contains(e.Classes(), c)
}

// AddClass appends c to the class list unless it is already there.
func (e *Element) AddClass(c string) {
	classes := e.Classes()
	if slices.Contains(classes, c) {
		return
	}
	e.SetAttribute("class", strings.Join(append(classes, c), " "))
}

// RemoveClass removes every occurrence of c from the class list.
func (e *Element) RemoveClass(c string) {
	if !e.HasAttribute("class") {
		return
	}
	classes := slices.DeleteFunc(e.Classes(), func(s string) bool { return s == c })
	e.SetAttribute("class", strings.Join(classes, " "))
}

// ---- tree ----

// Parent returns the parent element, or nil at the top of the tree.
func (e *Element) Parent() *Element {
	p := e.node.Parent
	if p == nil || p.Type != html.ElementNode {
		return nil
	}
	return e.doc.Wrap(p)
}

// Children returns the element children in order.
func (e *Element) Children() []*Element {
	var out []*Element
	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, e.doc.Wrap(c))
		}
	}
	return out
}

// Connected reports whether e is attached to its document.
func (e *Element) Connected() bool {
	for n := e.node; n != nil; n = n.Parent {
		if n == e.doc.root {
			return true
		}
	}
	return false
}

// Contains reports whether other is e or one of its descendants.
func (e *Element) Contains(other *Element) bool {
	for n := other.node; n != nil; n = n.Parent {
		if n == e.node {
			return true
		}
	}
	return false
}

// Append inserts child as the last child of e. A child that already has a
// parent is moved.
func (e *Element) Append(child *Element) {
	detach(child.node)
	e.node.AppendChild(child.node)
	e.doc.insert(child)
}

// Prepend inserts child as the first child of e.
func (e *Element) Prepend(child *Element) {
	detach(child.node)
	e.node.InsertBefore(child.node, e.node.FirstChild)
	e.doc.insert(child)
}

// Remove detaches e from the tree and drops the Elements of its
// descendants. e itself stays usable and is picked up again when inserted.
func (e *Element) Remove() {
	detach(e.node)
	e.doc.forget(e.node)
}

// ReplaceWith parses markup and puts the resulting nodes where e was,
// removing e. It returns the first element produced, or nil when the markup
// is empty or produced only text. A detached element is left untouched.
func (e *Element) ReplaceWith(markup string) *Element {
	if e.node.Parent == nil {
		return nil
	}
	repl := e.doc.Fragment(markup)
	if repl == nil {
		e.Remove()
		return nil
	}
	e.ReplaceWithNode(repl)
	if repl.IsText() {
		return nil
	}
	return repl
}

// ReplaceWithNode puts repl where e was and removes e. repl is inserted
// as is, so state set on it before the call is what ends up in the page.
// A repl from Document.Fragment brings its sibling nodes along. A detached
// e is left untouched.
func (e *Element) ReplaceWithNode(repl *Element) {
	parent := e.node.Parent
	if parent == nil || repl == e {
		return
	}
	nodes := repl.siblings
	if len(nodes) == 0 {
		nodes = []*html.Node{repl.node}
	}
	for _, n := range nodes {
		detach(n)
		parent.InsertBefore(n, e.node)
	}
	e.Remove()
	e.doc.insert(repl)
}

// Query returns the descendants carrying the attribute name.
func (e *Element) Query(name string) []*Element {
	return e.doc.collect(e.node, func(n *html.Node) bool {
		return hasAttr(n, name)
	})
}

// QueryTag returns the descendants with one of the given tag names.
func (e *Element) QueryTag(tags ...string) []*Element {
	return e.doc.collect(e.node, tagMatcher(tags))
}

// QueryName returns the first descendant whose name attribute is name.
func (e *Element) QueryName(name string) *Element {
	found := e.doc.collect(e.node, func(n *html.Node) bool {
		v, ok := attr(n, "name")
		return ok && v == name
	})
	if len(found) == 0 {
		return nil
	}
	return found[0]
}

// ---- markup ----

// OuterHTML renders e including its own tag.
func (e *Element) OuterHTML() string {
	var buf bytes.Buffer
	if err := html.Render(&buf, e.node); err != nil {
		return ""
	}
	return buf.String()
}

// InnerHTML renders the children of e.
func (e *Element) InnerHTML() string {
	var buf bytes.Buffer
	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return ""
		}
	}
	return buf.String()
}

// SetInnerHTML replaces the children of e with the parsed markup.
func (e *Element) SetInnerHTML(markup string) error {
	nodes, err := html.ParseFragment(strings.NewReader(markup), e.node)
	if err != nil {
		return err
	}
	for c := e.node.FirstChild; c != nil; c = e.node.FirstChild {
		e.node.RemoveChild(c)
		e.doc.forget(c)
	}
	for _, n := range nodes {
		e.node.AppendChild(n)
	}
	return nil
}

// Text returns the concatenated text content of e.
func (e *Element) Text() string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(e.node)
	return sb.String()
}

// ---- form controls ----

// Name returns the name attribute.
func (e *Element) Name() string {
	return e.GetAttribute("name")
}

// Disabled reports whether the control carries the disabled attribute.
func (e *Element) Disabled() bool {
	return e.HasAttribute("disabled")
}

// Type returns the control type the way HTMLInputElement.type does:
// lower-case, defaulting to "text" for inputs.
func (e *Element) Type() string {
	switch e.node.DataAtom {
	case atom.Input:
		if t := strings.ToLower(e.GetAttribute("type")); t != "" {
			return t
		}
		return "text"
	case atom.Textarea:
		return "textarea"
	case atom.Select:
		if e.HasAttribute("multiple") {
			return "select-multiple"
		}
		return "select-one"
	case atom.Button:
		if t := strings.ToLower(e.GetAttribute("type")); t != "" {
			return t
		}
		return "submit"
	}
	return ""
}

// Value returns the current value of a form control. Until SetValue is
// called it is derived from the markup.
func (e *Element) Value() string {
	if e.node.DataAtom == atom.Select {
		if sel := e.SelectedOptions(); len(sel) > 0 {
			return optionValue(sel[0])
		}
		return ""
	}
	if e.value != nil {
		return *e.value
	}
	switch e.node.DataAtom {
	case atom.Textarea:
		return e.Text()
	case atom.Option:
		return optionValue(e)
	}
	if v, ok := e.Attr("value"); ok {
		return v
	}
	switch e.Type() {
	case "checkbox", "radio":
		return "on"
	}
	return ""
}

// SetValue sets the current value. On a select it selects the options
// whose value is v and deselects the rest.
func (e *Element) SetValue(v string) {
	if e.node.DataAtom == atom.Select {
		for _, o := range e.options() {
			o.setSelected(optionValue(o) == v)
		}
		return
	}
	e.value = &v
}

// Checked reports the checkedness of a checkbox or radio.
func (e *Element) Checked() bool {
	if e.checked != nil {
		return *e.checked
	}
	return e.HasAttribute("checked")
}

// SetChecked sets the checkedness. Checking a radio unchecks the other
// radios of the same name in the same form.
func (e *Element) SetChecked(on bool) {
	e.checked = &on
	if !on || e.Type() != "radio" || e.Name() == "" {
		return
	}
	form := e.Form()
	for _, other := range e.doc.QueryTag("input") {
		if other != e && other.Type() == "radio" && other.Name() == e.Name() && other.Form() == form {
			off := false
			other.checked = &off
		}
	}
}

// Files returns the files selected in a file input.
func (e *Element) Files() []File {
	return slices.Clone(e.files)
}

// SetFiles replaces the files selected in a file input.
func (e *Element) SetFiles(files ...File) {
	e.files = slices.Clone(files)
}

// SelectedOptions returns the selected options of a select element. A
// single select with nothing explicitly selected reports its first enabled
// option.
func (e *Element) SelectedOptions() []*Element {
	opts := e.options()
	var out []*Element
	for _, o := range opts {
		if o.selected() {
			out = append(out, o)
		}
	}
	if len(out) == 0 && !e.HasAttribute("multiple") {
		for _, o := range opts {
			if !o.Disabled() {
				return []*Element{o}
			}
		}
	}
	return out
}

func (e *Element) options() []*Element {
	return e.QueryTag("option")
}

func (e *Element) selected() bool {
	if e.checked != nil {
		return *e.checked
	}
	return e.HasAttribute("selected")
}

func (e *Element) setSelected(on bool) {
	e.checked = &on
}

func optionValue(o *Element) string {
	if v, ok := o.Attr("value"); ok {
		return v
	}
	return strings.TrimSpace(o.Text())
}

// Form returns the form owning the control: the form named by its form
// attribute, or else the nearest ancestor form.
func (e *Element) Form() *Element {
	if id, ok := e.Attr("form"); ok {
		f := e.doc.ByID(id)
		if f != nil && f.node.DataAtom == atom.Form {
			return f
		}
		return nil
	}
	for n := e.node.Parent; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && n.DataAtom == atom.Form {
			return e.doc.Wrap(n)
		}
	}
	return nil
}

// ---- focus and events ----

// Focus makes e the active element, firing blur on the previously focused
// element and focus on e. Focusing the active element does nothing.
func (e *Element) Focus() {
	prev := e.doc.ActiveElement()
	if prev == e {
		return
	}
	e.doc.active = e
	if prev != nil {
		prev.Dispatch(NewEvent("blur"))
	}
	e.Dispatch(NewEvent("focus"))
}

// Blur removes focus from e if it holds it.
func (e *Element) Blur() {
	if e.doc.active != e {
		return
	}
	e.doc.active = nil
	e.Dispatch(NewEvent("blur"))
}

// Focused reports whether e is the active element.
func (e *Element) Focused() bool {
	return e.doc.ActiveElement() == e
}

// Dispatch fires ev on e and reports whether the default action should
// proceed.
func (e *Element) Dispatch(ev *Event) bool {
	ev.Target = e
	return e.DispatchEvent(ev)
}

// Click fires a click event.
func (e *Element) Click() bool {
	return e.Dispatch(NewEvent("click"))
}

// KeyDown fires a keydown event for key.
func (e *Element) KeyDown(key string) bool {
	return e.Dispatch(KeyEvent("keydown", key))
}

// KeyUp fires a keyup event for key.
func (e *Element) KeyUp(key string) bool {
	return e.Dispatch(KeyEvent("keyup", key))
}

// Input sets the value and fires an input event, as typing does.
func (e *Element) Input(v string) bool {
	e.SetValue(v)
	return e.Dispatch(NewEvent("input"))
}

// Submit fires a submit event on a form.
func (e *Element) Submit() bool {
	return e.Dispatch(NewEvent("submit"))
}

func detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}
