// Package dom is an in-memory HTML document with the parts of the browser
// DOM a live page needs: attribute queries, fragment parsing, outer HTML
// replacement, form controls with value/checked/files properties, focus, and
// event listeners. It is built on golang.org/x/net/html.
//
// Nothing in a parsed document executes; script elements are plain nodes.
//
// A Document is not safe for concurrent use. The hxlive runtime only touches
// it from its event loop.
package dom

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is a parsed HTML page.
type Document struct {
	root     *html.Node
	elements map[*html.Node]*Element
	active   *Element
}

// Parse reads a full HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("dom: parse document: %w", err)
	}
	return &Document{
		root:     root,
		elements: make(map[*html.Node]*Element),
	}, nil
}

// ParseString reads a full HTML document from s.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// RenderComponent renders a templ component and parses the output as a
// document.
//
//	doc, err := dom.RenderComponent(ctx, pages.Todos(todos))
func RenderComponent(ctx context.Context, c templ.Component) (*Document, error) {
	var buf bytes.Buffer
	if err := c.Render(ctx, &buf); err != nil {
		return nil, fmt.Errorf("dom: render component: %w", err)
	}
	return Parse(&buf)
}

// Node returns the underlying document node.
func (d *Document) Node() *html.Node {
	return d.root
}

// Wrap returns the Element for n, creating it on first use. The same node
// always maps to the same Element so listeners and properties stick.
func (d *Document) Wrap(n *html.Node) *Element {
	if n == nil {
		return nil
	}
	if el, ok := d.elements[n]; ok {
		return el
	}
	el := &Element{doc: d, node: n}
	d.elements[n] = el
	return el
}

// Tracked returns the number of nodes that currently have an Element.
func (d *Document) Tracked() int {
	return len(d.elements)
}

// insert records that el went into the tree. An el whose subtree was
// forgotten on removal is registered again.
func (d *Document) insert(el *Element) {
	el.siblings = nil
	d.elements[el.node] = el
}

// forget drops the Elements of n and its descendants. Callers still holding
// one keep a working but detached Element.
func (d *Document) forget(n *html.Node) {
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if el, ok := d.elements[n]; ok {
			if d.active == el {
				d.active = nil
			}
			delete(d.elements, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
}

// DocumentElement returns the <html> element.
func (d *Document) DocumentElement() *Element {
	for c := d.root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Html {
			return d.Wrap(c)
		}
	}
	return nil
}

// Head returns the <head> element.
func (d *Document) Head() *Element {
	return d.child(atom.Head)
}

// Body returns the <body> element.
func (d *Document) Body() *Element {
	return d.child(atom.Body)
}

func (d *Document) child(a atom.Atom) *Element {
	root := d.DocumentElement()
	if root == nil {
		return nil
	}
	for c := root.node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == a {
			return d.Wrap(c)
		}
	}
	return nil
}

// QueryAttr returns every element carrying the attribute name, in document
// order.
func (d *Document) QueryAttr(name string) []*Element {
	return d.collect(d.root, func(n *html.Node) bool {
		return hasAttr(n, name)
	})
}

// QueryTag returns every element with one of the given tag names, in
// document order.
func (d *Document) QueryTag(tags ...string) []*Element {
	return d.collect(d.root, tagMatcher(tags))
}

// ByID returns the first element whose id is id.
func (d *Document) ByID(id string) *Element {
	if id == "" {
		return nil
	}
	found := d.collect(d.root, func(n *html.Node) bool {
		v, ok := attr(n, "id")
		return ok && v == id
	})
	if len(found) == 0 {
		return nil
	}
	return found[0]
}

// ActiveElement returns the focused element, or nil when nothing connected
// to the document holds focus.
func (d *Document) ActiveElement() *Element {
	if d.active == nil || !d.active.Connected() {
		return nil
	}
	return d.active
}

// Fragment parses s as the content of a <template> element and returns its
// first element. The other top-level nodes travel with it and are inserted
// alongside it by ReplaceWithNode. When the markup produces no element the
// text is returned as a single text node. Empty input yields nil.
func (d *Document) Fragment(s string) *Element {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	nodes, err := html.ParseFragment(strings.NewReader(s), templateContext())
	if err == nil {
		for _, n := range nodes {
			if n.Type == html.ElementNode {
				el := d.Wrap(n)
				if len(nodes) > 1 {
					el.siblings = nodes
				}
				return el
			}
		}
	}
	return d.Wrap(&html.Node{Type: html.TextNode, Data: s})
}

// HTML renders the whole document.
func (d *Document) HTML() string {
	var buf bytes.Buffer
	if err := html.Render(&buf, d.root); err != nil {
		return ""
	}
	return buf.String()
}

func (d *Document) collect(from *html.Node, match func(*html.Node) bool) []*Element {
	var out []*Element
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && match(c) {
				out = append(out, d.Wrap(c))
			}
			walk(c)
		}
	}
	walk(from)
	return out
}

func templateContext() *html.Node {
	return &html.Node{Type: html.ElementNode, Data: "template", DataAtom: atom.Template}
}

func tagMatcher(tags []string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		for _, t := range tags {
			if strings.EqualFold(n.Data, t) {
				return true
			}
		}
		return false
	}
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}

func hasAttr(n *html.Node, name string) bool {
	_, ok := attr(n, name)
	return ok
}
