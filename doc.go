// Package hxlive is the client runtime of a server-driven UI. A page rendered
// by the server as plain HTML is kept live over a WebSocket: user events are
// sent to the server as small envelopes, and the server answers with patches
// that replace, append to or prepend to marked parts of the page.
//
// The runtime never talks to a browser. Everything it needs from the page
// goes through Host, implemented in memory by *dom.Window, so a live page
// can be driven from a CLI, a crawler or a test.
//
// # Core Concepts
//
// A page opts in by carrying the live-rendered attribute. Live wires the
// page, dials the socket derived from the page location and re-dials after a
// fixed delay when the connection drops:
//
//	doc, _ := dom.Parse(resp.Body)
//	win := dom.NewWindow(doc, pageURL, jar)
//	live := hxlive.New(win, hxlive.WithLogger(logger))
//	if err := live.Start(ctx); err != nil { ... }
//	defer live.Close()
//
// Elements bind DOM events to server events through attributes. The
// attribute value is the envelope type sent when the event fires:
//
//	<button live-click="save" live-value-id="42">Save</button>
//	<input live-keyup="search" live-key="Enter" live-debounce="300">
//	<form id="todo" live-submit="add">...</form>
//
// Sends are tracked: the element gets a <trigger>-loading class until the
// server acknowledges the envelope.
//
// # Patches
//
// The server patches the page by anchor, an attribute carried by exactly
// one element. Instructions apply in order; a missing anchor skips only
// that instruction. Form values and focus survive patches for forms that
// have an id.
//
// # Hooks
//
// Elements with live-hook run Go callbacks through their lifecycle:
//
//	hooks := hxlive.Hooks{"chart": {
//	    Mounted: func(ctx *hxlive.HookContext) {
//	        ctx.HandleEvent("points", func(p any) { ... })
//	    },
//	}}
//
// Every callback is also fired as a live:<name> signal on the element.
//
// # Concurrency
//
// All runtime work happens on one Loop. Socket callbacks, timers and
// listeners are posted to it, so runtime state is never locked. Code outside
// the loop touches the page through Live.Do.
//
// # Testing
//
// NewTestLive runs a page over a ManualLoop and a PipeTransport, so tests
// drive the socket and the clock by hand:
//
//	tl, _ := hxlive.NewTestLive(page, "http://example.com/todos")
//	sock, _ := tl.Connect()
//	tl.Document().ByID("save").Click()
//	sent := sock.Sent("save")
package hxlive
