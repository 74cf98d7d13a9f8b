package dom

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/a-h/templ"
	"github.com/go-playground/assert/v2"
)

func mustURL(t *testing.T, s string) *url.URL {
	t.Helper()
	u, err := url.Parse(s)
	if err != nil {
		t.Fatalf("url.Parse(%q) error = %v", s, err)
	}
	return u
}

func mustParse(t *testing.T, s string) *Document {
	t.Helper()
	doc, err := ParseString(s)
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}
	return doc
}

func TestParseAndQuery(t *testing.T) {
	doc := mustParse(t, `<html live-rendered><body>
		<div id="a" data-anchor>one</div>
		<p data-anchor>two</p>
		<span>three</span>
	</body></html>`)

	assert.Equal(t, doc.DocumentElement().HasAttribute("live-rendered"), true)
	assert.Equal(t, doc.Body().Tag(), "body")
	assert.Equal(t, doc.Head().Tag(), "head")

	found := doc.QueryAttr("data-anchor")
	assert.Equal(t, len(found), 2)
	assert.Equal(t, found[0].Tag(), "div")
	assert.Equal(t, found[1].Tag(), "p")

	if doc.ByID("a") != found[0] {
		t.Error("ByID(\"a\") did not return the first anchor")
	}
	assert.Equal(t, doc.ByID("missing") == nil, true)
	assert.Equal(t, len(doc.QueryTag("span", "p")), 2)
}

func TestWrapIsStable(t *testing.T) {
	doc := mustParse(t, `<body><div id="x"></div></body>`)
	a := doc.ByID("x")
	b := doc.QueryAttr("id")[0]
	if a != b {
		t.Error("Wrap() returned different elements for the same node")
	}
}

func TestRenderComponent(t *testing.T) {
	page := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<html live-rendered><body><h1>Todos</h1></body></html>`)
		return err
	})

	doc, err := RenderComponent(context.Background(), page)
	assert.Equal(t, err, nil)
	assert.Equal(t, doc.Body().Text(), "Todos")

	broken := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return errors.New("boom")
	})
	_, err = RenderComponent(context.Background(), broken)
	assert.NotEqual(t, err, nil)
}

func TestFragment(t *testing.T) {
	doc := mustParse(t, `<body></body>`)

	el := doc.Fragment(`  <li class="x">B</li>  `)
	assert.Equal(t, el.Tag(), "li")
	assert.Equal(t, el.Connected(), false)

	txt := doc.Fragment("just text")
	assert.Equal(t, txt.IsText(), true)
	assert.Equal(t, txt.Text(), "just text")

	if doc.Fragment("   ") != nil {
		t.Error("Fragment() of blank markup should be nil")
	}

	// Table rows parse inside a template context.
	row := doc.Fragment(`<tr><td>1</td></tr>`)
	assert.Equal(t, row.Tag(), "tr")
}

func TestAttributesAndClasses(t *testing.T) {
	doc := mustParse(t, `<body><button id="b" class="btn">Go</button></body>`)
	b := doc.ByID("b")

	b.SetAttribute("live-click-wired", "")
	assert.Equal(t, b.HasAttribute("live-click-wired"), true)

	b.AddClass("live-click-loading")
	b.AddClass("live-click-loading")
	assert.Equal(t, b.Classes(), []string{"btn", "live-click-loading"})

	b.RemoveClass("live-click-loading")
	assert.Equal(t, b.HasClass("live-click-loading"), false)
	assert.Equal(t, b.HasClass("btn"), true)

	b.RemoveAttribute("live-click-wired")
	assert.Equal(t, b.HasAttribute("live-click-wired"), false)
}

func TestReplaceWith(t *testing.T) {
	doc := mustParse(t, `<body><ul><li id="a" data-anchor>Hello</li><li>Keep</li></ul></body>`)
	old := doc.ByID("a")

	repl := old.ReplaceWith(`<li id="a" data-anchor>World</li>`)
	assert.Equal(t, repl.Text(), "World")
	assert.Equal(t, repl.Connected(), true)
	assert.Equal(t, old.Connected(), false)
	assert.Equal(t, doc.Body().Text(), "WorldKeep")

	if got := repl.ReplaceWith(""); got != nil {
		t.Errorf("ReplaceWith(\"\") = %v, want nil", got)
	}
	assert.Equal(t, doc.Body().Text(), "Keep")
}

func TestReplaceWithNodeInsertsThatNode(t *testing.T) {
	doc := mustParse(t, `<body><div id="a">old</div></body>`)
	old := doc.ByID("a")

	repl := doc.Fragment(`<input id="a" value="x"><span>tail</span>`)
	repl.SetValue("kept")
	repl.SetAttribute("data-state", "open")
	old.ReplaceWithNode(repl)

	live := doc.ByID("a")
	if live != repl {
		t.Fatal("ByID() should return the inserted Element")
	}
	assert.Equal(t, live.Value(), "kept")
	assert.Equal(t, live.GetAttribute("data-state"), "open")
	assert.Equal(t, doc.Body().Text(), "tail")
	assert.Equal(t, old.Connected(), false)
}

func TestRemovedSubtreeIsForgotten(t *testing.T) {
	doc := mustParse(t, `<body><ul id="l"><li><b>x</b></li></ul></body>`)
	doc.Body()
	base := doc.Tracked()

	for i := 0; i < 100; i++ {
		ul := doc.ByID("l")
		ul.QueryTag("li", "b")
		ul.ReplaceWith(`<ul id="l"><li><b>y</b></li></ul>`)
	}
	doc.ByID("l").Remove()
	assert.Equal(t, doc.Tracked(), base)

	d := doc.Body()
	d.SetInnerHTML(`<p id="p">a</p>`)
	doc.ByID("p")
	d.SetInnerHTML(`<p id="p">b</p>`)
	assert.Equal(t, doc.Tracked(), base)
}

func TestRemovedElementKeepsIdentityWhenInsertedAgain(t *testing.T) {
	doc := mustParse(t, `<body><div id="a"></div><div id="b"></div></body>`)
	a := doc.ByID("a")
	a.Remove()
	doc.ByID("b").Append(a)
	if doc.ByID("a") != a {
		t.Error("ByID() should return the re-inserted Element")
	}
}

func TestAppendPrepend(t *testing.T) {
	doc := mustParse(t, `<body><ul id="l"><li>A</li></ul></body>`)
	ul := doc.ByID("l")

	ul.Append(doc.Fragment(`<li>B</li>`))
	ul.Prepend(doc.Fragment(`<li>Z</li>`))

	var got []string
	for _, li := range ul.Children() {
		got = append(got, li.Text())
	}
	assert.Equal(t, got, []string{"Z", "A", "B"})
	assert.Equal(t, ul.InnerHTML(), "<li>Z</li><li>A</li><li>B</li>")
}

func TestInnerHTML(t *testing.T) {
	doc := mustParse(t, `<body><div id="d"><p>x</p></div></body>`)
	d := doc.ByID("d")
	assert.Equal(t, d.SetInnerHTML(`<b>y</b>`), nil)
	assert.Equal(t, d.OuterHTML(), `<div id="d"><b>y</b></div>`)
}

func TestValueAndChecked(t *testing.T) {
	doc := mustParse(t, `<body><form id="f">
		<input name="x" value="initial">
		<input type="checkbox" name="c">
		<input type="checkbox" name="d" value="yes" checked>
		<textarea name="t">note</textarea>
		<select name="s"><option>one</option><option value="2" selected>two</option></select>
		<input type="radio" name="r" value="a" checked>
		<input type="radio" name="r" value="b">
	</form></body>`)
	f := doc.ByID("f")

	x := f.QueryName("x")
	assert.Equal(t, x.Value(), "initial")
	x.SetValue("typed")
	assert.Equal(t, x.Value(), "typed")
	assert.Equal(t, x.GetAttribute("value"), "initial")

	c := f.QueryName("c")
	assert.Equal(t, c.Value(), "on")
	assert.Equal(t, c.Checked(), false)
	c.SetChecked(true)
	assert.Equal(t, c.Checked(), true)

	assert.Equal(t, f.QueryName("d").Checked(), true)
	assert.Equal(t, f.QueryName("t").Value(), "note")
	assert.Equal(t, f.QueryName("t").Type(), "textarea")

	s := f.QueryName("s")
	assert.Equal(t, s.Value(), "2")
	s.SetValue("one")
	assert.Equal(t, s.Value(), "one")

	radios := f.QueryTag("input")[3:]
	radios[1].SetChecked(true)
	assert.Equal(t, radios[0].Checked(), false)
	assert.Equal(t, radios[1].Checked(), true)
}

func TestFormData(t *testing.T) {
	doc := mustParse(t, `<body>
		<form id="f">
			<input name="title" value="Milk">
			<input name="tag" value="a">
			<input name="tag" value="b">
			<input type="checkbox" name="done">
			<input type="checkbox" name="starred" checked>
			<input name="off" value="x" disabled>
			<input value="unnamed">
			<input type="submit" name="go" value="Go">
			<input type="file" name="avatar">
			<input type="file" name="empty">
		</form>
		<input form="f" name="outside" value="yes">
		<input name="other" value="no">
	</body>`)
	f := doc.ByID("f")
	f.QueryName("avatar").SetFiles(NewFile("me.png", "image/png", []byte("png")))

	fd := NewFormData(f)

	v, ok := fd.Get("title")
	assert.Equal(t, ok, true)
	assert.Equal(t, v, "Milk")
	assert.Equal(t, fd.Values("tag"), []string{"a", "b"})
	assert.Equal(t, fd.Values("starred"), []string{"on"})
	assert.Equal(t, fd.Values("outside"), []string{"yes"})

	for _, name := range []string{"done", "off", "go", "other"} {
		if _, ok := fd.Get(name); ok {
			t.Errorf("FormData contains %q", name)
		}
	}

	var files []*File
	for _, e := range fd {
		if e.File != nil {
			files = append(files, e.File)
		}
	}
	if len(files) != 2 {
		t.Fatalf("got %d file entries, want 2", len(files))
	}
	assert.Equal(t, files[0].Name, "me.png")
	assert.Equal(t, files[0].Size, int64(3))
	assert.Equal(t, files[1].Type, "application/octet-stream")
	assert.Equal(t, fd.HasFiles(), true)
}

func TestFocusAndBlur(t *testing.T) {
	doc := mustParse(t, `<body><input id="a"><input id="b"></body>`)
	a, b := doc.ByID("a"), doc.ByID("b")

	var log []string
	a.AddEventListener("focus", func(*Event) { log = append(log, "a:focus") })
	a.AddEventListener("blur", func(*Event) { log = append(log, "a:blur") })
	b.AddEventListener("focus", func(*Event) { log = append(log, "b:focus") })

	a.Focus()
	a.Focus()
	b.Focus()
	assert.Equal(t, log, []string{"a:focus", "a:blur", "b:focus"})
	if doc.ActiveElement() != b {
		t.Error("ActiveElement() should be b")
	}

	b.Remove()
	if doc.ActiveElement() != nil {
		t.Error("ActiveElement() should be nil once the focused element is detached")
	}
}

func TestListenRemove(t *testing.T) {
	var target EventTarget
	calls := 0
	remove := target.Listen("keydown", func(*Event) { calls++ })
	target.AddEventListener("keydown", func(*Event) { calls += 10 })

	target.DispatchEvent(NewEvent("keydown"))
	remove()
	remove()
	target.DispatchEvent(NewEvent("keydown"))
	assert.Equal(t, calls, 21)
	assert.Equal(t, target.ListenerCount("keydown"), 1)
}

func TestEventDispatch(t *testing.T) {
	doc := mustParse(t, `<body><a id="l" href="/x">x</a></body>`)
	l := doc.ByID("l")

	calls := 0
	l.AddEventListener("click", func(ev *Event) {
		calls++
		if ev.Target != l {
			t.Error("Target should be the link")
		}
		ev.PreventDefault()
		// Listeners added during dispatch only see later events.
		l.AddEventListener("click", func(*Event) { calls += 10 })
	})

	assert.Equal(t, l.Click(), false)
	assert.Equal(t, calls, 1)
	assert.Equal(t, l.ListenerCount("click"), 2)

	ok := l.KeyDown("Enter")
	assert.Equal(t, ok, true)
}

func TestWindowLocationAndCookies(t *testing.T) {
	doc := mustParse(t, `<body></body>`)
	w := NewWindow(doc, mustURL(t, "http://example.com/todos?page=1"), nil)

	w.PushState(mustURL(t, "/todos?page=2"))
	assert.Equal(t, w.Location().String(), "http://example.com/todos?page=2")

	popped := 0
	w.Window().AddEventListener("popstate", func(*Event) { popped++ })
	assert.Equal(t, w.Back(), true)
	assert.Equal(t, popped, 1)
	assert.Equal(t, w.Location().RawQuery, "page=1")
	assert.Equal(t, w.Back(), false)

	var navigated string
	w.OnNavigate = func(u *url.URL) { navigated = u.String() }
	w.Navigate(mustURL(t, "/login"))
	assert.Equal(t, navigated, "http://example.com/login")

	_, ok := w.Cookie("_psid")
	assert.Equal(t, ok, false)
	w.SetCookie(&http.Cookie{Name: "_psid", Value: "abc", Path: "/", MaxAge: 60})
	v, ok := w.Cookie("_psid")
	assert.Equal(t, ok, true)
	assert.Equal(t, v, "abc")
	assert.Equal(t, len(w.CookieJar().Cookies(mustURL(t, "http://example.com/other"))), 1)
}

func TestSignal(t *testing.T) {
	doc := mustParse(t, `<body><div id="d"></div></body>`)
	w := NewWindow(doc, mustURL(t, "http://example.com/"), nil)

	var got any
	d := doc.ByID("d")
	d.AddEventListener("live:mounted", func(ev *Event) { got = ev.Detail })
	w.DispatchSignal(d, "live:mounted", "hi")
	assert.Equal(t, got, any("hi"))

	assert.Equal(t, len(w.FindByAttribute("id")), 1)
	assert.Equal(t, strings.TrimSpace(w.CreateFromHTML("<p>x</p>").OuterHTML()), "<p>x</p>")
}
