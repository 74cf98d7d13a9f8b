package hxlive

import (
	"log/slog"

	"github.com/pthm/hxlive/lib/dom"
)

// UploadsKey holds file descriptions in a serialized form.
const UploadsKey = "uploads"

// FieldState is one recorded form field.
type FieldState struct {
	Name  string
	Value string
	Focus bool
}

// FormStore keeps form input state alive across patches. Forms are keyed by
// id; a form without one cannot be tracked.
type FormStore struct {
	host  Host
	log   *slog.Logger
	state map[string][]FieldState
}

func newFormStore(host Host, log *slog.Logger) *FormStore {
	return &FormStore{
		host:  host,
		log:   log.With("component", "forms"),
		state: make(map[string][]FieldState),
	}
}

// Snapshot returns the recorded fields of the form with the given id.
func (f *FormStore) Snapshot(id string) ([]FieldState, bool) {
	fields, ok := f.state[id]
	return fields, ok
}

// Dehydrate records the value and focus of every named field of every form.
func (f *FormStore) Dehydrate() {
	doc := f.host.Document()
	active := doc.ActiveElement()

	f.state = make(map[string][]FieldState)
	for _, form := range doc.QueryTag("form") {
		id := form.ID()
		if id == "" {
			f.log.Error("hxlive: form does not have an ID. DOM updates may be affected", "form", form.OuterHTML())
			continue
		}
		fields := []FieldState{}
		for _, e := range dom.NewFormData(form) {
			if e.File != nil {
				fields = append(fields, FieldState{Name: e.Name})
				continue
			}
			el := field(form, e.Name)
			fields = append(fields, FieldState{
				Name:  e.Name,
				Value: e.Value,
				Focus: el != nil && el == active,
			})
		}
		f.state[id] = fields
	}
}

// Hydrate restores recorded fields. Snapshots of forms that are gone are
// discarded. File inputs are never restored and a checkbox is only
// re-checked when it was recorded as "on".
func (f *FormStore) Hydrate() {
	doc := f.host.Document()
	for id, fields := range f.state {
		form := doc.ByID(id)
		if form == nil || form.Tag() != "form" {
			delete(f.state, id)
			continue
		}
		for _, fs := range fields {
			el := field(form, fs.Name)
			if el == nil {
				continue
			}
			switch el.Type() {
			case "file":
			case "checkbox":
				if fs.Value == "on" {
					el.SetChecked(true)
				}
			case "radio":
				if r := radio(form, fs.Name, fs.Value); r != nil {
					r.SetChecked(true)
				}
			default:
				el.SetValue(fs.Value)
				if fs.Focus {
					el.Focus()
				}
			}
		}
	}
}

// Serialize encodes the form as an event payload. Repeated names become
// lists and files are described under UploadsKey by field name.
func (f *FormStore) Serialize(form *dom.Element) map[string]any {
	out := make(map[string]any)
	for _, e := range dom.NewFormData(form) {
		if e.File != nil {
			uploads, _ := out[UploadsKey].(map[string]any)
			if uploads == nil {
				uploads = make(map[string]any)
				out[UploadsKey] = uploads
			}
			list, _ := uploads[e.Name].([]any)
			uploads[e.Name] = append(list, map[string]any{
				"name":         e.File.Name,
				"type":         e.File.Type,
				"size":         e.File.Size,
				"lastModified": e.File.LastModified,
			})
			continue
		}
		switch prev := out[e.Name].(type) {
		case nil:
			out[e.Name] = e.Value
		case []any:
			out[e.Name] = append(prev, e.Value)
		default:
			out[e.Name] = []any{prev, e.Value}
		}
	}
	return out
}

// HasFiles reports whether submitting form would include a file part.
func (f *FormStore) HasFiles(form *dom.Element) bool {
	return dom.NewFormData(form).HasFiles()
}

// field finds the control named name that belongs to form.
func field(form *dom.Element, name string) *dom.Element {
	if el := form.QueryName(name); el != nil {
		return el
	}
	for _, el := range form.Document().QueryAttr("form") {
		if el.Name() == name && el.Form() == form {
			return el
		}
	}
	return nil
}

func radio(form *dom.Element, name, value string) *dom.Element {
	for _, el := range form.Document().QueryTag("input") {
		if el.Type() == "radio" && el.Name() == name && el.Value() == value && el.Form() == form {
			return el
		}
	}
	return nil
}
