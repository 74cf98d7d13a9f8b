package dom

import (
	"golang.org/x/net/html/atom"
)

// File is a file selected in a file input.
type File struct {
	Name         string
	Type         string
	Size         int64
	LastModified int64
	Content      []byte
}

// NewFile builds a File whose Size matches content.
func NewFile(name, typ string, content []byte) File {
	return File{Name: name, Type: typ, Size: int64(len(content)), Content: content}
}

// FormEntry is one name/value pair of a form data set. File is set for
// entries that come from file inputs.
type FormEntry struct {
	Name  string
	Value string
	File  *File
}

// FormData is the data set a form would submit, in tree order.
type FormData []FormEntry

// NewFormData collects the entries of form following the browser rules:
// only named, enabled controls; checkboxes and radios only when checked;
// every selected option of a select; one entry per selected file, or an
// empty application/octet-stream file when none is selected. Controls
// outside the form that name it through their form attribute are included.
func NewFormData(form *Element) FormData {
	var fd FormData
	for _, el := range form.doc.QueryTag("input", "select", "textarea") {
		if el.Form() != form {
			continue
		}
		name := el.Name()
		if name == "" || el.Disabled() {
			continue
		}

		switch el.node.DataAtom {
		case atom.Select:
			for _, o := range el.SelectedOptions() {
				fd = append(fd, FormEntry{Name: name, Value: optionValue(o)})
			}
			continue
		case atom.Textarea:
			fd = append(fd, FormEntry{Name: name, Value: el.Value()})
			continue
		}

		switch el.Type() {
		case "submit", "button", "reset", "image":
		case "checkbox", "radio":
			if el.Checked() {
				fd = append(fd, FormEntry{Name: name, Value: el.Value()})
			}
		case "file":
			files := el.Files()
			if len(files) == 0 {
				fd = append(fd, FormEntry{Name: name, File: &File{Type: "application/octet-stream"}})
				continue
			}
			for i := range files {
				fd = append(fd, FormEntry{Name: name, File: &files[i]})
			}
		default:
			fd = append(fd, FormEntry{Name: name, Value: el.Value()})
		}
	}
	return fd
}

// Get returns the first value for name.
func (fd FormData) Get(name string) (string, bool) {
	for _, e := range fd {
		if e.Name == name && e.File == nil {
			return e.Value, true
		}
	}
	return "", false
}

// Values returns every non-file value for name.
func (fd FormData) Values(name string) []string {
	var out []string
	for _, e := range fd {
		if e.Name == name && e.File == nil {
			out = append(out, e.Value)
		}
	}
	return out
}

// HasFiles reports whether any entry is a file.
func (fd FormData) HasFiles() bool {
	for _, e := range fd {
		if e.File != nil {
			return true
		}
	}
	return false
}
