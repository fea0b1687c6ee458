// Package selection models the selection widgets of a hosting document.
package selection

import (
	"sync"
)

// Option is one entry of a selection widget.
type Option struct {
	Value    string `json:"value"`
	Label    string `json:"label"`
	Selected bool   `json:"selected,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
}

// Widget is a mutable selection control owned by a document.
type Widget interface {
	Name() string
	Options() []Option
	Replace(options []Option)
}

// Locator finds widgets of a document by name.
type Locator interface {
	Lookup(name string) (Widget, bool)
}

// Placeholder returns the disabled, selected-by-default option
// which prompts the user to make a real choice.
func Placeholder(label string) Option {
	return Option{Value: "", Label: label, Selected: true, Disabled: true}
}

// BuildOptions returns the placeholder followed by one option per value,
// in the given order.
func BuildOptions(placeholder string, values []string) []Option {
	options := make([]Option, 0, len(values)+1)
	options = append(options, Placeholder(placeholder))
	for _, v := range values {
		options = append(options, Option{Value: v, Label: v})
	}
	return options
}

// Select is an in-memory selection widget.
// Replace swaps the whole option list at once, so readers never
// observe a partially rebuilt list.
type Select struct {
	name    string
	mu      sync.RWMutex
	options []Option
}

// NewSelect creates a widget with the given initial options.
func NewSelect(name string, options ...Option) *Select {
	s := &Select{name: name}
	s.options = append(s.options, options...)
	return s
}

// Name returns the widget name.
func (s *Select) Name() string { return s.name }

// Options returns a copy of the current option list.
func (s *Select) Options() []Option {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Option, len(s.options))
	copy(out, s.options)
	return out
}

// Replace sets a copy of options as the new option list.
func (s *Select) Replace(options []Option) {
	next := make([]Option, len(options))
	copy(next, options)

	s.mu.Lock()
	s.options = next
	s.mu.Unlock()
}

// Document holds the widgets of one page, keyed by name.
type Document struct {
	mu      sync.RWMutex
	widgets map[string]Widget
}

// NewDocument creates a document holding the given widgets.
func NewDocument(widgets ...Widget) *Document {
	d := &Document{widgets: make(map[string]Widget, len(widgets))}
	for _, w := range widgets {
		d.widgets[w.Name()] = w
	}
	return d
}

// Add puts a widget into the document, replacing one with the same name.
func (d *Document) Add(w Widget) {
	d.mu.Lock()
	d.widgets[w.Name()] = w
	d.mu.Unlock()
}

// Lookup returns the widget with the given name.
func (d *Document) Lookup(name string) (Widget, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	w, ok := d.widgets[name]
	return w, ok
}
