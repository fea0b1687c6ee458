package selection

import (
	"html/template"
	"io"
)

var templates = template.Must(template.New("select_options").Parse(
	`{{range .}}<option value="{{.Value}}"{{if .Selected}} selected{{end}}{{if .Disabled}} disabled{{end}}>{{.Label}}</option>
{{end}}`))

func init() {
	template.Must(templates.New("select").Parse(
		`<select name="{{.Name}}">
{{template "select_options" .Options}}</select>
`))
}

// RenderOptions writes the options as html option elements.
func RenderOptions(w io.Writer, options []Option) error {
	return templates.ExecuteTemplate(w, "select_options", options)
}

// RenderSelect writes the whole widget as an html select element.
func RenderSelect(w io.Writer, widget Widget) error {
	return templates.ExecuteTemplate(w, "select", struct {
		Name    string
		Options []Option
	}{widget.Name(), widget.Options()})
}
