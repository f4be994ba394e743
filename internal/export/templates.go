package export

import (
	"bytes"
	"html/template"
	"strings"

	"skein/internal/corpus"
)

var documentTemplate = template.Must(template.New("document").Funcs(template.FuncMap{
	"lower":    strings.ToLower,
	"contrast": corpus.ContrastColor,
}).Parse(documentTemplateText))

// TemplateData holds everything the export template renders.
type TemplateData struct {
	Title       string
	Type        string
	ContentHTML template.HTML
	Codes       []corpus.Code
	Quotes      []TemplateQuote
}

// TemplateQuote is a quote row in the appendix with its code and comments.
type TemplateQuote struct {
	Text      string
	CodeName  string
	CodeColor string
	Comments  []corpus.Comment
}

// RenderDocumentHTML renders the export template.
func RenderDocumentHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const documentTemplateText = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.7; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    h2 { margin-top: 2.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .content { white-space: normal; }
    mark { padding: 0 2px; border-radius: 2px; }
    .legend { list-style: none; padding: 0; }
    .legend li { margin: 0.25rem 0; }
    .swatch { display: inline-block; width: 0.9em; height: 0.9em; border-radius: 2px; margin-right: 0.5em; vertical-align: middle; }
    .quote { background: #f5f5f5; padding: 0.75rem 1rem; margin: 0.75rem 0; border-left: 3px solid #333; }
    .quote .code { font-size: 0.85em; color: #444; }
    .comment { margin-left: 1rem; color: #555; font-size: 0.9em; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">{{.Type | lower}} document</div>
  <div class="content">{{.ContentHTML}}</div>
  {{if .Codes}}
  <h2>Codes</h2>
  <ul class="legend">
    {{range .Codes}}<li><span class="swatch" style="background-color: {{.Color}};"></span>{{.Name}}{{if .Description}} &mdash; {{.Description}}{{end}}</li>
    {{end}}
  </ul>
  {{end}}
  {{if .Quotes}}
  <h2>Quotes</h2>
  {{range .Quotes}}<div class="quote" style="border-left-color: {{.CodeColor}};">
    <div class="code">{{.CodeName}}</div>
    <div>{{.Text}}</div>
    {{range .Comments}}<div class="comment">{{.Text}} <em>({{.CreatedAt}})</em></div>
    {{end}}
  </div>
  {{end}}
  {{end}}
</body>
</html>`
