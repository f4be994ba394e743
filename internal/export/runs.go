package export

import (
	"html"
	"strings"

	"skein/internal/corpus"
)

// RunsToHTML renders resolved runs as inline HTML. Coded runs become mark
// elements carrying the code's background color and a legible text color;
// plain runs are escaped text. Newlines become br tags so the document keeps
// its paragraph shape inside the template.
func RunsToHTML(runs []corpus.Run) string {
	var b strings.Builder
	for _, run := range runs {
		text := escapeWithBreaks(run.Text)
		if !run.Coded() {
			b.WriteString(text)
			continue
		}
		b.WriteString(`<mark style="background-color: `)
		b.WriteString(html.EscapeString(run.Color))
		b.WriteString(`; color: `)
		b.WriteString(corpus.ContrastColor(run.Color))
		b.WriteString(`;">`)
		b.WriteString(text)
		b.WriteString(`</mark>`)
	}
	return b.String()
}

func escapeWithBreaks(text string) string {
	escaped := html.EscapeString(text)
	return strings.ReplaceAll(escaped, "\n", "<br>\n")
}
