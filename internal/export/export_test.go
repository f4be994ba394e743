package export

import (
	"context"
	"errors"
	"html/template"
	"strings"
	"testing"

	"skein/internal/corpus"
)

func TestRunsToHTMLPlainAndCoded(t *testing.T) {
	runs := []corpus.Run{
		{Text: "plain "},
		{Text: "coded", CodeID: "code_1", Color: "#fecaca"},
		{Text: " tail"},
	}

	out := RunsToHTML(runs)

	if !strings.Contains(out, `<mark style="background-color: #fecaca; color: black;">coded</mark>`) {
		t.Errorf("coded run not rendered as expected: %s", out)
	}
	if !strings.HasPrefix(out, "plain ") || !strings.HasSuffix(out, " tail") {
		t.Errorf("plain runs mangled: %s", out)
	}
}

func TestRunsToHTMLEscapesContent(t *testing.T) {
	runs := []corpus.Run{
		{Text: "a <script>alert(1)</script> b", CodeID: "code_1", Color: "#fecaca"},
	}

	out := RunsToHTML(runs)
	if strings.Contains(out, "<script>") {
		t.Fatalf("unescaped markup in output: %s", out)
	}
	if !strings.Contains(out, "&lt;script&gt;") {
		t.Errorf("expected escaped script tag, got: %s", out)
	}
}

func TestRunsToHTMLNewlinesBecomeBreaks(t *testing.T) {
	out := RunsToHTML([]corpus.Run{{Text: "line one\nline two"}})
	if !strings.Contains(out, "<br>") {
		t.Errorf("expected br for newline, got: %s", out)
	}
}

func newExportStore(t *testing.T) (*corpus.Store, corpus.Document, corpus.Code) {
	t.Helper()
	store := corpus.NewStore()

	doc := store.AddDocument(corpus.Document{
		Title:   "Interview with P1",
		Type:    corpus.TypeText,
		Content: "I love the design of the product.",
	})
	code := store.AddCode("Design Praise", "Positive remarks")

	seg := corpus.Segment{Text: "love the design", Start: 2, End: 17}
	quote, err := store.AddQuote(doc.ID, code.ID, seg)
	if err != nil {
		t.Fatalf("AddQuote failed: %v", err)
	}
	if _, err := store.AddComment(quote.ID, "strong signal"); err != nil {
		t.Fatalf("AddComment failed: %v", err)
	}
	return store, doc, code
}

func TestExportRendersLegendAndQuotes(t *testing.T) {
	store, doc, code := newExportStore(t)

	// Unused codes must not show up in the legend.
	store.AddCode("Never Applied", "")

	quotes := store.ListQuotes(doc.ID)
	runs := corpus.Resolve(doc.Content, quotes, store.ListCodes())

	data := TemplateData{
		Title:       doc.Title,
		Type:        string(doc.Type),
		ContentHTML: template.HTML(RunsToHTML(runs)),
		Codes:       usedCodes(store.ListCodes(), quotes),
		Quotes: []TemplateQuote{{
			Text:      quotes[0].Text,
			CodeName:  code.Name,
			CodeColor: code.Color,
			Comments:  store.ListComments(quotes[0].ID),
		}},
	}

	html, err := RenderDocumentHTML(data)
	if err != nil {
		t.Fatalf("RenderDocumentHTML failed: %v", err)
	}

	for _, want := range []string{
		"Interview with P1",
		"Design Praise",
		"love the design",
		"strong signal",
		code.Color,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered HTML missing %q", want)
		}
	}
	if strings.Contains(html, "Never Applied") {
		t.Errorf("unused code leaked into the legend")
	}
	if !strings.Contains(html, "<mark") {
		t.Errorf("coded span missing from content")
	}
}

func TestExportUnsupportedFormat(t *testing.T) {
	store, doc, _ := newExportStore(t)
	svc := NewService(store)

	_, err := svc.Export(context.Background(), Request{
		DocumentID: doc.ID,
		Format:     Format("epub"),
	})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestExportUnknownDocument(t *testing.T) {
	store, _, _ := newExportStore(t)
	svc := NewService(store)

	_, err := svc.Export(context.Background(), Request{
		DocumentID: "doc_missing",
		Format:     FormatPDF,
	})
	if !errors.Is(err, corpus.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestUsedCodesPreservesCreationOrder(t *testing.T) {
	store := corpus.NewStore()
	doc := store.AddDocument(corpus.Document{
		Title: "d", Type: corpus.TypeText, Content: "alpha beta",
	})
	first := store.AddCode("First", "")
	second := store.AddCode("Second", "")

	// Apply in reverse order; legend should still list creation order.
	if _, err := store.AddQuote(doc.ID, second.ID, corpus.Segment{Text: "beta", Start: 6, End: 10}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AddQuote(doc.ID, first.ID, corpus.Segment{Text: "alpha", Start: 0, End: 5}); err != nil {
		t.Fatal(err)
	}

	codes := usedCodes(store.ListCodes(), store.ListQuotes(doc.ID))
	if len(codes) != 2 || codes[0].Name != "First" || codes[1].Name != "Second" {
		t.Errorf("unexpected legend order: %+v", codes)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Interview with P1", "Interview-with-P1"},
		{"weird/chars:here?", "weirdcharshere"},
		{"", "document"},
		{"///", "document"},
		{strings.Repeat("a", 80), strings.Repeat("a", 50)},
	}
	for _, tc := range cases {
		if got := sanitizeFilename(tc.in); got != tc.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	out := percentEncodeForDataURL("a b+c<d>")
	if strings.Contains(out, "+") && !strings.Contains(out, "%2B") {
		t.Errorf("plus not encoded: %s", out)
	}
	if !strings.Contains(out, "%20") {
		t.Errorf("space should encode as %%20: %s", out)
	}
	if strings.Contains(out, "<") || strings.Contains(out, ">") {
		t.Errorf("angle brackets must be encoded: %s", out)
	}
}
