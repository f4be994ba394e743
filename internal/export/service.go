package export

import (
	"context"
	"fmt"
	"html/template"

	"skein/internal/corpus"
)

// Source is the slice of the annotation store the exporter reads from.
// *corpus.Store satisfies it directly.
type Source interface {
	GetDocument(id string) (corpus.Document, error)
	ListCodes() []corpus.Code
	ListQuotes(documentID string) []corpus.Quote
	ListComments(quoteID string) []corpus.Comment
}

// Service renders coded documents to PDF or DOCX.
type Service struct {
	source Source
}

// NewService creates an export service over the given source.
func NewService(source Source) *Service {
	return &Service{source: source}
}

// Export resolves the document's runs, renders the HTML report and converts
// it to the requested format.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	doc, err := s.source.GetDocument(req.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}

	codes := s.source.ListCodes()
	quotes := s.source.ListQuotes(doc.ID)
	runs := corpus.Resolve(doc.SourceText(), quotes, codes)

	data := TemplateData{
		Title:       doc.Title,
		Type:        string(doc.Type),
		ContentHTML: template.HTML(RunsToHTML(runs)),
		Codes:       usedCodes(codes, quotes),
	}

	if req.IncludeQuotes {
		codesByID := make(map[string]corpus.Code, len(codes))
		for _, c := range codes {
			codesByID[c.ID] = c
		}
		for _, q := range quotes {
			code := codesByID[q.CodeID]
			tq := TemplateQuote{
				Text:      q.Text,
				CodeName:  code.Name,
				CodeColor: code.Color,
			}
			if req.IncludeComments {
				tq.Comments = s.source.ListComments(q.ID)
			}
			data.Quotes = append(data.Quotes, tq)
		}
	}

	html, err := RenderDocumentHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatPDF:
		return exportPDF(ctx, html, doc.Title)
	case FormatDOCX:
		return exportDOCX(html, doc.Title)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
}

// usedCodes filters the legend to codes that actually appear in the
// document's quotes, in creation order.
func usedCodes(codes []corpus.Code, quotes []corpus.Quote) []corpus.Code {
	used := make(map[string]bool, len(quotes))
	for _, q := range quotes {
		used[q.CodeID] = true
	}

	out := make([]corpus.Code, 0, len(used))
	for _, c := range codes {
		if used[c.ID] {
			out = append(out, c)
		}
	}
	return out
}
