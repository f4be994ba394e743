package search

import (
	"strings"

	"skein/internal/corpus"
)

const snippetRadius = 60

// Memory is the fallback Searcher used when Meilisearch is not configured or
// unreachable. It scans the live corpus with case-insensitive substring
// matching, which is plenty for the corpus sizes a single study produces.
type Memory struct {
	store *corpus.Store
}

// NewMemory creates a fallback searcher over the given store.
func NewMemory(store *corpus.Store) *Memory {
	return &Memory{store: store}
}

// Healthy always reports true; the in-memory scan has no external dependency.
func (m *Memory) Healthy() bool { return true }

// Search scans documents, quotes, and codes for the query text.
func (m *Memory) Search(q Query) ([]Result, int, error) {
	needle := strings.ToLower(strings.TrimSpace(q.Text))
	if needle == "" {
		return nil, 0, nil
	}

	var results []Result

	if q.FilterType == "" || q.FilterType == ResultDocument {
		for _, doc := range m.store.ListDocuments() {
			text := doc.SourceText()
			if containsFold(doc.Title, needle) || containsFold(text, needle) {
				results = append(results, Result{
					Type:       ResultDocument,
					ID:         doc.ID,
					Title:      doc.Title,
					Snippet:    snippet(text, needle),
					DocumentID: doc.ID,
				})
			}
		}
	}

	codeNames := make(map[string]string)
	for _, code := range m.store.ListCodes() {
		codeNames[code.ID] = code.Name
	}

	if q.FilterType == "" || q.FilterType == ResultQuote {
		for _, quote := range m.store.ListQuotes("") {
			if containsFold(quote.Text, needle) {
				results = append(results, Result{
					Type:       ResultQuote,
					ID:         quote.ID,
					Title:      codeNames[quote.CodeID],
					Snippet:    snippet(quote.Text, needle),
					DocumentID: quote.DocumentID,
					CodeID:     quote.CodeID,
				})
			}
		}
	}

	if q.FilterType == "" || q.FilterType == ResultCode {
		for _, code := range m.store.ListCodes() {
			if containsFold(code.Name, needle) || containsFold(code.Description, needle) {
				results = append(results, Result{
					Type:    ResultCode,
					ID:      code.ID,
					Title:   code.Name,
					Snippet: code.Description,
					CodeID:  code.ID,
				})
			}
		}
	}

	total := len(results)
	results = paginate(results, q.Offset, q.Limit)
	return results, total, nil
}

func containsFold(haystack, lowerNeedle string) bool {
	return strings.Contains(strings.ToLower(haystack), lowerNeedle)
}

// snippet extracts a window of text around the first match, trimmed to word
// boundaries where convenient.
func snippet(text, lowerNeedle string) string {
	idx := strings.Index(strings.ToLower(text), lowerNeedle)
	if idx < 0 {
		if len(text) > 2*snippetRadius {
			return text[:2*snippetRadius] + "..."
		}
		return text
	}

	start := idx - snippetRadius
	if start < 0 {
		start = 0
	}
	end := idx + len(lowerNeedle) + snippetRadius
	if end > len(text) {
		end = len(text)
	}

	out := text[start:end]
	if start > 0 {
		out = "..." + out
	}
	if end < len(text) {
		out += "..."
	}
	return out
}

func paginate(results []Result, offset, limit int) []Result {
	if offset >= len(results) {
		return nil
	}
	results = results[offset:]
	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results
}
