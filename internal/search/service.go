// Package search indexes the corpus in Meilisearch and answers full-text
// queries, falling back to an in-memory scan when Meilisearch is down.
package search

import (
	"log"

	"skein/internal/corpus"
)

// Service routes searches to Meilisearch when it is healthy and to the
// in-memory fallback otherwise. Indexing is fire-and-forget so corpus writes
// never block on the search backend.
type Service struct {
	meili    *Meili
	fallback *Memory
}

// NewService creates a search service. meili may be nil when Meilisearch is
// not configured; all queries then go to the fallback.
func NewService(meili *Meili, store *corpus.Store) *Service {
	return &Service{
		meili:    meili,
		fallback: NewMemory(store),
	}
}

// Search executes the query against the best available backend.
func (s *Service) Search(q Query) (Response, error) {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: orEmpty(results), Total: total, Query: q.Text}, nil
		}
		log.Printf("search: meilisearch query failed, using fallback: %v", err)
	}

	results, total, err := s.fallback.Search(q)
	if err != nil {
		return Response{}, err
	}
	return Response{Results: orEmpty(results), Total: total, Query: q.Text}, nil
}

func orEmpty(results []Result) []Result {
	if results == nil {
		return []Result{}
	}
	return results
}

// DocumentChanged reindexes a document in the background.
func (s *Service) DocumentChanged(doc corpus.Document) {
	if s.meili == nil {
		return
	}
	go func() {
		if err := s.meili.IndexDocument(DocumentRecord{
			ID:    doc.ID,
			Title: doc.Title,
			Type:  string(doc.Type),
			Text:  doc.SourceText(),
		}); err != nil {
			log.Printf("search: index document %s: %v", doc.ID, err)
		}
	}()
}

// DocumentRemoved removes a document from the index in the background.
func (s *Service) DocumentRemoved(id string) {
	if s.meili == nil {
		return
	}
	go func() {
		if err := s.meili.DeleteDocument(id); err != nil {
			log.Printf("search: delete document %s: %v", id, err)
		}
	}()
}

// QuoteChanged reindexes a quote in the background.
func (s *Service) QuoteChanged(quote corpus.Quote, codeName string) {
	if s.meili == nil {
		return
	}
	go func() {
		if err := s.meili.IndexQuote(QuoteRecord{
			ID:         quote.ID,
			Text:       quote.Text,
			DocumentID: quote.DocumentID,
			CodeID:     quote.CodeID,
			CodeName:   codeName,
		}); err != nil {
			log.Printf("search: index quote %s: %v", quote.ID, err)
		}
	}()
}

// QuoteRemoved removes a quote from the index in the background.
func (s *Service) QuoteRemoved(id string) {
	if s.meili == nil {
		return
	}
	go func() {
		if err := s.meili.DeleteQuote(id); err != nil {
			log.Printf("search: delete quote %s: %v", id, err)
		}
	}()
}

// CodeChanged reindexes a code in the background.
func (s *Service) CodeChanged(code corpus.Code) {
	if s.meili == nil {
		return
	}
	go func() {
		if err := s.meili.IndexCode(CodeRecord{
			ID:          code.ID,
			Name:        code.Name,
			Description: code.Description,
		}); err != nil {
			log.Printf("search: index code %s: %v", code.ID, err)
		}
	}()
}

// CodeRemoved removes a code from the index in the background.
func (s *Service) CodeRemoved(id string) {
	if s.meili == nil {
		return
	}
	go func() {
		if err := s.meili.DeleteCode(id); err != nil {
			log.Printf("search: delete code %s: %v", id, err)
		}
	}()
}

// Reindex bulk-loads the entire snapshot into Meilisearch, used after
// bootstrap and after a snapshot restore.
func (s *Service) Reindex(snap corpus.Snapshot) {
	if s.meili == nil {
		return
	}

	codeNames := make(map[string]string, len(snap.Codes))
	docs := make([]DocumentRecord, 0, len(snap.Documents))
	quotes := make([]QuoteRecord, 0, len(snap.Quotes))
	codes := make([]CodeRecord, 0, len(snap.Codes))

	for _, code := range snap.Codes {
		codeNames[code.ID] = code.Name
		codes = append(codes, CodeRecord{ID: code.ID, Name: code.Name, Description: code.Description})
	}
	for _, doc := range snap.Documents {
		docs = append(docs, DocumentRecord{ID: doc.ID, Title: doc.Title, Type: string(doc.Type), Text: doc.SourceText()})
	}
	for _, quote := range snap.Quotes {
		quotes = append(quotes, QuoteRecord{
			ID:         quote.ID,
			Text:       quote.Text,
			DocumentID: quote.DocumentID,
			CodeID:     quote.CodeID,
			CodeName:   codeNames[quote.CodeID],
		})
	}

	go func() {
		if err := s.meili.IndexAll(docs, quotes, codes); err != nil {
			log.Printf("search: bulk reindex: %v", err)
		}
	}()
}
