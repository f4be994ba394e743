package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const (
	idxDocuments = "skein_documents"
	idxQuotes    = "skein_quotes"
	idxCodes     = "skein_codes"
)

// Meili implements Searcher and Indexer via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures indexes. The returned
// client starts unhealthy if the initial connection fails; the background
// health loop will pick Meilisearch up when it comes back.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	indexes := []struct {
		uid        string
		primaryKey string
		filterable []string
		searchable []string
	}{
		{
			uid:        idxDocuments,
			primaryKey: "id",
			filterable: []string{"type"},
			searchable: []string{"title", "text"},
		},
		{
			uid:        idxQuotes,
			primaryKey: "id",
			filterable: []string{"documentId", "codeId"},
			searchable: []string{"text", "codeName"},
		},
		{
			uid:        idxCodes,
			primaryKey: "id",
			searchable: []string{"name", "description"},
		},
	}

	for _, idx := range indexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        idx.uid,
			PrimaryKey: idx.primaryKey,
		}); err != nil {
			log.Printf("search: create index %s (may already exist): %v", idx.uid, err)
		}

		index := m.client.Index(idx.uid)
		if len(idx.filterable) > 0 {
			filterableInterface := make([]interface{}, len(idx.filterable))
			for i, v := range idx.filterable {
				filterableInterface[i] = v
			}
			if _, err := index.UpdateFilterableAttributes(&filterableInterface); err != nil {
				log.Printf("search: update filterable attrs for %s: %v", idx.uid, err)
			}
		}
		if _, err := index.UpdateSearchableAttributes(&idx.searchable); err != nil {
			log.Printf("search: update searchable attrs for %s: %v", idx.uid, err)
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries all three indexes (or a filtered subset) and merges results.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	var queries []*meili.SearchRequest
	targetIndexes := []struct {
		uid  string
		rtyp ResultType
	}{
		{idxDocuments, ResultDocument},
		{idxQuotes, ResultQuote},
		{idxCodes, ResultCode},
	}

	for _, ti := range targetIndexes {
		if q.FilterType != "" && q.FilterType != ti.rtyp {
			continue
		}
		queries = append(queries, &meili.SearchRequest{
			IndexUID:              ti.uid,
			Limit:                 limit,
			Offset:                int64(q.Offset),
			AttributesToHighlight: []string{"*"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
		})
	}

	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: queries,
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		rtyp := indexToResultType(sr.IndexUID)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit, rtyp))
		}
	}

	return results, total, nil
}

func indexToResultType(uid string) ResultType {
	switch uid {
	case idxDocuments:
		return ResultDocument
	case idxQuotes:
		return ResultQuote
	case idxCodes:
		return ResultCode
	default:
		return ""
	}
}

func hitToResult(hit meili.Hit, rtyp ResultType) Result {
	r := Result{Type: rtyp}
	r.ID = decodeString(hit, "id")
	r.DocumentID = decodeString(hit, "documentId")
	r.CodeID = decodeString(hit, "codeId")

	switch rtyp {
	case ResultDocument:
		r.Title = firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "text"), decodeString(hit, "text"))
		r.DocumentID = r.ID
	case ResultQuote:
		r.Title = firstNonBlank(decodeFormattedString(hit, "codeName"), decodeString(hit, "codeName"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "text"), decodeString(hit, "text"))
	case ResultCode:
		r.Title = firstNonBlank(decodeFormattedString(hit, "name"), decodeString(hit, "name"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "description"), decodeString(hit, "description"))
		r.CodeID = r.ID
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]string
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	return strings.TrimSpace(formatted[key])
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexDocument adds or updates a document in the search index.
func (m *Meili) IndexDocument(doc DocumentRecord) error {
	_, err := m.client.Index(idxDocuments).AddDocuments([]DocumentRecord{doc}, nil)
	return err
}

// IndexQuote adds or updates a quote in the search index.
func (m *Meili) IndexQuote(q QuoteRecord) error {
	_, err := m.client.Index(idxQuotes).AddDocuments([]QuoteRecord{q}, nil)
	return err
}

// IndexCode adds or updates a code in the search index.
func (m *Meili) IndexCode(c CodeRecord) error {
	_, err := m.client.Index(idxCodes).AddDocuments([]CodeRecord{c}, nil)
	return err
}

// DeleteDocument removes a document from the search index.
func (m *Meili) DeleteDocument(id string) error {
	_, err := m.client.Index(idxDocuments).DeleteDocument(id, nil)
	return err
}

// DeleteQuote removes a quote from the search index.
func (m *Meili) DeleteQuote(id string) error {
	_, err := m.client.Index(idxQuotes).DeleteDocument(id, nil)
	return err
}

// DeleteCode removes a code from the search index.
func (m *Meili) DeleteCode(id string) error {
	_, err := m.client.Index(idxCodes).DeleteDocument(id, nil)
	return err
}

// IndexAll bulk-indexes the full corpus, used on bootstrap and restore.
func (m *Meili) IndexAll(documents []DocumentRecord, quotes []QuoteRecord, codes []CodeRecord) error {
	if len(documents) > 0 {
		if _, err := m.client.Index(idxDocuments).AddDocuments(documents, nil); err != nil {
			return fmt.Errorf("bulk index documents: %w", err)
		}
	}
	if len(quotes) > 0 {
		if _, err := m.client.Index(idxQuotes).AddDocuments(quotes, nil); err != nil {
			return fmt.Errorf("bulk index quotes: %w", err)
		}
	}
	if len(codes) > 0 {
		if _, err := m.client.Index(idxCodes).AddDocuments(codes, nil); err != nil {
			return fmt.Errorf("bulk index codes: %w", err)
		}
	}
	return nil
}
