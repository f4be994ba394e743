package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultDocument ResultType = "document"
	ResultQuote    ResultType = "quote"
	ResultCode     ResultType = "code"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type       ResultType `json:"type"`
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Snippet    string     `json:"snippet"`
	DocumentID string     `json:"documentId,omitempty"`
	CodeID     string     `json:"codeId,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexDocument(doc DocumentRecord) error
	IndexQuote(q QuoteRecord) error
	IndexCode(c CodeRecord) error
	DeleteDocument(id string) error
	DeleteQuote(id string) error
	DeleteCode(id string) error
}

// DocumentRecord is the data we index for a document.
type DocumentRecord struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Type  string `json:"type"`
	Text  string `json:"text"` // content for text documents, transcript for media
}

// QuoteRecord is the data we index for a quote.
type QuoteRecord struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	DocumentID string `json:"documentId"`
	CodeID     string `json:"codeId"`
	CodeName   string `json:"codeName"`
}

// CodeRecord is the data we index for a code.
type CodeRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}
