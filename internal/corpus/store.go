package corpus

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"skein/internal/util"
)

// Store is the in-memory relational model over documents, codes, quotes and
// comments. Every mutation runs under one mutex and completes before the
// next is admitted, so callers observe the same atomicity as a
// single-threaded event queue. Deleting a document or a code cascades to the
// quotes that reference it; comments on deleted quotes are deliberately left
// in place (see ListComments).
type Store struct {
	mu        sync.Mutex
	documents []Document
	codes     []Code
	quotes    []Quote
	comments  []Comment

	// codesCreated drives palette rotation. It only grows: deleting a code
	// does not return its color to the pool.
	codesCreated int

	now   func() time.Time
	newID func(prefix string) string
}

// NewStore creates an empty annotation store.
func NewStore() *Store {
	return &Store{
		now:   time.Now,
		newID: util.NewID,
	}
}

var (
	ErrDocumentNotFound = fmt.Errorf("document not found")
	ErrCodeNotFound     = fmt.Errorf("code not found")
	ErrQuoteNotFound    = fmt.Errorf("quote not found")
	ErrInvalidSegment   = fmt.Errorf("segment offsets do not match document text")
)

// AddDocument inserts a new document and returns it with an assigned id.
// Audio/video documents with content to transcribe should be inserted with
// IsTranscribing set; SetTranscript / ClearTranscribing finish the cycle.
func (s *Store) AddDocument(doc Document) Document {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc.ID = s.newID("doc")
	s.documents = append(s.documents, doc)
	return doc
}

// GetDocument looks up a document by id.
func (s *Store) GetDocument(id string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.documents {
		if d.ID == id {
			return d, nil
		}
	}
	return Document{}, ErrDocumentNotFound
}

// ListDocuments returns all documents in insertion order.
func (s *Store) ListDocuments() []Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Document(nil), s.documents...)
}

// DeleteDocument removes a document and cascades to its quotes. Comments on
// those quotes become orphaned; they are filtered at read time.
func (s *Store) DeleteDocument(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.documents[:0]
	found := false
	for _, d := range s.documents {
		if d.ID == id {
			found = true
			continue
		}
		kept = append(kept, d)
	}
	if !found {
		return ErrDocumentNotFound
	}
	s.documents = kept

	quotes := s.quotes[:0]
	for _, q := range s.quotes {
		if q.DocumentID != id {
			quotes = append(quotes, q)
		}
	}
	s.quotes = quotes
	return nil
}

// SetTranscript records a finished transcription and clears the in-progress
// flag. The update is addressed by document id, never by a notion of the
// currently selected document, so a late response lands on its original
// target.
func (s *Store) SetTranscript(id, transcript string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.documents {
		if s.documents[i].ID == id {
			s.documents[i].Transcript = transcript
			s.documents[i].IsTranscribing = false
			return nil
		}
	}
	return ErrDocumentNotFound
}

// ClearTranscribing drops the in-progress flag after a failed transcription
// so the document does not stay stuck "in progress".
func (s *Store) ClearTranscribing(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.documents {
		if s.documents[i].ID == id {
			s.documents[i].IsTranscribing = false
			return nil
		}
	}
	return ErrDocumentNotFound
}

// AddCode creates a code, assigning the next color in the palette rotation.
func (s *Store) AddCode(name, description string) Code {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addCodeLocked(name, description)
}

func (s *Store) addCodeLocked(name, description string) Code {
	code := Code{
		ID:          s.newID("code"),
		Name:        name,
		Description: description,
		Color:       PaletteColor(s.codesCreated),
	}
	s.codesCreated++
	s.codes = append(s.codes, code)
	return code
}

// UpdateCode renames or redescribes a code. Color is immutable.
func (s *Store) UpdateCode(id, name, description string) (Code, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.codes {
		if s.codes[i].ID == id {
			s.codes[i].Name = name
			s.codes[i].Description = description
			return s.codes[i], nil
		}
	}
	return Code{}, ErrCodeNotFound
}

// DeleteCode removes a code and cascades to the quotes that carry it.
func (s *Store) DeleteCode(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.codes[:0]
	found := false
	for _, c := range s.codes {
		if c.ID == id {
			found = true
			continue
		}
		kept = append(kept, c)
	}
	if !found {
		return ErrCodeNotFound
	}
	s.codes = kept

	quotes := s.quotes[:0]
	for _, q := range s.quotes {
		if q.CodeID != id {
			quotes = append(quotes, q)
		}
	}
	s.quotes = quotes
	return nil
}

// ListCodes returns all codes in creation order.
func (s *Store) ListCodes() []Code {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Code(nil), s.codes...)
}

// AddQuote materializes a selected segment as a coded quote. The segment
// must satisfy 0 <= start <= end <= len(source) and its text must equal the
// document source text over [start, end); documents are immutable after
// creation, so the invariant holds for the quote's lifetime.
func (s *Store) AddQuote(documentID, codeID string, seg Segment) (Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var doc *Document
	for i := range s.documents {
		if s.documents[i].ID == documentID {
			doc = &s.documents[i]
			break
		}
	}
	if doc == nil {
		return Quote{}, ErrDocumentNotFound
	}

	source := doc.SourceText()
	if seg.Start < 0 || seg.Start > seg.End || seg.End > len(source) {
		return Quote{}, ErrInvalidSegment
	}
	if source[seg.Start:seg.End] != seg.Text {
		return Quote{}, ErrInvalidSegment
	}

	quote := Quote{
		ID:         s.newID("quote"),
		DocumentID: documentID,
		CodeID:     codeID,
		Text:       seg.Text,
		Start:      intPtr(seg.Start),
		End:        intPtr(seg.End),
	}
	s.quotes = append(s.quotes, quote)
	return quote, nil
}

// ListQuotes returns the quotes for a document, or all quotes when
// documentID is empty, in insertion order.
func (s *Store) ListQuotes(documentID string) []Quote {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Quote, 0, len(s.quotes))
	for _, q := range s.quotes {
		if documentID == "" || q.DocumentID == documentID {
			out = append(out, q)
		}
	}
	return out
}

// ReassignQuotes moves every listed quote onto a new code. Unknown quote ids
// are ignored; the destination code is taken on trust (callers filter to
// codes other than the source).
func (s *Store) ReassignQuotes(quoteIDs []string, newCodeID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make(map[string]struct{}, len(quoteIDs))
	for _, id := range quoteIDs {
		ids[id] = struct{}{}
	}

	moved := 0
	for i := range s.quotes {
		if _, ok := ids[s.quotes[i].ID]; ok {
			s.quotes[i].CodeID = newCodeID
			moved++
		}
	}
	return moved
}

// AddComment attaches a comment to a quote, stamped with the current time in
// ISO-8601.
func (s *Store) AddComment(quoteID, text string) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for _, q := range s.quotes {
		if q.ID == quoteID {
			found = true
			break
		}
	}
	if !found {
		return Comment{}, ErrQuoteNotFound
	}

	comment := Comment{
		ID:        s.newID("comment"),
		QuoteID:   quoteID,
		Text:      text,
		CreatedAt: s.now().UTC().Format(time.RFC3339),
	}
	s.comments = append(s.comments, comment)
	return comment, nil
}

// ListComments returns a quote's comments ordered by creation time
// ascending. Comments whose quote has since been cascade-deleted are never
// listed but are not removed either; quote deletion does not cascade to
// comments.
func (s *Store) ListComments(quoteID string) []Comment {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Comment, 0)
	for _, c := range s.comments {
		if c.QuoteID == quoteID {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt < out[j].CreatedAt
	})
	return out
}

// ApplyThemes materializes AI-proposed themes against a document. Each theme
// becomes a new code; the palette index continues from the current code
// count plus the theme's position in the batch, so a multi-theme batch keeps
// colors rotating even though nothing is committed mid-batch. Each example
// quote is located by first-occurrence substring search in the document's
// source text; quotes the AI hallucinated or paraphrased are silently
// dropped. Partial application is the intended behavior: a per-quote miss
// never fails the batch.
func (s *Store) ApplyThemes(documentID string, themes []Theme) ([]Code, []Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var doc *Document
	for i := range s.documents {
		if s.documents[i].ID == documentID {
			doc = &s.documents[i]
			break
		}
	}
	if doc == nil {
		return nil, nil, ErrDocumentNotFound
	}
	source := doc.SourceText()

	base := s.codesCreated
	newCodes := make([]Code, 0, len(themes))
	newQuotes := make([]Quote, 0)

	for i, theme := range themes {
		code := Code{
			ID:          s.newID("code"),
			Name:        theme.Code.Name,
			Description: theme.Code.Description,
			Color:       PaletteColor(base + i),
		}
		newCodes = append(newCodes, code)

		if source == "" {
			continue
		}
		for _, quoteText := range theme.Quotes {
			start, ok := Locate(quoteText, source)
			if !ok {
				continue
			}
			newQuotes = append(newQuotes, Quote{
				ID:         s.newID("quote"),
				DocumentID: documentID,
				CodeID:     code.ID,
				Text:       quoteText,
				Start:      intPtr(start),
				End:        intPtr(start + len(quoteText)),
			})
		}
	}

	s.codesCreated += len(themes)
	s.codes = append(s.codes, newCodes...)
	s.quotes = append(s.quotes, newQuotes...)
	return newCodes, newQuotes, nil
}

// Snapshot copies the four entity collections.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		Documents: append([]Document(nil), s.documents...),
		Codes:     append([]Code(nil), s.codes...),
		Quotes:    append([]Quote(nil), s.quotes...),
		Comments:  append([]Comment(nil), s.comments...),
	}
}

// Restore replaces the store contents with a snapshot. The palette base is
// reset to the restored code count, matching what a fresh session that
// created exactly those codes would have.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.documents = append([]Document(nil), snap.Documents...)
	s.codes = append([]Code(nil), snap.Codes...)
	s.quotes = append([]Quote(nil), snap.Quotes...)
	s.comments = append([]Comment(nil), snap.Comments...)
	s.codesCreated = len(snap.Codes)
}

// Counts reports how many documents, codes and quotes the store holds.
func (s *Store) Counts() (documents, codes, quotes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.documents), len(s.codes), len(s.quotes)
}
