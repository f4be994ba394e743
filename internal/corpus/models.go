// Package corpus holds the in-memory annotation model: documents, codes,
// quotes and comments, plus the span resolver that turns coded quotes into
// renderable runs.
package corpus

import "encoding/json"

// DocumentType identifies the media kind of a document.
type DocumentType string

const (
	TypeText  DocumentType = "text"
	TypeImage DocumentType = "image"
	TypeAudio DocumentType = "audio"
	TypeVideo DocumentType = "video"
)

// Metadata carries optional media properties.
type Metadata struct {
	Duration float64 `json:"duration,omitempty"`
}

// Document is an imported source. Content is the immutable offset source for
// text documents; for audio/video the transcript is the offset source once
// transcription completes.
type Document struct {
	ID             string       `json:"id"`
	Title          string       `json:"title"`
	Type           DocumentType `json:"type"`
	Content        string       `json:"content"`
	Metadata       Metadata     `json:"metadata"`
	Transcript     string       `json:"transcript,omitempty"`
	IsTranscribing bool         `json:"isTranscribing,omitempty"`
}

// SourceText returns the text that quote offsets are anchored to.
func (d Document) SourceText() string {
	if d.Type == TypeText {
		return d.Content
	}
	return d.Transcript
}

// Code is a named, colored tag applied to quotes. Color is assigned from the
// rotating palette at creation and never changes afterwards.
type Code struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
}

// Region marks a rectangular area of an image document.
type Region struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Timestamp marks a time range within audio or video.
type Timestamp struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Quote is a coded span within a document. Start/End are rune-independent
// byte offsets into the document's source text; they are nil for region or
// timestamp quotes on non-text media.
type Quote struct {
	ID         string     `json:"id"`
	DocumentID string     `json:"documentId"`
	CodeID     string     `json:"codeId"`
	Text       string     `json:"text"`
	Start      *int       `json:"start,omitempty"`
	End        *int       `json:"end,omitempty"`
	Region     *Region    `json:"region,omitempty"`
	Timestamp  *Timestamp `json:"timestamp,omitempty"`
}

// HasOffsets reports whether the quote is anchored to text offsets and is
// therefore renderable as a run.
func (q Quote) HasOffsets() bool {
	return q.Start != nil && q.End != nil
}

// Comment is a remark attached to a quote. CreatedAt is an ISO-8601 string.
type Comment struct {
	ID        string `json:"id"`
	QuoteID   string `json:"quoteId"`
	Text      string `json:"text"`
	CreatedAt string `json:"createdAt"`
}

// Segment is a transient, not-yet-coded text selection.
type Segment struct {
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// ThemeCode is the name/description pair of an AI-proposed code.
type ThemeCode struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Theme is an AI-proposed code plus example quote texts, not yet
// materialized into the store.
type Theme struct {
	Code   ThemeCode `json:"code"`
	Quotes []string  `json:"quotes"`
}

// Snapshot is a value copy of the four entity collections. It is what the
// persistence and audit collaborators write and read.
type Snapshot struct {
	Documents []Document `json:"documents"`
	Codes     []Code     `json:"codes"`
	Quotes    []Quote    `json:"quotes"`
	Comments  []Comment  `json:"comments"`
}

// Encode renders the snapshot as indented JSON, the interchange format for
// the audit trail and the Postgres snapshot store.
func (s Snapshot) Encode() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// DecodeSnapshot parses a snapshot previously produced by Encode.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func intPtr(v int) *int { return &v }
