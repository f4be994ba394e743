// Package ai defines the external AI collaborator boundary and its Gemini
// implementation. The core never talks to the network directly; it holds a
// Collaborator and tests swap in a fake.
package ai

import (
	"context"
	"strings"

	"skein/internal/corpus"
)

// NewCodePrefix marks a suggested code that does not exist in the store yet.
// Suggestions carrying this sentinel get a real id and palette color when
// the researcher accepts them.
const NewCodePrefix = "new-"

// Message is one turn of the research chat.
type Message struct {
	Sender string `json:"sender"` // "user" or "ai"
	Text   string `json:"text"`
}

// Collaborator is the generative-AI backend: code suggestions, theme
// detection, media transcription and corpus question answering.
type Collaborator interface {
	SuggestCodes(ctx context.Context, segment corpus.Segment, doc corpus.Document, existing []corpus.Code) ([]corpus.Code, error)
	DetectThemes(ctx context.Context, doc corpus.Document, existing []corpus.Code) ([]corpus.Theme, error)
	TranscribeMedia(ctx context.Context, mimeType string, data []byte) (string, error)
	AnswerQuestion(ctx context.Context, question string, history []Message, docs []corpus.Document, codes []corpus.Code, quotes []corpus.Quote) (string, error)
}

// IsNewCode reports whether a suggested code id carries the sentinel prefix.
func IsNewCode(id string) bool {
	return strings.HasPrefix(id, NewCodePrefix)
}
