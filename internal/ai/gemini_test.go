package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"skein/internal/corpus"
)

func newTestGemini(t *testing.T, handler http.HandlerFunc) *Gemini {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	g := NewGemini("test-key")
	g.baseURL = server.URL
	return g
}

func candidateResponse(text string) map[string]any {
	return map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]any{{"text": text}}}},
		},
	}
}

func TestSuggestCodesMapsColors(t *testing.T) {
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Errorf("expected api key header, got %q", got)
		}
		suggestions := `[{"id":"code-1","name":"Design praise","description":"positive"},{"id":"new-friction","name":"Friction","description":"pain points"}]`
		_ = json.NewEncoder(w).Encode(candidateResponse(suggestions))
	})

	existing := []corpus.Code{{ID: "code-1", Name: "Design praise", Color: "#fecaca"}}
	doc := corpus.Document{Type: corpus.TypeText, Content: "some document text"}

	codes, err := g.SuggestCodes(context.Background(), corpus.Segment{Text: "segment"}, doc, existing)
	if err != nil {
		t.Fatalf("SuggestCodes failed: %v", err)
	}
	if len(codes) != 2 {
		t.Fatalf("expected 2 suggestions, got %d", len(codes))
	}
	if codes[0].Color != "#fecaca" {
		t.Errorf("existing code should keep its stored color, got %s", codes[0].Color)
	}
	if !IsNewCode(codes[1].ID) {
		t.Errorf("expected sentinel prefix on new code id, got %s", codes[1].ID)
	}
	if codes[1].Color == "#fecaca" {
		t.Errorf("new code should get a placeholder color, got %s", codes[1].Color)
	}
}

func TestDetectThemesDecodesProposals(t *testing.T) {
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		themes := `[{"code":{"name":"Export confusion","description":"unclear export options"},"quotes":["the export was confusing"]}]`
		_ = json.NewEncoder(w).Encode(candidateResponse(themes))
	})

	doc := corpus.Document{Type: corpus.TypeText, Content: "the export was confusing"}
	themes, err := g.DetectThemes(context.Background(), doc, nil)
	if err != nil {
		t.Fatalf("DetectThemes failed: %v", err)
	}
	if len(themes) != 1 || themes[0].Code.Name != "Export confusion" {
		t.Errorf("unexpected themes: %+v", themes)
	}
	if len(themes[0].Quotes) != 1 {
		t.Errorf("expected 1 example quote, got %d", len(themes[0].Quotes))
	}
}

func TestTranscribeMediaRejectsNonMedia(t *testing.T) {
	g := NewGemini("test-key")
	if _, err := g.TranscribeMedia(context.Background(), "image/png", []byte("data")); err == nil {
		t.Error("expected error for non audio/video mime type")
	}
}

func TestGenerateSurfacesAPIError(t *testing.T) {
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "quota exceeded", "status": "RESOURCE_EXHAUSTED"},
		})
	})

	_, err := g.AnswerQuestion(context.Background(), "q", nil, nil, nil, nil)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("expected API message in error, got %v", err)
	}
}

func TestGenerateWithoutAPIKey(t *testing.T) {
	g := NewGemini("  ")
	if _, err := g.AnswerQuestion(context.Background(), "q", nil, nil, nil, nil); err == nil {
		t.Error("expected error when api key is missing")
	}
}

func TestBuildContext(t *testing.T) {
	docs := []corpus.Document{{Title: "Interview A", Type: corpus.TypeText}}
	codes := []corpus.Code{{Name: "Design praise", Description: "positive remarks"}}
	quotes := []corpus.Quote{{}, {}}

	ctx := BuildContext(docs, codes, quotes)
	for _, want := range []string{"Interview A (type: text)", "Design praise: positive remarks", "2 quotes"} {
		if !strings.Contains(ctx, want) {
			t.Errorf("context missing %q:\n%s", want, ctx)
		}
	}
}
