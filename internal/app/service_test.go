package app

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"skein/internal/ai"
	"skein/internal/audit"
	"skein/internal/corpus"
	"skein/internal/export"
	"skein/internal/search"
	"skein/internal/session"
)

type fakeCollaborator struct {
	suggestCodes   func(ctx context.Context, segment corpus.Segment, doc corpus.Document, existing []corpus.Code) ([]corpus.Code, error)
	detectThemes   func(ctx context.Context, doc corpus.Document, existing []corpus.Code) ([]corpus.Theme, error)
	transcribe     func(ctx context.Context, mimeType string, data []byte) (string, error)
	answerQuestion func(ctx context.Context, question string, history []ai.Message, docs []corpus.Document, codes []corpus.Code, quotes []corpus.Quote) (string, error)
}

func (f *fakeCollaborator) SuggestCodes(ctx context.Context, segment corpus.Segment, doc corpus.Document, existing []corpus.Code) ([]corpus.Code, error) {
	if f.suggestCodes == nil {
		return nil, nil
	}
	return f.suggestCodes(ctx, segment, doc, existing)
}

func (f *fakeCollaborator) DetectThemes(ctx context.Context, doc corpus.Document, existing []corpus.Code) ([]corpus.Theme, error) {
	if f.detectThemes == nil {
		return nil, nil
	}
	return f.detectThemes(ctx, doc, existing)
}

func (f *fakeCollaborator) TranscribeMedia(ctx context.Context, mimeType string, data []byte) (string, error) {
	if f.transcribe == nil {
		return "", errors.New("not implemented")
	}
	return f.transcribe(ctx, mimeType, data)
}

func (f *fakeCollaborator) AnswerQuestion(ctx context.Context, question string, history []ai.Message, docs []corpus.Document, codes []corpus.Code, quotes []corpus.Quote) (string, error) {
	if f.answerQuestion == nil {
		return "", errors.New("not implemented")
	}
	return f.answerQuestion(ctx, question, history, docs, codes, quotes)
}

func newTestService(t *testing.T, collab ai.Collaborator) *Service {
	t.Helper()
	store := corpus.NewStore()
	return New(Deps{
		Store:    store,
		Collab:   collab,
		History:  session.NewMemoryStore(),
		Search:   search.NewService(nil, store),
		Exporter: export.NewService(store),
	})
}

func addTextDocument(t *testing.T, svc *Service, title, content string) corpus.Document {
	t.Helper()
	doc, err := svc.CreateDocument(context.Background(), CreateDocumentInput{
		Title:   title,
		Type:    "text",
		Content: content,
	})
	if err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}
	return doc
}

func TestCreateDocumentValidation(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	cases := []struct {
		name  string
		input CreateDocumentInput
	}{
		{"missing title", CreateDocumentInput{Type: "text", Content: "x"}},
		{"bad type", CreateDocumentInput{Title: "t", Type: "spreadsheet", Content: "x"}},
		{"text without content", CreateDocumentInput{Title: "t", Type: "text"}},
		{"media with invalid base64", CreateDocumentInput{Title: "t", Type: "audio", Content: "not-base64!!!"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateDocument(ctx, tc.input)
			var domainErr *DomainError
			if !errors.As(err, &domainErr) || domainErr.Status != http.StatusUnprocessableEntity {
				t.Fatalf("expected 422 DomainError, got %v", err)
			}
		})
	}
}

func TestCreateDocumentText(t *testing.T) {
	svc := newTestService(t, nil)
	doc := addTextDocument(t, svc, "Interview", "some content")

	if doc.ID == "" || doc.IsTranscribing {
		t.Errorf("unexpected document: %+v", doc)
	}
	if len(svc.ListDocuments()) != 1 {
		t.Errorf("document not listed")
	}
}

func TestTranscriptionLifecycle(t *testing.T) {
	done := make(chan struct{})
	collab := &fakeCollaborator{
		transcribe: func(_ context.Context, mimeType string, data []byte) (string, error) {
			defer close(done)
			if mimeType != "audio/mp3" || len(data) == 0 {
				t.Errorf("unexpected transcription input: %s %d bytes", mimeType, len(data))
			}
			return "hello from the recording", nil
		},
	}
	svc := newTestService(t, collab)

	doc, err := svc.CreateDocument(context.Background(), CreateDocumentInput{
		Title:    "Recording",
		Type:     "audio",
		Content:  base64.StdEncoding.EncodeToString([]byte("fake-audio-bytes")),
		MimeType: "audio/mp3",
	})
	if err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}
	if !doc.IsTranscribing {
		t.Fatalf("audio document should start transcribing")
	}

	<-done
	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := svc.GetDocument(doc.ID)
		if err != nil {
			t.Fatalf("GetDocument failed: %v", err)
		}
		if !got.IsTranscribing {
			if got.Transcript != "hello from the recording" {
				t.Errorf("transcript = %q", got.Transcript)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("transcription never completed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestTranscriptionFailureClearsFlag(t *testing.T) {
	done := make(chan struct{})
	collab := &fakeCollaborator{
		transcribe: func(context.Context, string, []byte) (string, error) {
			defer close(done)
			return "", errors.New("quota exceeded")
		},
	}
	svc := newTestService(t, collab)

	doc, err := svc.CreateDocument(context.Background(), CreateDocumentInput{
		Title:    "Recording",
		Type:     "video",
		Content:  base64.StdEncoding.EncodeToString([]byte("bytes")),
		MimeType: "video/mp4",
	})
	if err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}

	<-done
	deadline := time.Now().Add(2 * time.Second)
	for {
		got, _ := svc.GetDocument(doc.ID)
		if !got.IsTranscribing {
			if got.Transcript != "" {
				t.Errorf("failed transcription should not set a transcript")
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("transcribing flag never cleared")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCreateQuoteWithExistingCode(t *testing.T) {
	svc := newTestService(t, nil)
	doc := addTextDocument(t, svc, "d", "alpha beta gamma")
	code, err := svc.CreateCode("Observations", "")
	if err != nil {
		t.Fatalf("CreateCode failed: %v", err)
	}

	quote, created, err := svc.CreateQuote(CreateQuoteInput{
		DocumentID: doc.ID,
		CodeID:     code.ID,
		Segment:    corpus.Segment{Text: "beta", Start: 6, End: 10},
	})
	if err != nil {
		t.Fatalf("CreateQuote failed: %v", err)
	}
	if created != nil {
		t.Errorf("no new code should be created for an existing id")
	}
	if quote.CodeID != code.ID {
		t.Errorf("quote code = %q", quote.CodeID)
	}
}

func TestCreateQuoteMaterializesSuggestedCode(t *testing.T) {
	svc := newTestService(t, nil)
	doc := addTextDocument(t, svc, "d", "alpha beta gamma")

	quote, created, err := svc.CreateQuote(CreateQuoteInput{
		DocumentID:         doc.ID,
		CodeID:             ai.NewCodePrefix + "emergent",
		Segment:            corpus.Segment{Text: "gamma", Start: 11, End: 16},
		NewCodeName:        "Emergent Theme",
		NewCodeDescription: "Came out of open coding",
	})
	if err != nil {
		t.Fatalf("CreateQuote failed: %v", err)
	}
	if created == nil {
		t.Fatal("expected a materialized code")
	}
	if created.Name != "Emergent Theme" || created.Color == "" {
		t.Errorf("materialized code wrong: %+v", created)
	}
	if quote.CodeID != created.ID {
		t.Errorf("quote should reference the new code")
	}
}

func TestCreateQuoteUnknownCode(t *testing.T) {
	svc := newTestService(t, nil)
	doc := addTextDocument(t, svc, "d", "alpha")

	_, _, err := svc.CreateQuote(CreateQuoteInput{
		DocumentID: doc.ID,
		CodeID:     "code_missing",
		Segment:    corpus.Segment{Text: "alpha", Start: 0, End: 5},
	})
	if !errors.Is(err, corpus.ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound, got %v", err)
	}
}

func TestReassignQuotesUnknownTarget(t *testing.T) {
	svc := newTestService(t, nil)
	if _, err := svc.ReassignQuotes([]string{"quote_1"}, "code_missing"); !errors.Is(err, corpus.ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound, got %v", err)
	}
}

func TestDetectThemesRequiresTextDocument(t *testing.T) {
	collab := &fakeCollaborator{}
	svc := newTestService(t, collab)

	doc, err := svc.CreateDocument(context.Background(), CreateDocumentInput{
		Title: "photo", Type: "image",
	})
	if err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}

	_, err = svc.DetectThemes(context.Background(), doc.ID)
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "THEMES_TEXT_ONLY" {
		t.Fatalf("expected THEMES_TEXT_ONLY, got %v", err)
	}
}

func TestDetectThemesCollaboratorErrorDoesNotMutate(t *testing.T) {
	collab := &fakeCollaborator{
		detectThemes: func(context.Context, corpus.Document, []corpus.Code) ([]corpus.Theme, error) {
			return nil, errors.New("model overloaded")
		},
	}
	svc := newTestService(t, collab)
	doc := addTextDocument(t, svc, "d", "some text here")

	_, err := svc.DetectThemes(context.Background(), doc.ID)
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != http.StatusBadGateway {
		t.Fatalf("expected 502 DomainError, got %v", err)
	}
	if len(svc.ListCodes()) != 0 || len(svc.ListQuotes("")) != 0 {
		t.Errorf("failed detection must not touch the store")
	}
}

func TestApplyThemes(t *testing.T) {
	svc := newTestService(t, nil)
	doc := addTextDocument(t, svc, "d", "the design is great but export is confusing")

	codes, quotes, err := svc.ApplyThemes(doc.ID, []corpus.Theme{
		{
			Code:   corpus.ThemeCode{Name: "Design Praise", Description: "positive"},
			Quotes: []string{"the design is great", "this quote does not exist"},
		},
	})
	if err != nil {
		t.Fatalf("ApplyThemes failed: %v", err)
	}
	if len(codes) != 1 || len(quotes) != 1 {
		t.Fatalf("expected 1 code and 1 located quote, got %d/%d", len(codes), len(quotes))
	}
	if quotes[0].Text != "the design is great" {
		t.Errorf("wrong quote located: %+v", quotes[0])
	}
}

func TestChatKeepsHistory(t *testing.T) {
	var seenHistory []ai.Message
	collab := &fakeCollaborator{
		answerQuestion: func(_ context.Context, question string, history []ai.Message, _ []corpus.Document, _ []corpus.Code, _ []corpus.Quote) (string, error) {
			seenHistory = append([]ai.Message(nil), history...)
			return "answer to: " + question, nil
		},
	}
	svc := newTestService(t, collab)
	ctx := context.Background()

	first, err := svc.Chat(ctx, "s1", "what stands out?")
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if first.Answer != "answer to: what stands out?" || len(first.History) != 2 {
		t.Errorf("unexpected first response: %+v", first)
	}

	second, err := svc.Chat(ctx, "s1", "tell me more")
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if len(seenHistory) != 2 {
		t.Errorf("second question should see the first turn, got %d messages", len(seenHistory))
	}
	if len(second.History) != 4 {
		t.Errorf("expected 4 messages after two turns, got %d", len(second.History))
	}
}

func TestChatWithoutCollaborator(t *testing.T) {
	svc := newTestService(t, nil)
	_, err := svc.Chat(context.Background(), "s1", "hello")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 DomainError, got %v", err)
	}
}

func TestSnapshotsUnconfigured(t *testing.T) {
	svc := newTestService(t, nil)
	_, err := svc.SaveSnapshot(context.Background(), "checkpoint")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "SNAPSHOTS_UNAVAILABLE" {
		t.Fatalf("expected SNAPSHOTS_UNAVAILABLE, got %v", err)
	}
}

func TestBootstrapSeedsEmptyStore(t *testing.T) {
	svc := newTestService(t, nil)
	if err := svc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	docs := svc.ListDocuments()
	if len(docs) != 1 {
		t.Fatalf("expected 1 seeded document, got %d", len(docs))
	}
	codes := svc.ListCodes()
	if len(codes) != 2 {
		t.Fatalf("expected 2 seeded codes, got %d", len(codes))
	}
	quotes := svc.ListQuotes(docs[0].ID)
	if len(quotes) != 2 {
		t.Fatalf("expected 2 seeded quotes, got %d", len(quotes))
	}
	for _, q := range quotes {
		if !q.HasOffsets() {
			t.Errorf("seeded quote missing offsets: %+v", q)
		}
	}

	// Bootstrap again must not duplicate the seed.
	if err := svc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("second Bootstrap failed: %v", err)
	}
	if len(svc.ListDocuments()) != 1 {
		t.Errorf("bootstrap is not idempotent")
	}
}

func TestAuditTrailRoundTrip(t *testing.T) {
	store := corpus.NewStore()
	trail, err := audit.New(t.TempDir())
	if err != nil {
		t.Fatalf("audit.New failed: %v", err)
	}
	svc := New(Deps{
		Store:   store,
		History: session.NewMemoryStore(),
		Trail:   trail,
	})

	doc, err := svc.CreateDocument(context.Background(), CreateDocumentInput{
		Title: "Interview", Type: "text", Content: "alpha beta",
	})
	if err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}

	entries, err := svc.AuditHistory(10)
	if err != nil {
		t.Fatalf("AuditHistory failed: %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("expected baseline + import entries, got %d", len(entries))
	}
	importHash := entries[0].Hash
	if !strings.Contains(entries[0].Message, "Interview") {
		t.Errorf("import entry message = %q", entries[0].Message)
	}

	if err := svc.DeleteDocument(context.Background(), doc.ID); err != nil {
		t.Fatalf("DeleteDocument failed: %v", err)
	}
	if len(svc.ListDocuments()) != 0 {
		t.Fatal("document not deleted")
	}

	if err := svc.RestoreFromAudit(importHash); err != nil {
		t.Fatalf("RestoreFromAudit failed: %v", err)
	}
	docs := svc.ListDocuments()
	if len(docs) != 1 || docs[0].Title != "Interview" {
		t.Errorf("rewind did not restore the document: %+v", docs)
	}
}

func TestDocumentRunsAndSelection(t *testing.T) {
	svc := newTestService(t, nil)
	doc := addTextDocument(t, svc, "d", "AB CD EF")
	code, _ := svc.CreateCode("x", "")
	if _, _, err := svc.CreateQuote(CreateQuoteInput{
		DocumentID: doc.ID,
		CodeID:     code.ID,
		Segment:    corpus.Segment{Text: "CD", Start: 3, End: 5},
	}); err != nil {
		t.Fatalf("CreateQuote failed: %v", err)
	}

	runs, err := svc.DocumentRuns(doc.ID)
	if err != nil {
		t.Fatalf("DocumentRuns failed: %v", err)
	}
	if len(runs) != 3 || runs[1].Text != "CD" || !runs[1].Coded() {
		t.Errorf("unexpected runs: %+v", runs)
	}

	seg, err := svc.MapSelection(doc.ID, "EF", 6)
	if err != nil {
		t.Fatalf("MapSelection failed: %v", err)
	}
	if seg == nil || seg.Start != 6 || seg.End != 8 {
		t.Errorf("unexpected segment: %+v", seg)
	}

	missing, err := svc.MapSelection(doc.ID, "ZZ", 0)
	if err != nil {
		t.Fatalf("MapSelection failed: %v", err)
	}
	if missing != nil {
		t.Errorf("unlocatable selection should map to nil, got %+v", missing)
	}
}
