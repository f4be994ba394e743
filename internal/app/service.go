// Package app wires the annotation store and its collaborators behind the
// HTTP surface.
package app

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"skein/internal/ai"
	"skein/internal/audit"
	"skein/internal/corpus"
	"skein/internal/export"
	"skein/internal/media"
	"skein/internal/search"
	"skein/internal/session"
	"skein/internal/snapshot"
)

const transcriptionTimeout = 10 * time.Minute

// Deps collects the service's collaborators. Store, History and Search are
// required; the rest may be nil when the backing system is not configured,
// and the corresponding endpoints report that instead of failing.
type Deps struct {
	Store     *corpus.Store
	Collab    ai.Collaborator
	History   session.HistoryStore
	Search    *search.Service
	Exporter  *export.Service
	Snapshots *snapshot.Store
	Trail     *audit.Service
	Media     *media.Store
}

type Service struct {
	store     *corpus.Store
	collab    ai.Collaborator
	history   session.HistoryStore
	search    *search.Service
	exporter  *export.Service
	snapshots *snapshot.Store
	trail     *audit.Service
	media     *media.Store
}

func New(deps Deps) *Service {
	return &Service{
		store:     deps.Store,
		collab:    deps.Collab,
		history:   deps.History,
		search:    deps.Search,
		exporter:  deps.Exporter,
		snapshots: deps.Snapshots,
		trail:     deps.Trail,
		media:     deps.Media,
	}
}

// Bootstrap restores the latest snapshot if one exists, otherwise seeds the
// corpus with a starter interview so a fresh install has something to code.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.snapshots != nil {
		snap, rec, err := s.snapshots.LoadLatest(ctx)
		if err == nil {
			s.store.Restore(snap)
			if s.search != nil {
				s.search.Reindex(snap)
			}
			log.Printf("restored snapshot %d from %s", rec.ID, rec.CreatedAt.Format(time.RFC3339))
			return nil
		}
		if !errors.Is(err, snapshot.ErrNoSnapshots) {
			return fmt.Errorf("load latest snapshot: %w", err)
		}
	}

	docs, codes, _ := s.store.Counts()
	if docs > 0 || codes > 0 {
		return nil
	}

	s.seedCorpus()
	if s.search != nil {
		s.search.Reindex(s.store.Snapshot())
	}
	s.record("system", "Seed starter corpus")
	return nil
}

func (s *Service) seedCorpus() {
	doc := s.store.AddDocument(corpus.Document{
		Title: "Interview with Participant 1",
		Type:  corpus.TypeText,
		Content: "Interviewer: Thanks for joining. Can you tell me about your experience with the new product?\n\n" +
			"Participant: Sure. Overall, I found it really intuitive. The design is clean, and I love the color scheme. " +
			"However, I did struggle with the export feature. It took me a while to find the button, and the options were confusing. " +
			"I expected it to be under the 'File' menu, but it was hidden in a side panel.\n\n" +
			"Interviewer: That's interesting. What would you improve?\n\n" +
			"Participant: Definitely the onboarding for advanced features. The basics are easy, but things like exporting or sharing need better tutorials.",
	})

	praise := s.store.AddCode("Positive Feedback", "User expresses satisfaction or delight")
	friction := s.store.AddCode("Usability Issue", "User struggles to locate or understand a feature")

	source := doc.Content
	for _, seed := range []struct {
		codeID string
		text   string
	}{
		{praise.ID, "I found it really intuitive"},
		{friction.ID, "I did struggle with the export feature"},
	} {
		start, ok := corpus.Locate(seed.text, source)
		if !ok {
			continue
		}
		seg := corpus.Segment{Text: seed.text, Start: start, End: start + len(seed.text)}
		if _, err := s.store.AddQuote(doc.ID, seed.codeID, seg); err != nil {
			log.Printf("seed quote failed: %v", err)
		}
	}
}

// record commits the current corpus to the audit trail, best effort.
func (s *Service) record(actor, message string) {
	if s.trail == nil {
		return
	}
	if _, err := s.trail.Record(s.store.Snapshot(), actor, message); err != nil {
		log.Printf("audit: record failed: %v", err)
	}
}

// Ping reports snapshot-store connectivity for the readiness probe.
func (s *Service) Ping(ctx context.Context) error {
	if s.snapshots == nil {
		return nil
	}
	return s.snapshots.Ping(ctx)
}

// ── Documents ──

type CreateDocumentInput struct {
	Title    string          `json:"title"`
	Type     string          `json:"type"`
	Content  string          `json:"content"`
	MimeType string          `json:"mimeType"`
	Metadata corpus.Metadata `json:"metadata"`
}

func (s *Service) CreateDocument(ctx context.Context, in CreateDocumentInput) (corpus.Document, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return corpus.Document{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}

	docType := corpus.DocumentType(in.Type)
	switch docType {
	case corpus.TypeText, corpus.TypeImage, corpus.TypeAudio, corpus.TypeVideo:
	default:
		return corpus.Document{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "type must be text, image, audio or video", nil)
	}

	doc := corpus.Document{
		Title:    title,
		Type:     docType,
		Metadata: in.Metadata,
	}

	if docType == corpus.TypeText {
		if strings.TrimSpace(in.Content) == "" {
			return corpus.Document{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content is required for text documents", nil)
		}
		doc.Content = in.Content
		doc = s.store.AddDocument(doc)
		s.indexDocument(doc)
		s.record("researcher", fmt.Sprintf("Import document %q", doc.Title))
		return doc, nil
	}

	// Media documents arrive as base64. The raw bytes go to object storage;
	// audio and video additionally start a transcription cycle.
	var data []byte
	if in.Content != "" {
		decoded, err := base64.StdEncoding.DecodeString(in.Content)
		if err != nil {
			return corpus.Document{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content must be base64 for media documents", nil)
		}
		data = decoded
	}

	transcribable := (docType == corpus.TypeAudio || docType == corpus.TypeVideo) &&
		s.collab != nil && len(data) > 0
	doc.IsTranscribing = transcribable
	doc = s.store.AddDocument(doc)

	if s.media != nil && len(data) > 0 {
		if err := s.media.Put(ctx, doc.ID, data, in.MimeType); err != nil {
			log.Printf("media: store %s: %v", doc.ID, err)
		}
	}

	if transcribable {
		go s.transcribe(doc.ID, in.MimeType, data)
	}

	s.indexDocument(doc)
	s.record("researcher", fmt.Sprintf("Import document %q", doc.Title))
	return doc, nil
}

// transcribe runs in the background; the result is keyed by document id, so
// a late finish lands on the right document even if the researcher has moved
// on or deleted it in the meantime.
func (s *Service) transcribe(documentID, mimeType string, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), transcriptionTimeout)
	defer cancel()

	transcript, err := s.collab.TranscribeMedia(ctx, mimeType, data)
	if err != nil {
		log.Printf("transcription failed for %s: %v", documentID, err)
		if clearErr := s.store.ClearTranscribing(documentID); clearErr != nil {
			log.Printf("clear transcribing flag for %s: %v", documentID, clearErr)
		}
		return
	}

	if err := s.store.SetTranscript(documentID, transcript); err != nil {
		// Document was deleted while we were transcribing.
		log.Printf("set transcript for %s: %v", documentID, err)
		return
	}
	if doc, err := s.store.GetDocument(documentID); err == nil {
		s.indexDocument(doc)
	}
	s.record("system", fmt.Sprintf("Transcribe document %s", documentID))
}

func (s *Service) ListDocuments() []corpus.Document {
	return s.store.ListDocuments()
}

func (s *Service) GetDocument(id string) (corpus.Document, error) {
	return s.store.GetDocument(id)
}

func (s *Service) DeleteDocument(ctx context.Context, id string) error {
	quotes := s.store.ListQuotes(id)
	if err := s.store.DeleteDocument(id); err != nil {
		return err
	}

	if s.search != nil {
		s.search.DocumentRemoved(id)
		for _, q := range quotes {
			s.search.QuoteRemoved(q.ID)
		}
	}
	if s.media != nil {
		if err := s.media.Remove(ctx, id); err != nil {
			log.Printf("media: remove %s: %v", id, err)
		}
	}
	s.record("researcher", fmt.Sprintf("Delete document %s", id))
	return nil
}

// DocumentRuns resolves a document's quotes into renderable runs.
func (s *Service) DocumentRuns(id string) ([]corpus.Run, error) {
	doc, err := s.store.GetDocument(id)
	if err != nil {
		return nil, err
	}
	return corpus.Resolve(doc.SourceText(), s.store.ListQuotes(id), s.store.ListCodes()), nil
}

// MapSelection maps a selected text onto document offsets. A nil segment
// means the selection could not be located; callers treat that as "nothing
// to code", not an error.
func (s *Service) MapSelection(id, selected string, hint int) (*corpus.Segment, error) {
	doc, err := s.store.GetDocument(id)
	if err != nil {
		return nil, err
	}
	return corpus.MapSelection(doc.SourceText(), selected, hint), nil
}

func (s *Service) indexDocument(doc corpus.Document) {
	if s.search != nil {
		s.search.DocumentChanged(doc)
	}
}

// ── Codes ──

func (s *Service) CreateCode(name, description string) (corpus.Code, error) {
	if strings.TrimSpace(name) == "" {
		return corpus.Code{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	code := s.store.AddCode(strings.TrimSpace(name), description)
	if s.search != nil {
		s.search.CodeChanged(code)
	}
	s.record("researcher", fmt.Sprintf("Create code %q", code.Name))
	return code, nil
}

func (s *Service) UpdateCode(id, name, description string) (corpus.Code, error) {
	if strings.TrimSpace(name) == "" {
		return corpus.Code{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	code, err := s.store.UpdateCode(id, strings.TrimSpace(name), description)
	if err != nil {
		return corpus.Code{}, err
	}
	if s.search != nil {
		s.search.CodeChanged(code)
	}
	return code, nil
}

func (s *Service) DeleteCode(id string) error {
	var orphaned []string
	for _, q := range s.store.ListQuotes("") {
		if q.CodeID == id {
			orphaned = append(orphaned, q.ID)
		}
	}
	if err := s.store.DeleteCode(id); err != nil {
		return err
	}
	if s.search != nil {
		s.search.CodeRemoved(id)
		for _, quoteID := range orphaned {
			s.search.QuoteRemoved(quoteID)
		}
	}
	s.record("researcher", fmt.Sprintf("Delete code %s", id))
	return nil
}

func (s *Service) ListCodes() []corpus.Code {
	return s.store.ListCodes()
}

// ── Quotes ──

type CreateQuoteInput struct {
	DocumentID         string         `json:"documentId"`
	CodeID             string         `json:"codeId"`
	Segment            corpus.Segment `json:"segment"`
	NewCodeName        string         `json:"newCodeName"`
	NewCodeDescription string         `json:"newCodeDescription"`
}

// CreateQuote applies a code to a selected segment. A codeId carrying the
// new- sentinel materializes the suggested code first, with the next palette
// color.
func (s *Service) CreateQuote(in CreateQuoteInput) (corpus.Quote, *corpus.Code, error) {
	codeID := in.CodeID
	var created *corpus.Code

	if ai.IsNewCode(codeID) {
		name := strings.TrimSpace(in.NewCodeName)
		if name == "" {
			name = strings.TrimPrefix(codeID, ai.NewCodePrefix)
		}
		if name == "" {
			return corpus.Quote{}, nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "suggested code needs a name", nil)
		}
		code := s.store.AddCode(name, in.NewCodeDescription)
		if s.search != nil {
			s.search.CodeChanged(code)
		}
		created = &code
		codeID = code.ID
	} else {
		found := false
		for _, c := range s.store.ListCodes() {
			if c.ID == codeID {
				found = true
				break
			}
		}
		if !found {
			return corpus.Quote{}, nil, corpus.ErrCodeNotFound
		}
	}

	quote, err := s.store.AddQuote(in.DocumentID, codeID, in.Segment)
	if err != nil {
		return corpus.Quote{}, nil, err
	}

	if s.search != nil {
		s.search.QuoteChanged(quote, s.codeName(codeID))
	}
	s.record("researcher", fmt.Sprintf("Code quote %q", truncate(quote.Text, 40)))
	return quote, created, nil
}

func (s *Service) ListQuotes(documentID string) []corpus.Quote {
	return s.store.ListQuotes(documentID)
}

func (s *Service) ReassignQuotes(quoteIDs []string, newCodeID string) (int, error) {
	found := false
	for _, c := range s.store.ListCodes() {
		if c.ID == newCodeID {
			found = true
			break
		}
	}
	if !found {
		return 0, corpus.ErrCodeNotFound
	}

	moved := s.store.ReassignQuotes(quoteIDs, newCodeID)
	if s.search != nil {
		name := s.codeName(newCodeID)
		for _, q := range s.store.ListQuotes("") {
			if q.CodeID == newCodeID {
				s.search.QuoteChanged(q, name)
			}
		}
	}
	if moved > 0 {
		s.record("researcher", fmt.Sprintf("Reassign %d quotes to %s", moved, newCodeID))
	}
	return moved, nil
}

func (s *Service) codeName(codeID string) string {
	for _, c := range s.store.ListCodes() {
		if c.ID == codeID {
			return c.Name
		}
	}
	return ""
}

// ── Comments ──

func (s *Service) AddComment(quoteID, text string) (corpus.Comment, error) {
	if strings.TrimSpace(text) == "" {
		return corpus.Comment{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "text is required", nil)
	}
	return s.store.AddComment(quoteID, text)
}

func (s *Service) ListComments(quoteID string) []corpus.Comment {
	return s.store.ListComments(quoteID)
}

// ── AI collaborator ──

func (s *Service) requireCollaborator() error {
	if s.collab == nil {
		return domainError(http.StatusServiceUnavailable, "AI_UNAVAILABLE", "AI collaborator not configured", nil)
	}
	return nil
}

// SuggestCodes asks the collaborator for codes fitting a selected segment.
// Failures never mutate the store.
func (s *Service) SuggestCodes(ctx context.Context, documentID string, seg corpus.Segment) ([]corpus.Code, error) {
	if err := s.requireCollaborator(); err != nil {
		return nil, err
	}
	doc, err := s.store.GetDocument(documentID)
	if err != nil {
		return nil, err
	}

	suggestions, err := s.collab.SuggestCodes(ctx, seg, doc, s.store.ListCodes())
	if err != nil {
		return nil, domainError(http.StatusBadGateway, "AI_ERROR", "code suggestion failed", err.Error())
	}
	return suggestions, nil
}

// DetectThemes proposes themes for a text document. Non-text documents are
// rejected up front; the resolver can render their transcripts, but theme
// offsets are only meaningful against immutable text content.
func (s *Service) DetectThemes(ctx context.Context, documentID string) ([]corpus.Theme, error) {
	if err := s.requireCollaborator(); err != nil {
		return nil, err
	}
	doc, err := s.store.GetDocument(documentID)
	if err != nil {
		return nil, err
	}
	if doc.Type != corpus.TypeText {
		return nil, domainError(http.StatusUnprocessableEntity, "THEMES_TEXT_ONLY", "theme detection requires a text document", nil)
	}

	themes, err := s.collab.DetectThemes(ctx, doc, s.store.ListCodes())
	if err != nil {
		return nil, domainError(http.StatusBadGateway, "AI_ERROR", "theme detection failed", err.Error())
	}
	return themes, nil
}

// ApplyThemes materializes detected themes into codes and quotes.
func (s *Service) ApplyThemes(documentID string, themes []corpus.Theme) ([]corpus.Code, []corpus.Quote, error) {
	codes, quotes, err := s.store.ApplyThemes(documentID, themes)
	if err != nil {
		return nil, nil, err
	}

	if s.search != nil {
		names := make(map[string]string, len(codes))
		for _, c := range codes {
			names[c.ID] = c.Name
			s.search.CodeChanged(c)
		}
		for _, q := range quotes {
			s.search.QuoteChanged(q, names[q.CodeID])
		}
	}
	s.record("researcher", fmt.Sprintf("Apply %d themes to %s", len(themes), documentID))
	return codes, quotes, nil
}

// ChatResponse is the answer plus the running transcript.
type ChatResponse struct {
	Answer  string       `json:"answer"`
	History []ai.Message `json:"history"`
}

// Chat answers a question about the corpus, keeping per-session history.
func (s *Service) Chat(ctx context.Context, sessionID, question string) (ChatResponse, error) {
	if err := s.requireCollaborator(); err != nil {
		return ChatResponse{}, err
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return ChatResponse{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "question is required", nil)
	}

	history, err := s.history.History(ctx, sessionID)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("load chat history: %w", err)
	}

	answer, err := s.collab.AnswerQuestion(ctx, question, history,
		s.store.ListDocuments(), s.store.ListCodes(), s.store.ListQuotes(""))
	if err != nil {
		return ChatResponse{}, domainError(http.StatusBadGateway, "AI_ERROR", "chat failed", err.Error())
	}

	turn := []ai.Message{
		{Sender: "user", Text: question},
		{Sender: "ai", Text: answer},
	}
	if err := s.history.Append(ctx, sessionID, turn...); err != nil {
		log.Printf("append chat history: %v", err)
	}

	return ChatResponse{Answer: answer, History: append(history, turn...)}, nil
}

// ClearChat drops a session's history.
func (s *Service) ClearChat(ctx context.Context, sessionID string) error {
	return s.history.Clear(ctx, sessionID)
}

// ── Search ──

func (s *Service) Search(q search.Query) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}, nil
	}
	return s.search.Search(q)
}

// ── Export ──

func (s *Service) ExportDocument(ctx context.Context, req export.Request) (*export.Result, error) {
	if s.exporter == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "export not configured", nil)
	}
	return s.exporter.Export(ctx, req)
}

// ── Snapshots ──

func (s *Service) requireSnapshots() error {
	if s.snapshots == nil {
		return domainError(http.StatusServiceUnavailable, "SNAPSHOTS_UNAVAILABLE", "snapshot persistence not configured", nil)
	}
	return nil
}

func (s *Service) SaveSnapshot(ctx context.Context, label string) (snapshot.Record, error) {
	if err := s.requireSnapshots(); err != nil {
		return snapshot.Record{}, err
	}
	rec, err := s.snapshots.Save(ctx, s.store.Snapshot(), label)
	if err != nil {
		return snapshot.Record{}, err
	}
	s.record("researcher", fmt.Sprintf("Save snapshot %d", rec.ID))
	return rec, nil
}

func (s *Service) ListSnapshots(ctx context.Context, limit int) ([]snapshot.Record, error) {
	if err := s.requireSnapshots(); err != nil {
		return nil, err
	}
	return s.snapshots.List(ctx, limit)
}

// RestoreSnapshot replaces the corpus with a saved snapshot. id <= 0 means
// the latest.
func (s *Service) RestoreSnapshot(ctx context.Context, id int64) (snapshot.Record, error) {
	if err := s.requireSnapshots(); err != nil {
		return snapshot.Record{}, err
	}

	var (
		snap corpus.Snapshot
		rec  snapshot.Record
		err  error
	)
	if id <= 0 {
		snap, rec, err = s.snapshots.LoadLatest(ctx)
	} else {
		snap, rec, err = s.snapshots.Load(ctx, id)
	}
	if err != nil {
		return snapshot.Record{}, err
	}

	s.store.Restore(snap)
	if s.search != nil {
		s.search.Reindex(snap)
	}
	s.record("researcher", fmt.Sprintf("Restore snapshot %d", rec.ID))
	return rec, nil
}

// ── Audit trail ──

func (s *Service) requireTrail() error {
	if s.trail == nil {
		return domainError(http.StatusServiceUnavailable, "AUDIT_UNAVAILABLE", "audit trail not configured", nil)
	}
	return nil
}

func (s *Service) AuditHistory(limit int) ([]audit.CommitInfo, error) {
	if err := s.requireTrail(); err != nil {
		return nil, err
	}
	return s.trail.History(limit)
}

// RestoreFromAudit rewinds the corpus to a trail commit.
func (s *Service) RestoreFromAudit(hash string) error {
	if err := s.requireTrail(); err != nil {
		return err
	}
	snap, err := s.trail.SnapshotAt(hash)
	if err != nil {
		return domainError(http.StatusNotFound, "COMMIT_NOT_FOUND", "audit commit not found", err.Error())
	}
	s.store.Restore(snap)
	if s.search != nil {
		s.search.Reindex(snap)
	}
	s.record("researcher", fmt.Sprintf("Rewind to %s", hash))
	return nil
}

// ── Media ──

// GetMedia streams stored media bytes for playback.
func (s *Service) GetMedia(ctx context.Context, documentID string) ([]byte, string, error) {
	if s.media == nil {
		return nil, "", domainError(http.StatusServiceUnavailable, "MEDIA_UNAVAILABLE", "media storage not configured", nil)
	}
	if _, err := s.store.GetDocument(documentID); err != nil {
		return nil, "", err
	}
	return s.media.Get(ctx, documentID)
}

func truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}
