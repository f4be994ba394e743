package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"skein/internal/corpus"
	"skein/internal/export"
	"skein/internal/search"
	"skein/internal/snapshot"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"snapshots": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["snapshots"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		limit, ok := queryInt(w, r, "limit", 20)
		if !ok {
			return
		}
		offset, ok := queryInt(w, r, "offset", 0)
		if !ok {
			return
		}

		payload, err := s.service.Search(search.Query{
			Text:       q,
			FilterType: search.ResultType(strings.TrimSpace(r.URL.Query().Get("type"))),
			Limit:      limit,
			Offset:     offset,
		})
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.URL.Path == "/api/documents" {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, map[string]any{"documents": s.service.ListDocuments()})
		case http.MethodPost:
			var body CreateDocumentInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			doc, err := s.service.CreateDocument(r.Context(), body)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"document": doc})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if r.URL.Path == "/api/codes" {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, map[string]any{"codes": s.service.ListCodes()})
		case http.MethodPost:
			var body struct {
				Name        string `json:"name"`
				Description string `json:"description"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			code, err := s.service.CreateCode(body.Name, body.Description)
			if err != nil {
				status, errCode, message, details := mapError(err)
				writeError(w, status, errCode, message, details)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"code": code})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/quotes" {
		documentID := strings.TrimSpace(r.URL.Query().Get("documentId"))
		writeJSON(w, http.StatusOK, map[string]any{"quotes": s.service.ListQuotes(documentID)})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/quotes" {
		var body CreateQuoteInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		quote, createdCode, err := s.service.CreateQuote(body)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		payload := map[string]any{"quote": quote}
		if createdCode != nil {
			payload["code"] = createdCode
		}
		writeJSON(w, http.StatusCreated, payload)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/quotes/reassign" {
		var body struct {
			QuoteIDs  []string `json:"quoteIds"`
			NewCodeID string   `json:"newCodeId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		moved, err := s.service.ReassignQuotes(body.QuoteIDs, body.NewCodeID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"moved": moved})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/chat" {
		var body struct {
			SessionID string `json:"sessionId"`
			Question  string `json:"question"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if strings.TrimSpace(body.SessionID) == "" {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "sessionId is required", nil)
			return
		}
		payload, err := s.service.Chat(r.Context(), body.SessionID, body.Question)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.URL.Path == "/api/snapshots" {
		switch r.Method {
		case http.MethodGet:
			limit, ok := queryInt(w, r, "limit", 20)
			if !ok {
				return
			}
			records, err := s.service.ListSnapshots(r.Context(), limit)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"snapshots": records})
		case http.MethodPost:
			var body struct {
				Label string `json:"label"`
			}
			_ = decodeBody(r, &body)
			rec, err := s.service.SaveSnapshot(r.Context(), body.Label)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"snapshot": rec})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/snapshots/restore" {
		var body struct {
			ID int64 `json:"id"`
		}
		_ = decodeBody(r, &body)
		rec, err := s.service.RestoreSnapshot(r.Context(), body.ID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"snapshot": rec})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/audit" {
		limit, ok := queryInt(w, r, "limit", 50)
		if !ok {
			return
		}
		entries, err := s.service.AuditHistory(limit)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/audit/restore" {
		var body struct {
			Hash string `json:"hash"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if strings.TrimSpace(body.Hash) == "" {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "hash is required", nil)
			return
		}
		if err := s.service.RestoreFromAudit(body.Hash); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	parts := splitPath(r.URL.Path)

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "documents" {
		s.handleDocuments(w, r, parts[2], parts)
		return
	}

	if len(parts) == 3 && parts[0] == "api" && parts[1] == "codes" {
		s.handleCode(w, r, parts[2])
		return
	}

	if len(parts) == 4 && parts[0] == "api" && parts[1] == "quotes" && parts[3] == "comments" {
		s.handleComments(w, r, parts[2])
		return
	}

	if len(parts) == 3 && parts[0] == "api" && parts[1] == "chat" && r.Method == http.MethodDelete {
		if err := s.service.ClearChat(r.Context(), parts[2]); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if len(parts) == 3 && parts[0] == "api" && parts[1] == "media" && r.Method == http.MethodGet {
		data, contentType, err := s.service.GetMedia(r.Context(), parts[2])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleDocuments(w http.ResponseWriter, r *http.Request, documentID string, parts []string) {
	if len(parts) == 3 {
		switch r.Method {
		case http.MethodGet:
			doc, err := s.service.GetDocument(documentID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"document": doc})
		case http.MethodDelete:
			if err := s.service.DeleteDocument(r.Context(), documentID); err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) == 4 && parts[3] == "runs" && r.Method == http.MethodGet {
		runs, err := s.service.DocumentRuns(documentID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
		return
	}

	if len(parts) == 4 && parts[3] == "quotes" && r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string]any{"quotes": s.service.ListQuotes(documentID)})
		return
	}

	if len(parts) == 4 && parts[3] == "selection" && r.Method == http.MethodPost {
		var body struct {
			Text string `json:"text"`
			Hint int    `json:"hint"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		segment, err := s.service.MapSelection(documentID, body.Text, body.Hint)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		// A selection that cannot be located is a null segment, not an error.
		writeJSON(w, http.StatusOK, map[string]any{"segment": segment})
		return
	}

	if len(parts) == 4 && parts[3] == "suggest" && r.Method == http.MethodPost {
		var body struct {
			Segment corpus.Segment `json:"segment"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		suggestions, err := s.service.SuggestCodes(r.Context(), documentID, body.Segment)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
		return
	}

	if len(parts) == 5 && parts[3] == "themes" && parts[4] == "detect" && r.Method == http.MethodPost {
		themes, err := s.service.DetectThemes(r.Context(), documentID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"themes": themes})
		return
	}

	if len(parts) == 5 && parts[3] == "themes" && parts[4] == "apply" && r.Method == http.MethodPost {
		var body struct {
			Themes []corpus.Theme `json:"themes"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		codes, quotes, err := s.service.ApplyThemes(documentID, body.Themes)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"codes": codes, "quotes": quotes})
		return
	}

	if len(parts) == 4 && parts[3] == "export" && r.Method == http.MethodPost {
		var body struct {
			Format          string `json:"format"`
			IncludeQuotes   bool   `json:"includeQuotes"`
			IncludeComments bool   `json:"includeComments"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}

		format := export.Format(body.Format)
		if format != export.FormatPDF && format != export.FormatDOCX {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "format must be 'pdf' or 'docx'", nil)
			return
		}

		result, err := s.service.ExportDocument(r.Context(), export.Request{
			DocumentID:      documentID,
			Format:          format,
			IncludeQuotes:   body.IncludeQuotes,
			IncludeComments: body.IncludeComments,
		})
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}

		w.Header().Set("Content-Disposition", "attachment; filename=\""+result.Filename+"\"")
		w.Header().Set("Content-Type", result.MimeType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleCode(w http.ResponseWriter, r *http.Request, codeID string) {
	switch r.Method {
	case http.MethodPut:
		var body struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		code, err := s.service.UpdateCode(codeID, body.Name, body.Description)
		if err != nil {
			status, errCode, message, details := mapError(err)
			writeError(w, status, errCode, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"code": code})
	case http.MethodDelete:
		if err := s.service.DeleteCode(codeID); err != nil {
			status, errCode, message, details := mapError(err)
			writeError(w, status, errCode, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleComments(w http.ResponseWriter, r *http.Request, quoteID string) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"comments": s.service.ListComments(quoteID)})
	case http.MethodPost:
		var body struct {
			Text string `json:"text"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		comment, err := s.service.AddComment(quoteID, body.Text)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"comment": comment})
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func queryInt(w http.ResponseWriter, r *http.Request, name string, fallback int) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, true
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", name+" must be an integer", nil)
		return 0, false
	}
	return parsed, true
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, corpus.ErrDocumentNotFound):
		return http.StatusNotFound, "DOCUMENT_NOT_FOUND", "Document not found", nil
	case errors.Is(err, corpus.ErrCodeNotFound):
		return http.StatusNotFound, "CODE_NOT_FOUND", "Code not found", nil
	case errors.Is(err, corpus.ErrQuoteNotFound):
		return http.StatusNotFound, "QUOTE_NOT_FOUND", "Quote not found", nil
	case errors.Is(err, corpus.ErrInvalidSegment):
		return http.StatusUnprocessableEntity, "INVALID_SEGMENT", "Segment offsets do not match document text", nil
	case errors.Is(err, snapshot.ErrNoSnapshots):
		return http.StatusNotFound, "NO_SNAPSHOTS", "No snapshots saved", nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Export format not supported", nil
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
		return http.StatusServiceUnavailable, "EXPORT_DEPENDENCY_MISSING", "Export dependency not installed", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
