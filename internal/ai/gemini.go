package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"skein/internal/corpus"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	flashModel     = "gemini-2.5-flash"
	proModel       = "gemini-2.5-pro"
	requestTimeout = 5 * time.Minute
)

// documentContextLimit caps how much document text is sent as context for
// code suggestions.
const documentContextLimit = 4000

// Gemini implements Collaborator against the Gemini generateContent REST API.
type Gemini struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewGemini creates a Gemini-backed collaborator.
func NewGemini(apiKey string) *Gemini {
	return &Gemini{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

type generateRequest struct {
	SystemInstruction *content        `json:"systemInstruction,omitempty"`
	Contents          []content       `json:"contents"`
	GenerationConfig  *generateConfig `json:"generationConfig,omitempty"`
}

type generateConfig struct {
	ResponseMIMEType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   json.RawMessage `json:"responseSchema,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

var suggestionSchema = json.RawMessage(`{
  "type": "ARRAY",
  "items": {
    "type": "OBJECT",
    "properties": {
      "id": {"type": "STRING"},
      "name": {"type": "STRING"},
      "description": {"type": "STRING"}
    },
    "required": ["id", "name", "description"]
  }
}`)

var themeSchema = json.RawMessage(`{
  "type": "ARRAY",
  "items": {
    "type": "OBJECT",
    "properties": {
      "code": {
        "type": "OBJECT",
        "properties": {
          "name": {"type": "STRING"},
          "description": {"type": "STRING"}
        },
        "required": ["name", "description"]
      },
      "quotes": {"type": "ARRAY", "items": {"type": "STRING"}}
    },
    "required": ["code", "quotes"]
  }
}`)

const suggestInstruction = `You are an expert qualitative researcher. Suggest relevant codes for the given text segment.
- Analyze the segment in the context of the full document.
- If existing codes are highly relevant, suggest them with their original "id".
- If the segment introduces a new concept, suggest a new code with a temporary "id" starting with "new-".
- Return a JSON array of {id, name, description}; prioritize concise code names.
- If no codes are relevant, return an empty array.`

const themeInstruction = `You are an expert qualitative data analyst. Identify the main themes in the document.
- For each theme, propose a concise code name and a brief description.
- For each theme, extract a few (3-5) representative quotes verbatim from the document.
- Do NOT reuse existing code names; generate new ones from the document.
- Output a JSON array of {code: {name, description}, quotes: [string]}.
- If no significant themes are found, return an empty array.`

const transcribeInstruction = `You transcribe audio and video files. Provide a verbatim transcript of the content with no commentary or introductory text, just the transcribed speech.`

const chatInstruction = `You are a research assistant for a qualitative analysis application. Answer questions about the user's documents, codes and quotes.
- Be concise and helpful.
- Base answers strictly on the provided data context; if the question cannot be answered from it, say so.`

// SuggestCodes asks for codes fitting a selected segment. Existing codes come
// back by id with their stored color; new suggestions carry the "new-"
// sentinel and a neutral placeholder color until they are created for real.
func (g *Gemini) SuggestCodes(ctx context.Context, segment corpus.Segment, doc corpus.Document, existing []corpus.Code) ([]corpus.Code, error) {
	existingJSON, err := json.Marshal(summarizeCodes(existing))
	if err != nil {
		return nil, fmt.Errorf("marshal existing codes: %w", err)
	}

	docContext := doc.SourceText()
	if len(docContext) > documentContextLimit {
		docContext = docContext[:documentContextLimit] + "..."
	}

	prompt := fmt.Sprintf("DOCUMENT CONTEXT:\n---\n%s\n---\nSELECTED SEGMENT:\n---\n%q\n---\nEXISTING CODES:\n---\n%s\n---\nSuggest relevant codes for the selected segment.",
		docContext, segment.Text, existingJSON)

	raw, err := g.generate(ctx, flashModel, suggestInstruction, []part{{Text: prompt}}, suggestionSchema)
	if err != nil {
		return nil, err
	}

	var suggestions []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal([]byte(raw), &suggestions); err != nil {
		return nil, fmt.Errorf("decode suggestions: %w", err)
	}

	colorByID := make(map[string]string, len(existing))
	for _, c := range existing {
		colorByID[c.ID] = c.Color
	}

	codes := make([]corpus.Code, 0, len(suggestions))
	for _, s := range suggestions {
		color, ok := colorByID[s.ID]
		if !ok {
			color = "#e2e8f0" // placeholder until the code is created
		}
		codes = append(codes, corpus.Code{ID: s.ID, Name: s.Name, Description: s.Description, Color: color})
	}
	return codes, nil
}

// DetectThemes identifies major themes in a text document.
func (g *Gemini) DetectThemes(ctx context.Context, doc corpus.Document, existing []corpus.Code) ([]corpus.Theme, error) {
	names := make([]string, 0, len(existing))
	for _, c := range existing {
		names = append(names, c.Name)
	}
	namesJSON, err := json.Marshal(names)
	if err != nil {
		return nil, fmt.Errorf("marshal existing code names: %w", err)
	}

	prompt := fmt.Sprintf("DOCUMENT:\n---\n%s\n---\nEXISTING CODES TO AVOID DUPLICATING:\n---\n%s\n---\nIdentify the major themes as instructed.",
		doc.SourceText(), namesJSON)

	raw, err := g.generate(ctx, proModel, themeInstruction, []part{{Text: prompt}}, themeSchema)
	if err != nil {
		return nil, err
	}

	var themes []corpus.Theme
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &themes); err != nil {
		return nil, fmt.Errorf("decode themes: %w", err)
	}
	return themes, nil
}

// TranscribeMedia produces a verbatim transcript of raw audio/video bytes.
func (g *Gemini) TranscribeMedia(ctx context.Context, mimeType string, data []byte) (string, error) {
	if !strings.HasPrefix(mimeType, "audio/") && !strings.HasPrefix(mimeType, "video/") {
		return "", fmt.Errorf("unsupported mime type for transcription: %s", mimeType)
	}

	parts := []part{
		{Text: "Transcribe this file verbatim."},
		{InlineData: &inlineData{MIMEType: mimeType, Data: base64.StdEncoding.EncodeToString(data)}},
	}
	raw, err := g.generate(ctx, proModel, transcribeInstruction, parts, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

// AnswerQuestion answers a free-text question given the corpus and the chat
// history so far.
func (g *Gemini) AnswerQuestion(ctx context.Context, question string, history []Message, docs []corpus.Document, codes []corpus.Code, quotes []corpus.Quote) (string, error) {
	prompt := fmt.Sprintf("CONTEXT:\n%s\n---\nCHAT HISTORY:\n%s\n---\nNEW QUESTION: %s",
		BuildContext(docs, codes, quotes), renderHistory(history), question)

	raw, err := g.generate(ctx, proModel, chatInstruction, []part{{Text: prompt}}, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

// BuildContext renders the corpus summary handed to the chat model: document
// titles and types, code names and descriptions, and the quote count.
func BuildContext(docs []corpus.Document, codes []corpus.Code, quotes []corpus.Quote) string {
	var b strings.Builder
	b.WriteString("DOCUMENTS:\n")
	for _, d := range docs {
		fmt.Fprintf(&b, "- %s (type: %s)\n", d.Title, d.Type)
	}
	b.WriteString("\nCODES (THEMES):\n")
	for _, c := range codes {
		fmt.Fprintf(&b, "- %s: %s\n", c.Name, c.Description)
	}
	fmt.Fprintf(&b, "\nQUOTES: %d quotes have been created linking documents to codes.\n", len(quotes))
	return b.String()
}

func renderHistory(history []Message) string {
	lines := make([]string, 0, len(history))
	for _, msg := range history {
		who := "AI"
		if msg.Sender == "user" {
			who = "User"
		}
		lines = append(lines, who+": "+msg.Text)
	}
	return strings.Join(lines, "\n")
}

func summarizeCodes(codes []corpus.Code) []map[string]string {
	out := make([]map[string]string, 0, len(codes))
	for _, c := range codes {
		out = append(out, map[string]string{
			"id":          c.ID,
			"name":        c.Name,
			"description": c.Description,
		})
	}
	return out
}

func (g *Gemini) generate(ctx context.Context, model, instruction string, parts []part, schema json.RawMessage) (string, error) {
	if strings.TrimSpace(g.apiKey) == "" {
		return "", errors.New("gemini api key is not configured")
	}

	reqBody := generateRequest{
		SystemInstruction: &content{Parts: []part{{Text: instruction}}},
		Contents:          []content{{Parts: parts}},
	}
	if schema != nil {
		reqBody.GenerationConfig = &generateConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   schema,
		}
	}

	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(reqBody); err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", decodeAPIError(resp)
	}

	var payload struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(payload.Candidates) == 0 || len(payload.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("gemini returned no candidates")
	}

	var text strings.Builder
	for _, p := range payload.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	return text.String(), nil
}

func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var apiErr struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("gemini api error: status %d %s: %s", resp.StatusCode, apiErr.Error.Status, apiErr.Error.Message)
	}
	return fmt.Errorf("gemini api error: status %d body %s", resp.StatusCode, string(body))
}
