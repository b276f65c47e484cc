package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"drafthub/internal/contextutil"
	"drafthub/internal/llm"
	"drafthub/internal/publish"
	"drafthub/internal/session"
	"drafthub/internal/storage"
)

// Completer continues a piece of writing.
type Completer interface {
	Continue(ctx context.Context, prefix string, params llm.ChatParams) (string, error)
}

// DraftHandler exposes the draft lifecycle over HTTP.
type DraftHandler struct {
	service   publish.Service
	completer Completer
}

// NewDraftHandler creates a new DraftHandler. completer may be nil, in which
// case the completion endpoint answers 503.
func NewDraftHandler(service publish.Service, completer Completer) *DraftHandler {
	return &DraftHandler{service: service, completer: completer}
}

// AutoSaveRequest is the PATCH payload. Omitted fields are left unchanged.
type AutoSaveRequest struct {
	GroupID       *string         `json:"groupId"`
	RelatedNoteID *string         `json:"relatedNoteId"`
	Title         *string         `json:"title"`
	Topics        []string        `json:"topics"`
	Body          json.RawMessage `json:"body"`
}

// DraftRequest is the PUT and publish payload carrying the full draft state.
type DraftRequest struct {
	GroupID       string          `json:"groupId"`
	RelatedNoteID string          `json:"relatedNoteId"`
	Title         string          `json:"title"`
	Topics        []string        `json:"topics"`
	Body          json.RawMessage `json:"body"`
}

// DraftResponse wraps a draft.
type DraftResponse struct {
	Draft *storage.Draft `json:"draft"`
}

// PublishResponse reports the published note and whether it reached the
// search index.
type PublishResponse struct {
	Note    *storage.Note `json:"note"`
	Indexed bool          `json:"indexed"`
	Warning string        `json:"warning,omitempty"`
}

// CompletionRequest carries the text to continue.
type CompletionRequest struct {
	Text        string  `json:"text"`
	MaxTokens   int     `json:"maxTokens,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
}

// CompletionResponse carries the generated continuation.
type CompletionResponse struct {
	Completion string `json:"completion"`
}

// Create handles POST /api/drafts.
func (h *DraftHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	draft, err := h.service.CreateDraft(ctx)
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to create draft")
		return
	}
	writeJSON(ctx, w, http.StatusCreated, DraftResponse{Draft: draft})
}

// AutoSave handles PATCH /api/drafts/{draftID}.
func (h *DraftHandler) AutoSave(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req AutoSaveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(ctx, w, http.StatusBadRequest, "Invalid request body")
		return
	}

	draft, err := h.service.AutoSave(ctx, publish.AutoSaveRequest{
		DraftID:       chi.URLParam(r, "draftID"),
		GroupID:       req.GroupID,
		RelatedNoteID: req.RelatedNoteID,
		Title:         req.Title,
		Topics:        req.Topics,
		Body:          documentOrNil(req.Body),
	})
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to save draft")
		return
	}
	writeJSON(ctx, w, http.StatusOK, DraftResponse{Draft: draft})
}

// Save handles PUT /api/drafts/{draftID}.
func (h *DraftHandler) Save(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := h.decodeDraftRequest(w, r)
	if !ok {
		return
	}

	draft, err := h.service.SaveDraft(ctx, req)
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to save draft")
		return
	}
	writeJSON(ctx, w, http.StatusOK, DraftResponse{Draft: draft})
}

// Publish handles POST /api/drafts/{draftID}/publish. A note that committed
// but could not be indexed is still a success.
func (h *DraftHandler) Publish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	req, ok := h.decodeDraftRequest(w, r)
	if !ok {
		return
	}

	note, err := h.service.Publish(ctx, req)
	var indexErr *publish.IndexError
	switch {
	case err == nil:
		writeJSON(ctx, w, http.StatusOK, PublishResponse{Note: note, Indexed: true})
	case errors.As(err, &indexErr) && note != nil:
		logger.WarnContext(ctx, "note published without index update", "note_id", note.ID, "error", err)
		writeJSON(ctx, w, http.StatusOK, PublishResponse{
			Note:    note,
			Indexed: false,
			Warning: "Published, but the note is not searchable yet",
		})
	default:
		handleServiceError(ctx, w, err, "Failed to publish draft")
	}
}

// Completion handles POST /api/drafts/{draftID}/completion.
func (h *DraftHandler) Completion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if _, ok := session.UserFromContext(ctx); !ok {
		writeError(ctx, w, http.StatusUnauthorized, "Authentication required")
		return
	}
	if h.completer == nil {
		writeError(ctx, w, http.StatusServiceUnavailable, "Completion is not configured")
		return
	}

	var req CompletionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(ctx, w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSON(ctx, w, http.StatusBadRequest, ErrorResponse{Error: "text cannot be empty", Field: "text"})
		return
	}

	completion, err := h.completer.Continue(ctx, req.Text, llm.ChatParams{
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		logger.ErrorContext(ctx, "completion failed", "draft_id", chi.URLParam(r, "draftID"), "error", err)
		writeError(ctx, w, http.StatusBadGateway, "Completion service error")
		return
	}
	writeJSON(ctx, w, http.StatusOK, CompletionResponse{Completion: completion})
}

func (h *DraftHandler) decodeDraftRequest(w http.ResponseWriter, r *http.Request) (publish.DraftRequest, bool) {
	ctx := r.Context()

	var req DraftRequest
	if err := decodeJSON(w, r, &req); err != nil {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "invalid request body", "error", err)
		writeError(ctx, w, http.StatusBadRequest, "Invalid request body")
		return publish.DraftRequest{}, false
	}

	return publish.DraftRequest{
		DraftID:       chi.URLParam(r, "draftID"),
		GroupID:       req.GroupID,
		RelatedNoteID: req.RelatedNoteID,
		Title:         req.Title,
		Topics:        req.Topics,
		Body:          documentOrNil(req.Body),
	}, true
}
