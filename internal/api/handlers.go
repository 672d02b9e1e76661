package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gwi.com/campus-knowledge/internal/core"
	"gwi.com/campus-knowledge/internal/store"
)

type HandlerConfig struct {
	IngestRoles     []string
	StreamKeepAlive time.Duration
	// MaxUploadBytes caps multipart uploads; zero means 32MB.
	MaxUploadBytes int64
}

type APIHandler struct {
	chatService     *core.ChatService
	documentService *core.DocumentService
	cfg             HandlerConfig
}

func NewAPIHandler(cs *core.ChatService, ds *core.DocumentService, cfg HandlerConfig) *APIHandler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 32 << 20
	}
	return &APIHandler{chatService: cs, documentService: ds, cfg: cfg}
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *APIHandler) CreateConversationHandler(w http.ResponseWriter, r *http.Request) {
	conv, err := h.chatService.CreateConversation(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err, "create conversation")
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (h *APIHandler) ListConversationsHandler(w http.ResponseWriter, r *http.Request) {
	convs, err := h.chatService.ListConversations(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err, "list conversations")
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

type ConversationDetailsResponse struct {
	*store.Conversation
	Messages []store.Message `json:"messages"`
}

func (h *APIHandler) GetConversationHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	conv, messages, err := h.chatService.GetConversation(r.Context(), conversationID, userID(r))
	if err != nil {
		writeError(w, r, err, "get conversation")
		return
	}
	writeJSON(w, http.StatusOK, ConversationDetailsResponse{Conversation: conv, Messages: messages})
}

type PostMessageRequest struct {
	Content string `json:"content"`
}

type PostMessageResponse struct {
	Message   *store.Message `json:"message"`
	StreamURL string         `json:"stream_url"`
}

func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	msg, err := h.chatService.PostMessage(r.Context(), conversationID, userID(r), req.Content)
	if err != nil {
		writeError(w, r, err, "post message")
		return
	}
	writeJSON(w, http.StatusCreated, PostMessageResponse{
		Message:   msg,
		StreamURL: fmt.Sprintf("/api/conversations/%s/messages/%s/stream", conversationID, msg.ID),
	})
}

type FeedbackRequest struct {
	IsHelpful *bool   `json:"is_helpful"`
	Reason    *string `json:"reason,omitempty"`
}

func (h *APIHandler) MessageFeedbackHandler(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")

	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.IsHelpful == nil {
		writeErrorMessage(w, http.StatusBadRequest, "is_helpful is required")
		return
	}

	if err := h.chatService.SetMessageFeedback(r.Context(), userID(r), messageID, *req.IsHelpful, req.Reason); err != nil {
		writeError(w, r, err, "set feedback")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type ClassifyRequest struct {
	Query string `json:"query"`
}

type ClassifyResponse struct {
	Category core.Category `json:"category"`
}

func (h *APIHandler) ClassifyQueryHandler(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeErrorMessage(w, http.StatusBadRequest, "query is required")
		return
	}
	res := h.chatService.ClassifyQuery(r.Context(), req.Query)
	writeJSON(w, http.StatusOK, ClassifyResponse{Category: res.Category})
}
