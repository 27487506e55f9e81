package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/promptcraft/promptcraft-chat/internal/models"
)

type createConversationRequest struct {
	SystemPrompt *string `json:"system_prompt_used"`
}

// HandleConversations lists conversation summaries, newest first. It accepts skip and limit query parameters.
func (m Main) HandleConversations(w http.ResponseWriter, r *http.Request) {
	skip, limit, ok := pagination(w, r)
	if !ok {
		return
	}

	convs, err := m.store.Conversations(r.Context(), skip, limit)
	if err != nil {
		m.storeError(w, err, "list conversations", "")
		return
	}
	if convs == nil {
		convs = []models.ConversationSummary{}
	}
	writeJSON(w, http.StatusOK, convs)
}

// HandleCreateConversation starts a conversation with the given system prompt.
func (m Main) HandleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.SystemPrompt == nil {
		writeError(w, http.StatusBadRequest, "system_prompt_used is required.")
		return
	}

	conv, err := m.store.AddConversation(r.Context(), models.Conversation{
		SystemPrompt: *req.SystemPrompt,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		m.storeError(w, err, "create conversation", "")
		return
	}

	m.logger.Debug("Conversation created", slog.String("conversationID", conv.ID.String()))
	writeJSON(w, http.StatusCreated, conv)
}

// HandleMessages lists a conversation's messages in chronological order. It accepts skip and limit query
// parameters.
func (m Main) HandleMessages(w http.ResponseWriter, r *http.Request) {
	convID := r.PathValue("id")
	skip, limit, ok := pagination(w, r)
	if !ok {
		return
	}

	if _, err := m.store.Conversation(r.Context(), convID); err != nil {
		m.storeError(w, err, "get conversation", "Conversation not found.")
		return
	}

	msgs, err := m.store.Messages(r.Context(), convID, skip, limit)
	if err != nil {
		m.storeError(w, err, "get messages", "Conversation not found.")
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// HandleDeleteConversation deletes a conversation and all its messages.
func (m Main) HandleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	convID := r.PathValue("id")
	if err := m.store.DeleteConversation(r.Context(), convID); err != nil {
		m.storeError(w, err, "delete conversation", "Conversation not found.")
		return
	}

	m.logger.Debug("Conversation deleted", slog.String("conversationID", convID))
	w.WriteHeader(http.StatusNoContent)
}
