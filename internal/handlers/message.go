package handlers

import (
	"net/http"

	"github.com/promptcraft/promptcraft-chat/internal/models"
)

// feedbackRequest carries the flags to set. A missing flag is left as stored.
type feedbackRequest struct {
	Liked    *bool `json:"liked"`
	Disliked *bool `json:"disliked"`
}

// HandleFeedback stores the like/dislike pair of an assistant message and returns the updated message.
func (m Main) HandleFeedback(w http.ResponseWriter, r *http.Request) {
	msgID := r.PathValue("id")

	var req feedbackRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	msg, err := m.store.Message(r.Context(), msgID)
	if err != nil {
		m.storeError(w, err, "get message", "Message not found.")
		return
	}
	if msg.Role != models.RoleAssistant {
		writeError(w, http.StatusBadRequest, "Feedback can only be provided for AI messages.")
		return
	}

	msg.Feedback = m.applyFeedback(msg.Feedback, req)
	if err := m.store.UpdateMessage(r.Context(), msg); err != nil {
		m.storeError(w, err, "update message", "Message not found.")
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// applyFeedback sets liked, then disliked. With exclusive feedback a flag being set clears the other one, so
// a request setting both ends up disliked only.
func (m Main) applyFeedback(fb models.Feedback, req feedbackRequest) models.Feedback {
	if req.Liked != nil {
		fb.Liked = *req.Liked
		if m.exclusiveFeedback && fb.Liked {
			fb.Disliked = false
		}
	}
	if req.Disliked != nil {
		fb.Disliked = *req.Disliked
		if m.exclusiveFeedback && fb.Disliked {
			fb.Liked = false
		}
	}
	return fb
}
