package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/promptcraft/promptcraft-chat/internal/models"
)

// FeedbackReconciler applies like/dislike toggles. The intended pair is computed from the state currently
// shown, sent to the server, and the server's answer replaces it.
//
// The two flags are independent unless exclusive is set: liking a disliked message leaves it disliked. The
// server may still normalise the pair, and its answer always wins.
type FeedbackReconciler struct {
	api       FeedbackAPI
	exclusive bool

	logger *slog.Logger
}

// NewFeedbackReconciler creates a reconciler. With exclusive set, setting one flag clears the other in the
// intended pair.
func NewFeedbackReconciler(api FeedbackAPI, exclusive bool, logger *slog.Logger) FeedbackReconciler {
	return FeedbackReconciler{
		api:       api,
		exclusive: exclusive,
		logger:    logger.With(slog.String("module", "feedback")),
	}
}

// Intended returns the pair that pressing the kind control on current should produce. Pressing an active
// control clears it, otherwise it sets it.
func (r FeedbackReconciler) Intended(current models.Feedback, kind models.FeedbackKind) models.Feedback {
	next := current
	switch kind {
	case models.FeedbackLike:
		next.Liked = !current.Liked
		if r.exclusive && next.Liked {
			next.Disliked = false
		}
	case models.FeedbackDislike:
		next.Disliked = !current.Disliked
		if r.exclusive && next.Disliked {
			next.Liked = false
		}
	}
	return next
}

// Toggle sends the intended pair for messageID and returns the server's authoritative pair. On failure current
// is returned unchanged together with the error.
func (r FeedbackReconciler) Toggle(
	ctx context.Context,
	messageID string,
	current models.Feedback,
	kind models.FeedbackKind,
) (models.Feedback, error) {
	if !kind.Valid() {
		return current, fmt.Errorf("unknown feedback kind %q", kind)
	}

	intended := r.Intended(current, kind)
	msg, err := r.api.SetFeedback(ctx, messageID, intended)
	if err != nil {
		return current, fmt.Errorf("failed to set feedback on message %s: %w", messageID, err)
	}

	if msg.Feedback != intended {
		r.logger.Debug("Server normalised feedback",
			slog.String("messageID", messageID),
			slog.String("intended", fmt.Sprintf("%+v", intended)),
			slog.String("stored", fmt.Sprintf("%+v", msg.Feedback)))
	}
	return msg.Feedback, nil
}
