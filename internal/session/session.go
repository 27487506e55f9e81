// Package session is the state-reconciliation engine of the chat client. It keeps the conversation → message
// mapping consistent across optimistic local updates and server responses, drives streamed replies into a
// render surface, and reconciles message feedback with the server.
//
// Everything outside the engine is reached through the interfaces declared here: the chat service (API), the
// place messages are shown (Surface) and the user's yes/no answers (Confirmer).
package session

import (
	"context"
	"time"

	"github.com/promptcraft/promptcraft-chat/internal/client"
	"github.com/promptcraft/promptcraft-chat/internal/models"
)

// ConversationAPI is the part of the chat service the ConversationStore needs.
type ConversationAPI interface {
	ListConversations(ctx context.Context) ([]models.ConversationSummary, error)
	CreateConversation(ctx context.Context, systemPrompt string) (models.Conversation, error)
	Messages(ctx context.Context, conversationID string) ([]models.Message, error)
	DeleteConversation(ctx context.Context, conversationID string) error
}

// FeedbackAPI is the part of the chat service the FeedbackReconciler needs.
type FeedbackAPI interface {
	SetFeedback(ctx context.Context, messageID string, fb models.Feedback) (models.Message, error)
}

// PromptAPI manages the custom prompts persisted by the chat service.
type PromptAPI interface {
	Prompts(ctx context.Context) ([]models.Prompt, error)
	SavePrompt(ctx context.Context, name, content string) (models.Prompt, error)
	DeletePrompt(ctx context.Context, id string) error
}

// API is the whole chat service surface used by the Controller. client.Client implements it.
type API interface {
	ConversationAPI
	FeedbackAPI
	PromptAPI

	SendMessage(ctx context.Context, conversationID, content, apiKey string) (*client.Stream, error)
}

// Surface is where the transcript is shown. The Controller never touches a display directly; it hands the
// surface ready-made views keyed by Message.Key.
type Surface interface {
	// Reset replaces the whole transcript.
	Reset(views []MessageView)
	// Append adds a message at the end of the transcript.
	Append(view MessageView)
	// Update redraws a message previously appended or reset, matched by Key.
	Update(view MessageView)
	// Notice appends a user-visible notice to the transcript.
	Notice(text string)
	// PinToBottom keeps the latest content in view.
	PinToBottom()
}

// Confirmer asks the user to confirm a destructive action.
type Confirmer interface {
	Confirm(ctx context.Context, question string) bool
}

// MessageView is a message prepared for display. Markup is already rendered: assistant content through the
// markup renderer, user content and error descriptions as literal text.
type MessageView struct {
	Key       string
	ID        models.ID
	Role      models.Role
	Markup    string
	Timestamp time.Time
	Feedback  models.Feedback

	Streaming bool
	Failed    bool
}

const errLoggerKey = "err"
