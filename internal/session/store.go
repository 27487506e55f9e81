package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/promptcraft/promptcraft-chat/internal/models"
)

// ConversationStore is the authoritative in-memory model of the client: the conversation summaries, and the
// active conversation with its ordered messages. Summaries are a read-through cache of the server; the active
// conversation additionally carries optimistic local messages until the server confirms them.
type ConversationStore struct {
	api       ConversationAPI
	confirmer Confirmer

	mu        sync.Mutex
	summaries []models.ConversationSummary
	active    *models.Conversation

	logger *slog.Logger
}

// DeleteResult reports what a DeleteConversation call changed locally.
type DeleteResult struct {
	// Deleted is true if the user confirmed and the server deleted the conversation.
	Deleted bool
	// WasActive is true if the deleted conversation was the active one; the active pointer is now empty.
	WasActive bool
}

// NewConversationStore creates an empty store.
func NewConversationStore(api ConversationAPI, confirmer Confirmer, logger *slog.Logger) *ConversationStore {
	return &ConversationStore{
		api:       api,
		confirmer: confirmer,
		logger:    logger.With(slog.String("module", "store")),
	}
}

// CreateConversation asks the server for a new conversation. On success it becomes the active conversation
// and the only known summary until the next ListConversations. On failure nothing changes.
func (s *ConversationStore) CreateConversation(ctx context.Context, systemPrompt string) (models.Conversation, error) {
	conv, err := s.api.CreateConversation(ctx, systemPrompt)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("failed to create conversation: %w", err)
	}
	if conv.SystemPrompt == "" {
		conv.SystemPrompt = systemPrompt
	}
	conv.Messages = nil

	s.mu.Lock()
	defer s.mu.Unlock()

	active := conv
	s.active = &active
	s.summaries = []models.ConversationSummary{conv.Summary()}

	s.logger.Debug("Conversation created", slog.String("conversationID", conv.ID.String()))
	return conv, nil
}

// ListConversations refreshes the summaries from the server, replacing the local list wholesale.
func (s *ConversationStore) ListConversations(ctx context.Context) ([]models.ConversationSummary, error) {
	summaries, err := s.api.ListConversations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.summaries = slices.Clone(summaries)
	return slices.Clone(summaries), nil
}

// SelectConversation fetches the full history of a conversation and makes it active. If the server reports
// the conversation absent, the error matches client.ErrNotFound and the active conversation is unchanged.
func (s *ConversationStore) SelectConversation(ctx context.Context, id string) ([]models.Message, error) {
	msgs, err := s.api.Messages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation %s: %w", id, err)
	}
	for i := range msgs {
		if msgs[i].Key == "" {
			msgs[i].Key = uuid.New().String()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv := models.Conversation{
		ID:       models.ID(id),
		Messages: msgs,
	}
	if idx := slices.IndexFunc(s.summaries, func(c models.ConversationSummary) bool {
		return c.ID == models.ID(id)
	}); idx != -1 {
		conv.SystemPrompt = s.summaries[idx].SystemPrompt
		conv.CreatedAt = s.summaries[idx].CreatedAt
	}
	s.active = &conv

	return slices.Clone(msgs), nil
}

// DeleteConversation deletes a conversation after the user confirms. A declined confirmation makes no request
// and returns a zero DeleteResult. Every confirmed attempt is followed by a summary refresh.
func (s *ConversationStore) DeleteConversation(ctx context.Context, id string) (DeleteResult, error) {
	if !s.confirmer.Confirm(ctx, fmt.Sprintf("Delete conversation %s and all its messages?", id)) {
		return DeleteResult{}, nil
	}

	var res DeleteResult
	err := s.api.DeleteConversation(ctx, id)
	if err == nil {
		res.Deleted = true

		s.mu.Lock()
		if s.active != nil && s.active.ID == models.ID(id) {
			s.active = nil
			res.WasActive = true
		}
		s.mu.Unlock()
	}

	if _, rerr := s.ListConversations(ctx); rerr != nil {
		s.logger.Warn("Failed to refresh conversations after delete",
			slog.String("conversationID", id),
			slog.String(errLoggerKey, rerr.Error()))
	}

	if err != nil {
		return res, fmt.Errorf("failed to delete conversation %s: %w", id, err)
	}
	return res, nil
}

// AppendLocalMessage adds a message at the tail of the active conversation without a round trip. The message
// is given a Key if it has none; the stored copy is returned.
func (s *ConversationStore) AppendLocalMessage(msg models.Message) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return models.Message{}, ErrNoActiveConversation
	}
	if msg.Key == "" {
		msg.Key = uuid.New().String()
	}
	if msg.ConversationID == "" {
		msg.ConversationID = s.active.ID
	}
	s.active.Messages = append(s.active.Messages, msg)
	return msg, nil
}

// UpdateStreamTarget applies fn to the message being streamed into. Only the last message of the active
// conversation can be updated this way, and only while it is streaming: anything else would break the
// append-only order of the transcript.
func (s *ConversationStore) UpdateStreamTarget(
	conversationID models.ID,
	key string,
	fn func(*models.Message),
) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil || s.active.ID != conversationID || len(s.active.Messages) == 0 {
		return models.Message{}, errStreamTargetGone
	}
	last := &s.active.Messages[len(s.active.Messages)-1]
	if last.Key != key || !last.Streaming {
		return models.Message{}, errStreamTargetGone
	}

	fn(last)
	return *last, nil
}

// SetFeedback overwrites the feedback pair of a message of the active conversation.
func (s *ConversationStore) SetFeedback(id models.ID, fb models.Feedback) (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx == -1 {
		return models.Message{}, false
	}
	s.active.Messages[idx].Feedback = fb
	return s.active.Messages[idx], true
}

// Message looks up a message of the active conversation by its server identifier.
func (s *ConversationStore) Message(id models.ID) (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx == -1 {
		return models.Message{}, false
	}
	return s.active.Messages[idx], true
}

// Active returns a copy of the active conversation.
func (s *ConversationStore) Active() (models.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return models.Conversation{}, false
	}
	conv := *s.active
	conv.Messages = slices.Clone(s.active.Messages)
	return conv, true
}

// Summaries returns the conversation summaries from the last refresh.
func (s *ConversationStore) Summaries() []models.ConversationSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.summaries)
}

func (s *ConversationStore) indexOf(id models.ID) int {
	if s.active == nil || id == "" {
		return -1
	}
	return slices.IndexFunc(s.active.Messages, func(m models.Message) bool {
		return m.ID == id
	})
}
