package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/promptcraft/promptcraft-chat/internal/client"
	"github.com/promptcraft/promptcraft-chat/internal/markup"
	"github.com/promptcraft/promptcraft-chat/internal/models"
	"golang.org/x/sync/errgroup"
)

// Controller orchestrates the chat session. Adapters (a terminal loop, a web page) translate user actions into
// its intent methods; the Controller validates them, updates the ConversationStore, talks to the service and
// drives the Surface.
//
// Every intent method reports its failure as a single notice on the surface and also returns it. The session
// stays usable after any error.
type Controller struct {
	api       API
	surface   Surface
	confirmer Confirmer
	renderer  markup.Renderer

	store    *ConversationStore
	feedback FeedbackReconciler
	catalog  *Catalog

	exclusiveFeedback bool
	keepPartial       bool
	defaultPrompts    []models.Prompt
	now               func() time.Time

	mu    sync.Mutex
	state State

	logger *slog.Logger
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// State is the position of the current (or last) outgoing message in the send state machine.
type State int

const (
	// StateIdle means no message is being sent.
	StateIdle State = iota
	// StateValidating means the intent's preconditions are being checked.
	StateValidating
	// StateOptimisticEcho means the user's message is being shown before the request.
	StateOptimisticEcho
	// StateAwaitingResponse means the request is sent and no response has arrived.
	StateAwaitingResponse
	// StateStreaming means deltas are being applied to the assistant placeholder.
	StateStreaming
	// StateFinalized means the last send completed.
	StateFinalized
	// StateFailed means the last send failed after validation.
	StateFailed
)

// WithExclusiveFeedback makes like and dislike mutually exclusive in the intended pair sent to the server.
func WithExclusiveFeedback(exclusive bool) ControllerOption {
	return func(c *Controller) {
		c.exclusiveFeedback = exclusive
	}
}

// WithKeepPartial keeps the content received before a stream failure instead of replacing it with the error
// description. The error is then reported as a separate notice.
func WithKeepPartial(keep bool) ControllerOption {
	return func(c *Controller) {
		c.keepPartial = keep
	}
}

// WithLogger sets the controller's logger.
func WithLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithClock sets the clock used for provisional client timestamps.
func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) {
		c.now = now
	}
}

// WithPrompts sets the built-in prompts of the catalog.
func WithPrompts(defaults []models.Prompt) ControllerOption {
	return func(c *Controller) {
		c.defaultPrompts = defaults
	}
}

// NewController creates a Controller with no active conversation.
func NewController(
	api API,
	surface Surface,
	confirmer Confirmer,
	renderer markup.Renderer,
	opts ...ControllerOption,
) *Controller {
	c := &Controller{
		api:       api,
		surface:   surface,
		confirmer: confirmer,
		renderer:  renderer,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.store = NewConversationStore(api, confirmer, c.logger)
	c.feedback = NewFeedbackReconciler(api, c.exclusiveFeedback, c.logger)
	c.catalog = NewCatalog(c.defaultPrompts)
	c.logger = c.logger.With(slog.String("module", "controller"))

	return c
}

// Bootstrap loads the conversation list and the custom prompts.
func (c *Controller) Bootstrap(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error {
		_, err := c.RefreshConversations(ctx)
		return err
	})
	g.Go(func() error {
		return c.RefreshPrompts(ctx)
	})
	return g.Wait()
}

// StartConversation creates a conversation and makes it active. prompt is either the name of a catalog prompt,
// whose content is then used, or the system prompt text itself.
func (c *Controller) StartConversation(ctx context.Context, prompt string) (models.Conversation, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return models.Conversation{}, c.notify(&ValidationError{Problems: []string{"Please select a system prompt."}})
	}

	text := prompt
	if p, ok := c.catalog.Lookup(prompt); ok {
		text = p.Content
	}

	conv, err := c.store.CreateConversation(ctx, text)
	if err != nil {
		return models.Conversation{}, c.notify(err)
	}

	c.surface.Reset(nil)
	c.surface.Notice(fmt.Sprintf("New conversation started with prompt: %q", prompt))
	c.logger.Info("Conversation started", slog.String("conversationID", conv.ID.String()))
	return conv, nil
}

// RefreshConversations reloads the conversation summaries from the server.
func (c *Controller) RefreshConversations(ctx context.Context) ([]models.ConversationSummary, error) {
	summaries, err := c.store.ListConversations(ctx)
	if err != nil {
		return nil, c.notify(err)
	}
	return summaries, nil
}

// SelectConversation loads a conversation's history, makes it active and shows it.
func (c *Controller) SelectConversation(ctx context.Context, id string) error {
	msgs, err := c.store.SelectConversation(ctx, id)
	if err != nil {
		return c.notify(err)
	}

	views := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, c.view(m))
	}
	c.surface.Reset(views)
	c.surface.PinToBottom()
	return nil
}

// DeleteConversation deletes a conversation after confirmation. Deleting the active conversation also clears
// the transcript.
func (c *Controller) DeleteConversation(ctx context.Context, id string) (DeleteResult, error) {
	res, err := c.store.DeleteConversation(ctx, id)
	if res.WasActive {
		c.surface.Reset(nil)
	}
	if err != nil {
		return res, c.notify(err)
	}
	return res, nil
}

// SendMessage sends text to the active conversation and streams the reply into the transcript. It blocks until
// the reply is complete. A second call while one is in flight returns ErrBusy and leaves the first untouched.
func (c *Controller) SendMessage(ctx context.Context, text, apiKey string) error {
	c.mu.Lock()
	if c.state.busy() {
		c.mu.Unlock()
		return c.notify(ErrBusy)
	}
	c.state = StateValidating
	c.mu.Unlock()

	text = strings.TrimSpace(text)
	conv, hasActive := c.store.Active()

	var problems []string
	if text == "" {
		problems = append(problems, "Please enter a message.")
	}
	if !hasActive {
		problems = append(problems, "Please start a new conversation first.")
	}
	if strings.TrimSpace(apiKey) == "" {
		problems = append(problems, "Please enter your API key before sending a message.")
	}
	if len(problems) > 0 {
		c.setState(StateIdle)
		return c.notify(&ValidationError{Problems: problems})
	}

	c.setState(StateOptimisticEcho)
	echo, err := c.store.AppendLocalMessage(models.Message{
		Role:      models.RoleUser,
		Content:   text,
		Timestamp: c.now(),
	})
	if err != nil {
		c.setState(StateIdle)
		return c.notify(err)
	}
	c.surface.Append(c.view(echo))
	c.surface.PinToBottom()

	c.setState(StateAwaitingResponse)
	stream, err := c.api.SendMessage(ctx, conv.ID.String(), text, apiKey)
	if err != nil {
		c.setState(StateFailed)
		return c.notify(err)
	}

	return c.receive(conv.ID, stream)
}

// ToggleFeedback presses the like or dislike control of a message and shows the server's answer.
func (c *Controller) ToggleFeedback(ctx context.Context, messageID string, kind models.FeedbackKind) error {
	msg, ok := c.store.Message(models.ID(messageID))
	if !ok || !msg.Eligible() {
		return c.notify(ErrNotEligible)
	}

	fb, err := c.feedback.Toggle(ctx, messageID, msg.Feedback, kind)
	if err != nil {
		return c.notify(err)
	}

	updated, ok := c.store.SetFeedback(msg.ID, fb)
	if !ok {
		// The conversation was switched while the request was in flight.
		return nil
	}
	c.surface.Update(c.view(updated))
	return nil
}

// RefreshPrompts reloads the custom prompts from the server.
func (c *Controller) RefreshPrompts(ctx context.Context) error {
	prompts, err := c.api.Prompts(ctx)
	if err != nil {
		return c.notify(fmt.Errorf("failed to list prompts: %w", err))
	}
	c.catalog.Replace(prompts)
	return nil
}

// SavePrompt stores a custom prompt on the server and adds it to the catalog.
func (c *Controller) SavePrompt(ctx context.Context, name, content string) (models.Prompt, error) {
	name = strings.TrimSpace(name)
	content = strings.TrimSpace(content)

	var problems []string
	if name == "" {
		problems = append(problems, "Please enter a prompt name.")
	}
	if content == "" {
		problems = append(problems, "Please enter the prompt content.")
	}
	if len(problems) > 0 {
		return models.Prompt{}, c.notify(&ValidationError{Problems: problems})
	}

	p, err := c.api.SavePrompt(ctx, name, content)
	if err != nil {
		return models.Prompt{}, c.notify(fmt.Errorf("failed to save prompt: %w", err))
	}
	c.catalog.Add(p)
	c.surface.Notice(fmt.Sprintf("Prompt %q saved.", p.Name))
	return p, nil
}

// DeletePrompt deletes a custom prompt and removes it from the catalog.
func (c *Controller) DeletePrompt(ctx context.Context, id string) error {
	if err := c.api.DeletePrompt(ctx, id); err != nil {
		return c.notify(fmt.Errorf("failed to delete prompt: %w", err))
	}
	c.catalog.Remove(models.ID(id))
	return nil
}

// Prompts returns the catalog: built-in prompts followed by custom ones.
func (c *Controller) Prompts() []models.Prompt {
	return c.catalog.All()
}

// Conversations returns the summaries from the last refresh.
func (c *Controller) Conversations() []models.ConversationSummary {
	return c.store.Summaries()
}

// Active returns a copy of the active conversation.
func (c *Controller) Active() (models.Conversation, bool) {
	return c.store.Active()
}

// State returns the state of the current or last send.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

func (c *Controller) receive(convID models.ID, stream *client.Stream) error {
	placeholder, err := c.store.AppendLocalMessage(models.Message{
		Role:      models.RoleAssistant,
		Timestamp: c.now(),
		Streaming: true,
	})
	if err != nil {
		stream.Close()
		c.setState(StateFailed)
		return c.notify(err)
	}
	c.surface.Append(c.view(placeholder))
	c.surface.PinToBottom()

	c.setState(StateStreaming)
	for delta, err := range stream.Deltas() {
		if err != nil {
			return c.failStream(convID, placeholder.Key, err)
		}

		msg, err := c.store.UpdateStreamTarget(convID, placeholder.Key, func(m *models.Message) {
			m.Content += delta
		})
		if err != nil {
			return c.detach(convID)
		}
		c.surface.Update(c.view(msg))
		c.surface.PinToBottom()
	}

	final, hasFinal := stream.Final()
	msg, err := c.store.UpdateStreamTarget(convID, placeholder.Key, func(m *models.Message) {
		m.Streaming = false
		if !hasFinal {
			return
		}
		m.ID = final.ID
		if final.Content != "" {
			m.Content = final.Content
		}
		if !final.Timestamp.IsZero() {
			m.Timestamp = final.Timestamp
		}
		m.Feedback = final.Feedback
	})
	if err != nil {
		return c.detach(convID)
	}
	c.surface.Update(c.view(msg))
	c.surface.PinToBottom()

	c.setState(StateFinalized)
	c.logger.Debug("Response finalized",
		slog.String("conversationID", convID.String()),
		slog.String("messageID", msg.ID.String()),
		slog.Int("length", len(msg.Content)))
	return nil
}

func (c *Controller) failStream(convID models.ID, key string, streamErr error) error {
	c.setState(StateFailed)

	kept := false
	msg, err := c.store.UpdateStreamTarget(convID, key, func(m *models.Message) {
		m.Streaming = false
		if c.keepPartial && m.Content != "" {
			kept = true
			return
		}
		m.Content = Describe(streamErr)
		m.Failed = true
	})
	if err != nil {
		c.logger.Warn("Stream failed after its conversation was left",
			slog.String("conversationID", convID.String()),
			slog.String(errLoggerKey, streamErr.Error()))
		return streamErr
	}

	c.surface.Update(c.view(msg))
	if kept {
		c.surface.Notice(Describe(streamErr))
	}
	c.surface.PinToBottom()

	c.logger.Error("Stream failed",
		slog.String("conversationID", convID.String()),
		slog.Bool("partialKept", kept),
		slog.String(errLoggerKey, streamErr.Error()))
	return streamErr
}

// detach abandons a stream whose target is gone: the user switched or deleted the conversation mid-response.
// Returning from the range loop closes the body.
func (c *Controller) detach(convID models.ID) error {
	c.setState(StateIdle)
	c.logger.Warn("Stream detached, conversation is no longer active",
		slog.String("conversationID", convID.String()),
		slog.String(errLoggerKey, errStreamTargetGone.Error()))
	return nil
}

func (c *Controller) view(m models.Message) MessageView {
	v := MessageView{
		Key:       m.Key,
		ID:        m.ID,
		Role:      m.Role,
		Timestamp: m.Timestamp,
		Feedback:  m.Feedback,
		Streaming: m.Streaming,
		Failed:    m.Failed,
	}
	if m.Role == models.RoleUser || m.Failed {
		v.Markup = c.renderer.Literal(m.Content)
	} else {
		v.Markup = c.renderer.Render(m.Content)
	}
	return v
}

func (c *Controller) notify(err error) error {
	c.surface.Notice(Describe(err))

	var valErr *ValidationError
	if !errors.As(err, &valErr) && !errors.Is(err, ErrBusy) {
		c.logger.Error("Intent failed", slog.String(errLoggerKey, err.Error()))
	}
	return err
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = s
}

func (s State) busy() bool {
	return s >= StateValidating && s <= StateStreaming
}

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateOptimisticEcho:
		return "optimistic_echo"
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateStreaming:
		return "streaming"
	case StateFinalized:
		return "finalized"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
