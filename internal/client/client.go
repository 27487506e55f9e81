// Package client implements the HTTP surface of the chat service: conversation, message, prompt and feedback
// endpoints, plus the streaming send-message response.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/promptcraft/promptcraft-chat/internal/models"
)

// Client talks to the chat service. It holds no credential: the API key is supplied with every send.
type Client struct {
	baseURL string

	client *http.Client

	maxEventSize int

	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// PromptUpdate holds the fields to change on a prompt. Nil fields are left untouched.
type PromptUpdate struct {
	Name    *string `json:"name,omitempty"`
	Content *string `json:"content,omitempty"`
}

type createConversationRequest struct {
	SystemPrompt string `json:"system_prompt_used"`
}

type sendMessageRequest struct {
	Content string `json:"message_content"`
	APIKey  string `json:"api_key"`
}

type savePromptRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// WithHTTPClient replaces the default http.Client. Streaming requests are bound only by their context, so
// the client should not carry a global timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.client = c
	}
}

// WithStreamMaxEventSize sets the largest server-sent event a send-message stream accepts. Values of zero or
// less keep DefaultMaxEventSize.
func WithStreamMaxEventSize(n int) Option {
	return func(cl *Client) {
		cl.maxEventSize = n
	}
}

// New creates a Client for the service rooted at baseURL, e.g. "http://localhost:8000".
func New(baseURL string, logger *slog.Logger, opts ...Option) Client {
	c := Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		logger:  logger.With(slog.String("module", "client")),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// ListConversations returns every conversation summary known to the server.
func (c Client) ListConversations(ctx context.Context) ([]models.ConversationSummary, error) {
	var summaries []models.ConversationSummary
	if err := c.doJSON(ctx, http.MethodGet, "/api/conversations", nil, &summaries); err != nil {
		return nil, err
	}
	return summaries, nil
}

// CreateConversation starts a conversation initialised with the given system prompt.
func (c Client) CreateConversation(ctx context.Context, systemPrompt string) (models.Conversation, error) {
	var conv models.Conversation
	req := createConversationRequest{SystemPrompt: systemPrompt}
	if err := c.doJSON(ctx, http.MethodPost, "/api/conversation", req, &conv); err != nil {
		return models.Conversation{}, err
	}
	return conv, nil
}

// Messages returns the full message history of a conversation.
func (c Client) Messages(ctx context.Context, conversationID string) ([]models.Message, error) {
	var msgs []models.Message
	path := "/api/conversation/" + url.PathEscape(conversationID) + "/messages"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// SendMessage posts a user message and returns the response as a Stream. The stream owns the response body;
// the caller must either exhaust Stream.Deltas or call Stream.Close.
func (c Client) SendMessage(ctx context.Context, conversationID, content, apiKey string) (*Stream, error) {
	path := "/api/conversation/" + url.PathEscape(conversationID) + "/send_message"
	resp, err := c.do(ctx, http.MethodPost, path, sendMessageRequest{Content: content, APIKey: apiKey})
	if err != nil {
		return nil, err
	}

	s := NewStream(resp, WithMaxEventSize(c.maxEventSize))
	c.logger.Debug("Response stream opened",
		slog.String("conversationID", conversationID),
		slog.String("mode", s.Mode().String()))
	return s, nil
}

// DeleteConversation deletes a conversation and all its messages.
func (c Client) DeleteConversation(ctx context.Context, conversationID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/conversation/"+url.PathEscape(conversationID), nil, nil)
}

// Prompts returns the custom prompts persisted on the server.
func (c Client) Prompts(ctx context.Context) ([]models.Prompt, error) {
	var prompts []models.Prompt
	if err := c.doJSON(ctx, http.MethodGet, "/api/prompts", nil, &prompts); err != nil {
		return nil, err
	}
	return prompts, nil
}

// Prompt returns a single custom prompt.
func (c Client) Prompt(ctx context.Context, id string) (models.Prompt, error) {
	var p models.Prompt
	if err := c.doJSON(ctx, http.MethodGet, "/api/prompts/"+url.PathEscape(id), nil, &p); err != nil {
		return models.Prompt{}, err
	}
	return p, nil
}

// SavePrompt persists a new custom prompt.
func (c Client) SavePrompt(ctx context.Context, name, content string) (models.Prompt, error) {
	var p models.Prompt
	req := savePromptRequest{Name: name, Content: content}
	if err := c.doJSON(ctx, http.MethodPost, "/api/prompts", req, &p); err != nil {
		return models.Prompt{}, err
	}
	return p, nil
}

// UpdatePrompt changes the name and/or content of a custom prompt.
func (c Client) UpdatePrompt(ctx context.Context, id string, update PromptUpdate) (models.Prompt, error) {
	var p models.Prompt
	if err := c.doJSON(ctx, http.MethodPut, "/api/prompts/"+url.PathEscape(id), update, &p); err != nil {
		return models.Prompt{}, err
	}
	return p, nil
}

// DeletePrompt deletes a custom prompt.
func (c Client) DeletePrompt(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/prompts/"+url.PathEscape(id), nil, nil)
}

// SetFeedback sends the intended like/dislike pair and returns the message as the server stored it.
func (c Client) SetFeedback(ctx context.Context, messageID string, fb models.Feedback) (models.Message, error) {
	var msg models.Message
	path := "/api/message/" + url.PathEscape(messageID) + "/feedback"
	if err := c.doJSON(ctx, http.MethodPut, path, fb, &msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

func (c Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding %s %s response: %w", method, path, err)
	}
	return nil
}

// do sends the request and returns the response if its status is 2xx. Transport failures become
// *NetworkError, other statuses *ServerError.
func (c Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("error marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json, text/event-stream, text/plain")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: method + " " + path, Err: err}
	}

	c.logger.Debug("Response received",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, newServerError(resp)
	}
	return resp, nil
}
