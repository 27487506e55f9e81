package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"slices"
	"strconv"

	"github.com/promptcraft/promptcraft-chat/internal/models"
)

// LLM represents a large language model that answers a conversation. It accepts a context and a chat request
// whose last message is the user message to answer, returning an iterator that yields response chunks and
// potential errors.
type LLM interface {
	Chat(ctx context.Context, req models.ChatRequest) iter.Seq2[string, error]
}

// Store defines the interface for persisting conversations, their messages and the custom prompts. Lookups of
// absent records return models.ErrNotFound; saving a prompt under a name already in use returns
// models.ErrPromptNameTaken. A limit of zero or less means no limit.
type Store interface {
	Conversations(ctx context.Context, skip, limit int) ([]models.ConversationSummary, error)
	Conversation(ctx context.Context, id string) (models.Conversation, error)
	AddConversation(ctx context.Context, conv models.Conversation) (models.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error

	Messages(ctx context.Context, conversationID string, skip, limit int) ([]models.Message, error)
	Message(ctx context.Context, id string) (models.Message, error)
	AddMessage(ctx context.Context, conversationID string, msg models.Message) (models.Message, error)
	UpdateMessage(ctx context.Context, msg models.Message) error

	Prompts(ctx context.Context, skip, limit int) ([]models.Prompt, error)
	Prompt(ctx context.Context, id string) (models.Prompt, error)
	AddPrompt(ctx context.Context, p models.Prompt) (models.Prompt, error)
	UpdatePrompt(ctx context.Context, p models.Prompt) (models.Prompt, error)
	DeletePrompt(ctx context.Context, id string) error
}

// StreamMode selects the shape of the send-message response.
type StreamMode string

// Config holds the deployment choices of the API.
type Config struct {
	// StreamMode is the send-message response shape. Defaults to StreamModeJSON.
	StreamMode StreamMode
	// ExclusiveFeedback makes a stored like clear the dislike and vice versa.
	ExclusiveFeedback bool
	// AllowedOrigins lists the browser origins allowed to call the API cross-origin.
	AllowedOrigins []string
}

// Main serves the chat API: conversations, their messages, message feedback and custom prompts.
type Main struct {
	llm   LLM
	store Store

	streamMode        StreamMode
	exclusiveFeedback bool
	allowedOrigins    []string

	logger *slog.Logger
}

type errorResponse struct {
	Detail string `json:"detail"`
}

const (
	// StreamModeJSON answers with the complete assistant message once it is generated.
	StreamModeJSON StreamMode = "json"
	// StreamModeText streams raw text chunks and reports the saved message in HTTP trailers.
	StreamModeText StreamMode = "text"
	// StreamModeSSE streams delta events followed by a message event.
	StreamModeSSE StreamMode = "sse"

	defaultPageLimit = 100
	maxRequestBody   = 1 << 20

	errLoggerKey = "err"
)

// NewMain creates a new Main instance with the provided LLM and Store implementations.
func NewMain(llm LLM, store Store, cfg Config, logger *slog.Logger) (Main, error) {
	switch cfg.StreamMode {
	case "":
		cfg.StreamMode = StreamModeJSON
	case StreamModeJSON, StreamModeText, StreamModeSSE:
	default:
		return Main{}, fmt.Errorf("unknown stream mode: %s", cfg.StreamMode)
	}

	return Main{
		llm:               llm,
		store:             store,
		streamMode:        cfg.StreamMode,
		exclusiveFeedback: cfg.ExclusiveFeedback,
		allowedOrigins:    cfg.AllowedOrigins,
		logger:            logger.With(slog.String("module", "main")),
	}, nil
}

// Routes returns the handler serving every API endpoint.
func (m Main) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", m.HandleRoot)

	mux.HandleFunc("GET /api/conversations", m.HandleConversations)
	mux.HandleFunc("POST /api/conversation", m.HandleCreateConversation)
	mux.HandleFunc("DELETE /api/conversation/{id}", m.HandleDeleteConversation)
	mux.HandleFunc("GET /api/conversation/{id}/messages", m.HandleMessages)
	mux.HandleFunc("POST /api/conversation/{id}/send_message", m.HandleSendMessage)
	mux.HandleFunc("PUT /api/message/{id}/feedback", m.HandleFeedback)

	mux.HandleFunc("GET /api/prompts", m.HandlePrompts)
	mux.HandleFunc("POST /api/prompts", m.HandleCreatePrompt)
	mux.HandleFunc("GET /api/prompts/{id}", m.HandlePrompt)
	mux.HandleFunc("PUT /api/prompts/{id}", m.HandleUpdatePrompt)
	mux.HandleFunc("DELETE /api/prompts/{id}", m.HandleDeletePrompt)

	return m.cors(mux)
}

// HandleRoot is the health check.
func (m Main) HandleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "PromptCraft AI Chat API is running!"})
}

func (m Main) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || !slices.Contains(m.allowedOrigins, origin) {
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Add("Vary", "Origin")
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
				h.Set("Access-Control-Allow-Headers", reqHeaders)
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// storeError writes the response for a failed store call: notFound as a 404 detail when the record is absent,
// a 500 otherwise.
func (m Main) storeError(w http.ResponseWriter, err error, op, notFound string) {
	if errors.Is(err, models.ErrNotFound) {
		writeError(w, http.StatusNotFound, notFound)
		return
	}
	m.logger.Error("Store operation failed", slog.String("op", op), slog.String(errLoggerKey, err.Error()))
	writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to %s.", op))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status is already sent, nothing useful can be done on failure.
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

// decodeJSON reads a JSON request body into v. On failure it writes a 400 (or 413) response and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large.")
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, "Request body is required.")
		default:
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		}
		return false
	}
	return true
}

// pagination reads the skip and limit query parameters. On failure it writes a 400 response and returns false.
func pagination(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	skip, limit := 0, defaultPageLimit
	for name, dst := range map[string]*int{"skip": &skip, "limit": &limit} {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Query parameter %s must be a non-negative integer.", name))
			return 0, 0, false
		}
		*dst = v
	}
	return skip, limit, true
}
