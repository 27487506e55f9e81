package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/promptcraft/promptcraft-chat/internal/models"
	"github.com/tmaxmax/go-sse"
)

type sendMessageRequest struct {
	Content string `json:"message_content"`
	APIKey  string `json:"api_key"`
}

// messageEvent is the payload of the final sse event. The content is left out: the client already holds it
// from the deltas, and the event must stay small however long the reply is.
type messageEvent struct {
	ID        models.ID   `json:"id"`
	Role      models.Role `json:"sender"`
	Timestamp time.Time   `json:"timestamp"`
	models.Feedback
}

// HandleSendMessage saves a user message, asks the LLM for the reply and saves it. The reply is written in
// the configured stream mode:
//
//   - json: the saved assistant message once generation is complete.
//   - text: raw chunks as they arrive, with the saved message's id and timestamp in HTTP trailers, or
//     X-Stream-Error if generation fails after the first chunk.
//   - sse: a delta event per chunk (data is a JSON string), then a message event with the saved message's id,
//     timestamp and feedback, or an error event.
//
// In every mode a generation failure before the first chunk is a 500 with a detail body.
func (m Main) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	convID := r.PathValue("id")

	var req sendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "message_content is required.")
		return
	}

	conv, err := m.store.Conversation(r.Context(), convID)
	if err != nil {
		m.storeError(w, err, "get conversation", "Conversation not found.")
		return
	}

	_, err = m.store.AddMessage(r.Context(), convID, models.Message{
		Role:      models.RoleUser,
		Content:   req.Content,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		m.storeError(w, err, "save user message", "Conversation not found.")
		return
	}

	history, err := m.store.Messages(r.Context(), convID, 0, 0)
	if err != nil {
		m.storeError(w, err, "get messages", "Conversation not found.")
		return
	}

	chunks := m.llm.Chat(r.Context(), models.ChatRequest{
		APIKey:       req.APIKey,
		SystemPrompt: conv.SystemPrompt,
		Messages:     history,
	})

	switch m.streamMode {
	case StreamModeText:
		m.streamText(w, r, convID, chunks)
	case StreamModeSSE:
		m.streamSSE(w, r, convID, chunks)
	default:
		m.respondJSON(w, r, convID, chunks)
	}
}

func (m Main) respondJSON(w http.ResponseWriter, r *http.Request, convID string, chunks iter.Seq2[string, error]) {
	var sb strings.Builder
	for chunk, err := range chunks {
		if err != nil {
			m.logger.Error("Error from llm provider",
				slog.String("conversationID", convID),
				slog.String(errLoggerKey, err.Error()))
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		sb.WriteString(chunk)
	}

	reply, err := m.saveReply(r.Context(), convID, sb.String())
	if err != nil {
		m.storeError(w, err, "save reply", "Conversation not found.")
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (m Main) streamText(w http.ResponseWriter, r *http.Request, convID string, chunks iter.Seq2[string, error]) {
	next, stop := iter.Pull2(chunks)
	defer stop()

	chunk, err, ok := next()
	if ok && err != nil {
		m.logger.Error("Error from llm provider",
			slog.String("conversationID", convID),
			slog.String(errLoggerKey, err.Error()))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Trailer", strings.Join([]string{
		models.TrailerMessageID,
		models.TrailerMessageTimestamp,
		models.TrailerStreamError,
	}, ", "))
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)

	var sb strings.Builder
	for ; ok; chunk, err, ok = next() {
		if err != nil {
			m.logger.Error("Error from llm provider mid-stream",
				slog.String("conversationID", convID),
				slog.Int("sent", sb.Len()),
				slog.String(errLoggerKey, err.Error()))
			h.Set(models.TrailerStreamError, headerSafe(err.Error()))
			return
		}
		if chunk == "" {
			continue
		}
		sb.WriteString(chunk)
		if _, err := io.WriteString(w, chunk); err != nil {
			m.logger.Warn("Client went away", slog.String("conversationID", convID), slog.String(errLoggerKey, err.Error()))
			return
		}
		_ = rc.Flush()
	}

	// The body is complete, so the reply is saved even if the client hangs up now.
	reply, err := m.saveReply(context.WithoutCancel(r.Context()), convID, sb.String())
	if err != nil {
		m.logger.Error("Failed to save reply", slog.String("conversationID", convID), slog.String(errLoggerKey, err.Error()))
		h.Set(models.TrailerStreamError, "Failed to save reply.")
		return
	}
	h.Set(models.TrailerMessageID, reply.ID.String())
	h.Set(models.TrailerMessageTimestamp, reply.Timestamp.Format(time.RFC3339Nano))
}

func (m Main) streamSSE(w http.ResponseWriter, r *http.Request, convID string, chunks iter.Seq2[string, error]) {
	next, stop := iter.Pull2(chunks)
	defer stop()

	chunk, err, ok := next()
	if ok && err != nil {
		m.logger.Error("Error from llm provider",
			slog.String("conversationID", convID),
			slog.String(errLoggerKey, err.Error()))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	sess, err := sse.Upgrade(w, r)
	if err != nil {
		m.logger.Error("Failed to upgrade to sse", slog.String(errLoggerKey, err.Error()))
		writeError(w, http.StatusInternalServerError, "Streaming is not supported.")
		return
	}

	var sb strings.Builder
	for ; ok; chunk, err, ok = next() {
		if err != nil {
			m.logger.Error("Error from llm provider mid-stream",
				slog.String("conversationID", convID),
				slog.Int("sent", sb.Len()),
				slog.String(errLoggerKey, err.Error()))
			m.sendEvent(sess, models.EventError, errorResponse{Detail: err.Error()})
			return
		}
		if chunk == "" {
			continue
		}
		sb.WriteString(chunk)
		if err := m.sendEvent(sess, models.EventDelta, chunk); err != nil {
			m.logger.Warn("Client went away", slog.String("conversationID", convID), slog.String(errLoggerKey, err.Error()))
			return
		}
	}

	reply, err := m.saveReply(context.WithoutCancel(r.Context()), convID, sb.String())
	if err != nil {
		m.logger.Error("Failed to save reply", slog.String("conversationID", convID), slog.String(errLoggerKey, err.Error()))
		m.sendEvent(sess, models.EventError, errorResponse{Detail: "Failed to save reply."})
		return
	}
	m.sendEvent(sess, models.EventMessage, messageEvent{
		ID:        reply.ID,
		Role:      reply.Role,
		Timestamp: reply.Timestamp,
		Feedback:  reply.Feedback,
	})
}

// sendEvent writes one event with v encoded as JSON and flushes it.
func (m Main) sendEvent(sess *sse.Session, typ string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", typ, err)
	}

	e := &sse.Message{Type: sse.Type(typ)}
	e.AppendData(string(data))
	if err := sess.Send(e); err != nil {
		return fmt.Errorf("failed to send %s event: %w", typ, err)
	}
	return sess.Flush()
}

func (m Main) saveReply(ctx context.Context, convID, content string) (models.Message, error) {
	return m.store.AddMessage(ctx, convID, models.Message{
		Role:      models.RoleAssistant,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
}

// headerSafe flattens s into a single header line.
func headerSafe(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
