package handlers_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/promptcraft/promptcraft-chat/internal/handlers"
	"github.com/promptcraft/promptcraft-chat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLLM struct {
	responses []string
	// failAt makes the stream fail before the response with this index. A negative value never fails.
	failAt int
	err    error

	mu       sync.Mutex
	requests []models.ChatRequest
}

type mockStore struct {
	mu       sync.Mutex
	seq      int
	convs    []models.Conversation
	messages map[string][]models.Message
	prompts  []models.Prompt
	err      error
}

func TestNewMain(t *testing.T) {
	_, err := handlers.NewMain(&mockLLM{}, newMockStore(), handlers.Config{}, discardLogger())
	require.NoError(t, err)

	_, err = handlers.NewMain(&mockLLM{}, newMockStore(), handlers.Config{StreamMode: "carrier-pigeon"}, discardLogger())
	require.Error(t, err)
}

func TestHandleRoot(t *testing.T) {
	srv := newTestServer(t, &mockLLM{}, newMockStore(), handlers.Config{})

	res := do(t, srv, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, res.status)
	assert.JSONEq(t, `{"message": "PromptCraft AI Chat API is running!"}`, res.body)

	res = do(t, srv, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, res.status)
}

func TestCORS(t *testing.T) {
	srv := newTestServer(t, &mockLLM{}, newMockStore(), handlers.Config{AllowedOrigins: []string{"http://localhost:9000"}})

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/conversations", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:9000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()

	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.Equal(t, "http://localhost:9000", res.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Content-Type", res.Header.Get("Access-Control-Allow-Headers"))

	req, err = http.NewRequest(http.MethodGet, srv.URL+"/api/conversations", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://evil.example")
	res, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Empty(t, res.Header.Get("Access-Control-Allow-Origin"))
}

func TestConversationLifecycle(t *testing.T) {
	store := newMockStore()
	srv := newTestServer(t, &mockLLM{}, store, handlers.Config{})

	res := do(t, srv, http.MethodPost, "/api/conversation", `{"system_prompt_used": "Be brief."}`)
	require.Equal(t, http.StatusCreated, res.status)
	var conv models.Conversation
	require.NoError(t, json.Unmarshal([]byte(res.body), &conv))
	assert.NotEmpty(t, conv.ID)
	assert.Equal(t, "Be brief.", conv.SystemPrompt)
	assert.False(t, conv.CreatedAt.IsZero())

	do(t, srv, http.MethodPost, "/api/conversation", `{"system_prompt_used": "Second"}`)

	res = do(t, srv, http.MethodGet, "/api/conversations", "")
	require.Equal(t, http.StatusOK, res.status)
	var list []models.ConversationSummary
	require.NoError(t, json.Unmarshal([]byte(res.body), &list))
	require.Len(t, list, 2)

	res = do(t, srv, http.MethodGet, "/api/conversations?skip=1&limit=5", "")
	require.NoError(t, json.Unmarshal([]byte(res.body), &list))
	assert.Len(t, list, 1)

	res = do(t, srv, http.MethodGet, "/api/conversations?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, res.status)

	res = do(t, srv, http.MethodGet, "/api/conversation/"+conv.ID.String()+"/messages", "")
	assert.Equal(t, http.StatusOK, res.status)
	assert.JSONEq(t, `[]`, res.body)

	res = do(t, srv, http.MethodDelete, "/api/conversation/"+conv.ID.String(), "")
	assert.Equal(t, http.StatusNoContent, res.status)

	res = do(t, srv, http.MethodDelete, "/api/conversation/"+conv.ID.String(), "")
	assert.Equal(t, http.StatusNotFound, res.status)
	assert.JSONEq(t, `{"detail": "Conversation not found."}`, res.body)

	res = do(t, srv, http.MethodGet, "/api/conversation/"+conv.ID.String()+"/messages", "")
	assert.Equal(t, http.StatusNotFound, res.status)
}

func TestCreateConversationInvalid(t *testing.T) {
	srv := newTestServer(t, &mockLLM{}, newMockStore(), handlers.Config{})

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"not json", "{"},
		{"missing prompt", `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := do(t, srv, http.MethodPost, "/api/conversation", tt.body)
			assert.Equal(t, http.StatusBadRequest, res.status)
			assert.Contains(t, res.body, `"detail"`)
		})
	}
}

func TestStoreFailure(t *testing.T) {
	store := newMockStore()
	store.err = errors.New("disk on fire")
	srv := newTestServer(t, &mockLLM{}, store, handlers.Config{})

	res := do(t, srv, http.MethodGet, "/api/conversations", "")
	assert.Equal(t, http.StatusInternalServerError, res.status)
	assert.JSONEq(t, `{"detail": "Failed to list conversations."}`, res.body)
}

func TestSendMessageJSON(t *testing.T) {
	store := newMockStore()
	conv := store.seed("Be brief.")
	llm := &mockLLM{responses: []string{"Hel", "lo!"}, failAt: -1}
	srv := newTestServer(t, llm, store, handlers.Config{})

	res := do(t, srv, http.MethodPost, "/api/conversation/"+conv+"/send_message",
		`{"message_content": "Hi", "api_key": "secret"}`)
	require.Equal(t, http.StatusOK, res.status)

	var reply models.Message
	require.NoError(t, json.Unmarshal([]byte(res.body), &reply))
	assert.Equal(t, models.RoleAssistant, reply.Role)
	assert.Equal(t, "Hello!", reply.Content)
	assert.NotEmpty(t, reply.ID)

	require.Len(t, llm.requests, 1)
	req := llm.requests[0]
	assert.Equal(t, "secret", req.APIKey)
	assert.Equal(t, "Be brief.", req.SystemPrompt)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "Hi", req.Messages[0].Content)

	msgs := store.messages[conv]
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, "Hello!", msgs[1].Content)
}

func TestSendMessageInvalid(t *testing.T) {
	store := newMockStore()
	conv := store.seed("x")
	srv := newTestServer(t, &mockLLM{failAt: -1}, store, handlers.Config{})

	tests := []struct {
		name       string
		conv       string
		body       string
		wantStatus int
		wantDetail string
	}{
		{"blank content", conv, `{"message_content": "  ", "api_key": "k"}`, http.StatusBadRequest, "message_content is required."},
		{"unknown conversation", "404", `{"message_content": "Hi", "api_key": "k"}`, http.StatusNotFound, "Conversation not found."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := do(t, srv, http.MethodPost, "/api/conversation/"+tt.conv+"/send_message", tt.body)
			assert.Equal(t, tt.wantStatus, res.status)
			assert.JSONEq(t, `{"detail": "`+tt.wantDetail+`"}`, res.body)
		})
	}
	assert.Empty(t, store.messages[conv])
}

func TestSendMessageLLMFailure(t *testing.T) {
	for _, mode := range []handlers.StreamMode{handlers.StreamModeJSON, handlers.StreamModeText, handlers.StreamModeSSE} {
		t.Run(string(mode), func(t *testing.T) {
			store := newMockStore()
			conv := store.seed("x")
			llm := &mockLLM{failAt: 0, err: errors.New("invalid api key")}
			srv := newTestServer(t, llm, store, handlers.Config{StreamMode: mode})

			res := do(t, srv, http.MethodPost, "/api/conversation/"+conv+"/send_message",
				`{"message_content": "Hi", "api_key": "bad"}`)
			assert.Equal(t, http.StatusInternalServerError, res.status)
			assert.JSONEq(t, `{"detail": "invalid api key"}`, res.body)

			// The user message stays saved, no reply is stored.
			require.Len(t, store.messages[conv], 1)
			assert.Equal(t, models.RoleUser, store.messages[conv][0].Role)
		})
	}
}

func TestSendMessageText(t *testing.T) {
	store := newMockStore()
	conv := store.seed("x")
	llm := &mockLLM{responses: []string{"He", "", "llo!"}, failAt: -1}
	srv := newTestServer(t, llm, store, handlers.Config{StreamMode: handlers.StreamModeText})

	res := post(t, srv, "/api/conversation/"+conv+"/send_message", `{"message_content": "Hi", "api_key": "k"}`)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.True(t, strings.HasPrefix(res.Header.Get("Content-Type"), "text/plain"))

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Equal(t, "Hello!", string(body))

	saved := store.messages[conv][1]
	assert.Equal(t, saved.ID.String(), res.Trailer.Get(models.TrailerMessageID))
	assert.NotEmpty(t, res.Trailer.Get(models.TrailerMessageTimestamp))
	assert.Empty(t, res.Trailer.Get(models.TrailerStreamError))
}

func TestSendMessageTextMidStreamFailure(t *testing.T) {
	store := newMockStore()
	conv := store.seed("x")
	llm := &mockLLM{responses: []string{"He", "llo"}, failAt: 1, err: errors.New("connection\nreset")}
	srv := newTestServer(t, llm, store, handlers.Config{StreamMode: handlers.StreamModeText})

	res := post(t, srv, "/api/conversation/"+conv+"/send_message", `{"message_content": "Hi", "api_key": "k"}`)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Equal(t, "He", string(body))
	assert.Equal(t, "connection reset", res.Trailer.Get(models.TrailerStreamError))
	assert.Empty(t, res.Trailer.Get(models.TrailerMessageID))
	assert.Len(t, store.messages[conv], 1)
}

func TestSendMessageSSE(t *testing.T) {
	tests := []struct {
		name       string
		llm        *mockLLM
		wantTypes  []string
		wantDeltas []string
		wantSaved  int
	}{
		{
			name:       "complete",
			llm:        &mockLLM{responses: []string{"He", "llo\n!"}, failAt: -1},
			wantTypes:  []string{models.EventDelta, models.EventDelta, models.EventMessage},
			wantDeltas: []string{"He", "llo\n!"},
			wantSaved:  2,
		},
		{
			name:       "mid-stream failure",
			llm:        &mockLLM{responses: []string{"He", "llo"}, failAt: 1, err: errors.New("boom")},
			wantTypes:  []string{models.EventDelta, models.EventError},
			wantDeltas: []string{"He"},
			wantSaved:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockStore()
			conv := store.seed("x")
			srv := newTestServer(t, tt.llm, store, handlers.Config{StreamMode: handlers.StreamModeSSE})

			res := post(t, srv, "/api/conversation/"+conv+"/send_message", `{"message_content": "Hi", "api_key": "k"}`)
			defer res.Body.Close()
			require.Equal(t, http.StatusOK, res.StatusCode)
			assert.True(t, strings.HasPrefix(res.Header.Get("Content-Type"), "text/event-stream"))

			events := readEvents(t, res.Body)
			var types, deltas []string
			for _, e := range events {
				types = append(types, e.typ)
				if e.typ == models.EventDelta {
					var s string
					require.NoError(t, json.Unmarshal([]byte(e.data), &s))
					deltas = append(deltas, s)
				}
			}
			assert.Equal(t, tt.wantTypes, types)
			assert.Equal(t, tt.wantDeltas, deltas)
			assert.Len(t, store.messages[conv], tt.wantSaved)

			last := events[len(events)-1]
			if last.typ == models.EventMessage {
				var reply models.Message
				require.NoError(t, json.Unmarshal([]byte(last.data), &reply))
				assert.Empty(t, reply.Content, "content travels in the deltas only")
				assert.Equal(t, models.RoleAssistant, reply.Role)
				assert.NotEmpty(t, reply.ID)
				assert.False(t, reply.Timestamp.IsZero())

				saved := store.messages[conv]
				assert.Equal(t, "Hello\n!", saved[len(saved)-1].Content)
			}
		})
	}
}

func TestHandleFeedback(t *testing.T) {
	tests := []struct {
		name      string
		exclusive bool
		initial   models.Feedback
		body      string
		want      models.Feedback
	}{
		{"like", false, models.Feedback{}, `{"liked": true}`, models.Feedback{Liked: true}},
		{"independent flags", false, models.Feedback{Liked: true}, `{"disliked": true}`, models.Feedback{Liked: true, Disliked: true}},
		{"exclusive dislike clears like", true, models.Feedback{Liked: true}, `{"disliked": true}`, models.Feedback{Disliked: true}},
		{"exclusive both set ends disliked", true, models.Feedback{}, `{"liked": true, "disliked": true}`, models.Feedback{Disliked: true}},
		{"exclusive unset keeps other", true, models.Feedback{Liked: true}, `{"disliked": false}`, models.Feedback{Liked: true}},
		{"clear", true, models.Feedback{Liked: true}, `{"liked": false, "disliked": false}`, models.Feedback{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockStore()
			conv := store.seed("x")
			msg := store.addRaw(conv, models.Message{Role: models.RoleAssistant, Content: "Hi", Feedback: tt.initial})
			srv := newTestServer(t, &mockLLM{}, store, handlers.Config{ExclusiveFeedback: tt.exclusive})

			res := do(t, srv, http.MethodPut, "/api/message/"+msg+"/feedback", tt.body)
			require.Equal(t, http.StatusOK, res.status)

			var got models.Message
			require.NoError(t, json.Unmarshal([]byte(res.body), &got))
			assert.Equal(t, tt.want, got.Feedback)
			assert.Equal(t, tt.want, store.messages[conv][0].Feedback)
		})
	}
}

func TestHandleFeedbackRejected(t *testing.T) {
	store := newMockStore()
	conv := store.seed("x")
	userMsg := store.addRaw(conv, models.Message{Role: models.RoleUser, Content: "Hi"})
	srv := newTestServer(t, &mockLLM{}, store, handlers.Config{})

	res := do(t, srv, http.MethodPut, "/api/message/"+userMsg+"/feedback", `{"liked": true}`)
	assert.Equal(t, http.StatusBadRequest, res.status)
	assert.JSONEq(t, `{"detail": "Feedback can only be provided for AI messages."}`, res.body)

	res = do(t, srv, http.MethodPut, "/api/message/999/feedback", `{"liked": true}`)
	assert.Equal(t, http.StatusNotFound, res.status)
	assert.JSONEq(t, `{"detail": "Message not found."}`, res.body)
}

func TestPromptLifecycle(t *testing.T) {
	srv := newTestServer(t, &mockLLM{}, newMockStore(), handlers.Config{})

	res := do(t, srv, http.MethodPost, "/api/prompts", `{"name": " Pirate ", "content": "Talk like a pirate."}`)
	require.Equal(t, http.StatusCreated, res.status)
	var p models.Prompt
	require.NoError(t, json.Unmarshal([]byte(res.body), &p))
	assert.Equal(t, "Pirate", p.Name)
	require.NotEmpty(t, p.ID)

	res = do(t, srv, http.MethodPost, "/api/prompts", `{"name": "Pirate", "content": "Again."}`)
	assert.Equal(t, http.StatusBadRequest, res.status)
	assert.JSONEq(t, `{"detail": "Prompt with this name already exists."}`, res.body)

	res = do(t, srv, http.MethodPost, "/api/prompts", `{"name": "Empty", "content": ""}`)
	assert.Equal(t, http.StatusBadRequest, res.status)

	res = do(t, srv, http.MethodPut, "/api/prompts/"+p.ID.String(), `{"content": "Arr."}`)
	require.Equal(t, http.StatusOK, res.status)
	require.NoError(t, json.Unmarshal([]byte(res.body), &p))
	assert.Equal(t, "Pirate", p.Name)
	assert.Equal(t, "Arr.", p.Content)

	res = do(t, srv, http.MethodGet, "/api/prompts/"+p.ID.String(), "")
	assert.Equal(t, http.StatusOK, res.status)

	res = do(t, srv, http.MethodGet, "/api/prompts", "")
	var list []models.Prompt
	require.NoError(t, json.Unmarshal([]byte(res.body), &list))
	assert.Len(t, list, 1)

	res = do(t, srv, http.MethodDelete, "/api/prompts/"+p.ID.String(), "")
	assert.Equal(t, http.StatusNoContent, res.status)

	res = do(t, srv, http.MethodGet, "/api/prompts/"+p.ID.String(), "")
	assert.Equal(t, http.StatusNotFound, res.status)
	assert.JSONEq(t, `{"detail": "Prompt not found."}`, res.body)
}

type response struct {
	status int
	body   string
}

type event struct {
	typ  string
	data string
}

func newTestServer(t *testing.T, llm handlers.LLM, store handlers.Store, cfg handlers.Config) *httptest.Server {
	t.Helper()

	m, err := handlers.NewMain(llm, store, cfg, discardLogger())
	require.NoError(t, err)

	srv := httptest.NewServer(m.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) response {
	t.Helper()

	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	b, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return response{status: res.StatusCode, body: string(b)}
}

func post(t *testing.T, srv *httptest.Server, path, body string) *http.Response {
	t.Helper()

	res, err := http.Post(srv.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return res
}

// readEvents parses an event stream whose data fields are single lines.
func readEvents(t *testing.T, r io.Reader) []event {
	t.Helper()

	var events []event
	var cur event
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if cur.typ != "" || cur.data != "" {
				events = append(events, cur)
			}
			cur = event{}
		case strings.HasPrefix(line, "event:"):
			cur.typ = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			cur.data += strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")
		}
	}
	require.NoError(t, sc.Err())
	return events
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (m *mockLLM) Chat(_ context.Context, req models.ChatRequest) iter.Seq2[string, error] {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	return func(yield func(string, error) bool) {
		for i, resp := range m.responses {
			if i == m.failAt {
				yield("", m.err)
				return
			}
			if !yield(resp, nil) {
				return
			}
		}
		if m.failAt >= len(m.responses) {
			yield("", m.err)
		}
	}
}

func newMockStore() *mockStore {
	return &mockStore{messages: make(map[string][]models.Message)}
}

func (m *mockStore) nextID() models.ID {
	m.seq++
	return models.ID(strconv.Itoa(m.seq))
}

func (m *mockStore) seed(systemPrompt string) string {
	conv, _ := m.AddConversation(context.Background(), models.Conversation{SystemPrompt: systemPrompt})
	return conv.ID.String()
}

func (m *mockStore) addRaw(convID string, msg models.Message) string {
	msg, _ = m.AddMessage(context.Background(), convID, msg)
	return msg.ID.String()
}

func page[T any](items []T, skip, limit int) []T {
	if skip >= len(items) {
		return nil
	}
	items = items[skip:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func (m *mockStore) Conversations(_ context.Context, skip, limit int) ([]models.ConversationSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	var res []models.ConversationSummary
	for _, c := range page(m.convs, skip, limit) {
		res = append(res, c.Summary())
	}
	return res, nil
}

func (m *mockStore) Conversation(_ context.Context, id string) (models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return models.Conversation{}, m.err
	}
	idx := slices.IndexFunc(m.convs, func(c models.Conversation) bool { return c.ID.String() == id })
	if idx == -1 {
		return models.Conversation{}, models.ErrNotFound
	}
	return m.convs[idx], nil
}

func (m *mockStore) AddConversation(_ context.Context, conv models.Conversation) (models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return models.Conversation{}, m.err
	}
	conv.ID = m.nextID()
	m.convs = append(m.convs, conv)
	return conv, nil
}

func (m *mockStore) DeleteConversation(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	idx := slices.IndexFunc(m.convs, func(c models.Conversation) bool { return c.ID.String() == id })
	if idx == -1 {
		return models.ErrNotFound
	}
	m.convs = slices.Delete(m.convs, idx, idx+1)
	delete(m.messages, id)
	return nil
}

func (m *mockStore) Messages(_ context.Context, convID string, skip, limit int) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	return slices.Clone(page(m.messages[convID], skip, limit)), nil
}

func (m *mockStore) Message(_ context.Context, id string) (models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return models.Message{}, m.err
	}
	for _, msgs := range m.messages {
		for _, msg := range msgs {
			if msg.ID.String() == id {
				return msg, nil
			}
		}
	}
	return models.Message{}, models.ErrNotFound
}

func (m *mockStore) AddMessage(_ context.Context, convID string, msg models.Message) (models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return models.Message{}, m.err
	}
	msg.ID = m.nextID()
	msg.ConversationID = models.ID(convID)
	m.messages[convID] = append(m.messages[convID], msg)
	return msg, nil
}

func (m *mockStore) UpdateMessage(_ context.Context, msg models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	msgs := m.messages[msg.ConversationID.String()]
	idx := slices.IndexFunc(msgs, func(v models.Message) bool { return v.ID == msg.ID })
	if idx == -1 {
		return models.ErrNotFound
	}
	msgs[idx] = msg
	return nil
}

func (m *mockStore) Prompts(_ context.Context, skip, limit int) ([]models.Prompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	return slices.Clone(page(m.prompts, skip, limit)), nil
}

func (m *mockStore) Prompt(_ context.Context, id string) (models.Prompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return models.Prompt{}, m.err
	}
	idx := slices.IndexFunc(m.prompts, func(p models.Prompt) bool { return p.ID.String() == id })
	if idx == -1 {
		return models.Prompt{}, models.ErrNotFound
	}
	return m.prompts[idx], nil
}

func (m *mockStore) AddPrompt(_ context.Context, p models.Prompt) (models.Prompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return models.Prompt{}, m.err
	}
	if slices.ContainsFunc(m.prompts, func(v models.Prompt) bool { return v.Name == p.Name }) {
		return models.Prompt{}, models.ErrPromptNameTaken
	}
	p.ID = m.nextID()
	m.prompts = append(m.prompts, p)
	return p, nil
}

func (m *mockStore) UpdatePrompt(_ context.Context, p models.Prompt) (models.Prompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return models.Prompt{}, m.err
	}
	if slices.ContainsFunc(m.prompts, func(v models.Prompt) bool { return v.Name == p.Name && v.ID != p.ID }) {
		return models.Prompt{}, models.ErrPromptNameTaken
	}
	idx := slices.IndexFunc(m.prompts, func(v models.Prompt) bool { return v.ID == p.ID })
	if idx == -1 {
		return models.Prompt{}, models.ErrNotFound
	}
	m.prompts[idx] = p
	return p, nil
}

func (m *mockStore) DeletePrompt(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	idx := slices.IndexFunc(m.prompts, func(p models.Prompt) bool { return p.ID.String() == id })
	if idx == -1 {
		return models.ErrNotFound
	}
	m.prompts = slices.Delete(m.prompts, idx, idx+1)
	return nil
}
