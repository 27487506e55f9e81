package client_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/iotest"
	"unicode/utf8"

	"github.com/promptcraft/promptcraft-chat/internal/client"
	"github.com/promptcraft/promptcraft-chat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResponse(contentType string, body io.Reader) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {contentType}},
		Body:       io.NopCloser(body),
	}
}

func collect(t *testing.T, s *client.Stream) ([]string, error) {
	t.Helper()
	var deltas []string
	for delta, err := range s.Deltas() {
		if err != nil {
			return deltas, err
		}
		deltas = append(deltas, delta)
	}
	return deltas, nil
}

func TestDetectMode(t *testing.T) {
	tests := []struct {
		contentType string
		want        client.Mode
	}{
		{"application/json", client.ModeJSON},
		{"application/json; charset=utf-8", client.ModeJSON},
		{"text/event-stream", client.ModeSSE},
		{"text/plain; charset=utf-8", client.ModeText},
		{"", client.ModeText},
		{"not a media type;;", client.ModeText},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			assert.Equal(t, tt.want, client.DetectMode(tt.contentType))
		})
	}
}

func TestStreamTextChunks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		for _, chunk := range []string{"He", "llo!"} {
			_, _ = w.Write([]byte(chunk))
			w.(http.Flusher).Flush()
		}
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)

	s := client.NewStream(resp)
	deltas, err := collect(t, s)
	require.NoError(t, err)
	assert.Equal(t, "Hello!", strings.Join(deltas, ""))
	assert.Equal(t, "Hello!", s.Content())

	_, ok := s.Final()
	assert.False(t, ok, "pure text stream without trailers has no final message")
}

func TestStreamTextSplitRunes(t *testing.T) {
	const text = "héllo 世界 👋"
	s := client.NewStream(newResponse("text/plain", iotest.OneByteReader(strings.NewReader(text))))

	deltas, err := collect(t, s)
	require.NoError(t, err)
	for _, d := range deltas {
		assert.True(t, utf8.ValidString(d), "delta %q is not valid UTF-8", d)
	}
	assert.Equal(t, text, strings.Join(deltas, ""))
}

func TestStreamTextInvalidTail(t *testing.T) {
	s := client.NewStream(newResponse("text/plain", strings.NewReader("ok\xe4\xb8")))

	deltas, err := collect(t, s)
	require.NoError(t, err)
	assert.Equal(t, "ok�", strings.Join(deltas, ""))
}

func TestStreamReadErrorKeepsPartial(t *testing.T) {
	boom := errors.New("connection reset")
	body := io.MultiReader(strings.NewReader("partial answer"), iotest.ErrReader(boom))
	s := client.NewStream(newResponse("text/plain", body))

	deltas, err := collect(t, s)
	require.Error(t, err)

	var readErr *client.StreamReadError
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, "partial answer", readErr.Partial)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "partial answer", strings.Join(deltas, ""))
	assert.Equal(t, "partial answer", s.Content())
}

func TestStreamReadErrorFlushesSplitRune(t *testing.T) {
	boom := errors.New("connection reset")
	body := io.MultiReader(strings.NewReader("caf\xc3"), iotest.ErrReader(boom))
	s := client.NewStream(newResponse("text/plain", body))

	deltas, err := collect(t, s)
	var readErr *client.StreamReadError
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, "caf\uFFFD", readErr.Partial)
	assert.Equal(t, "caf\uFFFD", strings.Join(deltas, ""))
	assert.ErrorIs(t, err, boom)
}

func TestStreamJSON(t *testing.T) {
	body := `{"id": 7, "conversation_id": 3, "sender": "ai", "content": "Hi there",
		"timestamp": "2024-05-01T12:00:00", "liked": false, "disliked": false}`
	s := client.NewStream(newResponse("application/json", strings.NewReader(body)))

	deltas, err := collect(t, s)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hi there"}, deltas)

	final, ok := s.Final()
	require.True(t, ok)
	assert.Equal(t, models.ID("7"), final.ID)
	assert.Equal(t, models.RoleAssistant, final.Role)
	assert.Equal(t, 2024, final.Timestamp.Year())
}

func TestStreamJSONMalformed(t *testing.T) {
	s := client.NewStream(newResponse("application/json", strings.NewReader(`{"content": "tru`)))

	_, err := collect(t, s)
	var readErr *client.StreamReadError
	require.ErrorAs(t, err, &readErr)
	assert.Empty(t, readErr.Partial)
}

func TestStreamSSE(t *testing.T) {
	body := "event: delta\ndata: \"He\"\n\n" +
		"event: delta\ndata: \"llo\\n\"\n\n" +
		"event: message\ndata: {\"id\":\"m1\",\"sender\":\"assistant\",\"content\":\"Hello\\n\"," +
		"\"timestamp\":\"2024-05-01T12:00:00Z\"}\n\n"
	s := client.NewStream(newResponse("text/event-stream", strings.NewReader(body)))

	deltas, err := collect(t, s)
	require.NoError(t, err)
	assert.Equal(t, []string{"He", "llo\n"}, deltas)

	final, ok := s.Final()
	require.True(t, ok)
	assert.Equal(t, models.ID("m1"), final.ID)
	assert.Equal(t, "Hello\n", final.Content)
}

func TestStreamSSEMessageWithoutContent(t *testing.T) {
	body := "event: delta\ndata: \"He\"\n\n" +
		"event: delta\ndata: \"llo\"\n\n" +
		"event: message\ndata: {\"id\":\"m1\",\"sender\":\"assistant\",\"timestamp\":\"2024-05-01T12:00:00Z\"," +
		"\"liked\":false,\"disliked\":false}\n\n"
	s := client.NewStream(newResponse("text/event-stream", strings.NewReader(body)))

	_, err := collect(t, s)
	require.NoError(t, err)

	final, ok := s.Final()
	require.True(t, ok)
	assert.Equal(t, models.ID("m1"), final.ID)
	assert.Equal(t, "Hello", final.Content)
}

func TestStreamSSELargeEvent(t *testing.T) {
	big := strings.Repeat("x", 100_000)
	body := "event: delta\ndata: \"ok \"\n\n" +
		"event: delta\ndata: \"" + big + "\"\n\n"

	t.Run("default limit", func(t *testing.T) {
		s := client.NewStream(newResponse("text/event-stream", strings.NewReader(body)))

		_, err := collect(t, s)
		require.NoError(t, err)
		assert.Equal(t, "ok "+big, s.Content())
	})

	t.Run("configured limit", func(t *testing.T) {
		s := client.NewStream(newResponse("text/event-stream", strings.NewReader(body)), client.WithMaxEventSize(1024))

		_, err := collect(t, s)
		var readErr *client.StreamReadError
		require.ErrorAs(t, err, &readErr)
		assert.Equal(t, "ok ", readErr.Partial)
	})
}

func TestStreamSSEErrorEvent(t *testing.T) {
	body := "event: delta\ndata: \"Hal\"\n\n" +
		"event: error\ndata: {\"detail\":\"model overloaded\"}\n\n"
	s := client.NewStream(newResponse("text/event-stream", strings.NewReader(body)))

	_, err := collect(t, s)
	var readErr *client.StreamReadError
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, "Hal", readErr.Partial)

	var srvErr *client.ServerError
	require.ErrorAs(t, err, &srvErr)
	assert.Equal(t, "model overloaded", srvErr.Detail)
}

func TestStreamTrailers(t *testing.T) {
	tests := []struct {
		name      string
		trailers  map[string]string
		wantFinal bool
		wantErr   string
	}{
		{
			name: "message trailers",
			trailers: map[string]string{
				models.TrailerMessageID:        "42",
				models.TrailerMessageTimestamp: "2024-05-01T12:00:00Z",
			},
			wantFinal: true,
		},
		{
			name:     "stream error trailer",
			trailers: map[string]string{models.TrailerStreamError: "generation aborted"},
			wantErr:  "generation aborted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Trailer", strings.Join([]string{
					models.TrailerMessageID, models.TrailerMessageTimestamp, models.TrailerStreamError,
				}, ", "))
				w.Header().Set("Content-Type", "text/plain; charset=utf-8")
				_, _ = w.Write([]byte("Hello"))
				w.(http.Flusher).Flush()
				for k, v := range tt.trailers {
					w.Header().Set(k, v)
				}
			}))
			defer srv.Close()

			resp, err := http.Get(srv.URL)
			require.NoError(t, err)

			s := client.NewStream(resp)
			_, err = collect(t, s)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)

			final, ok := s.Final()
			assert.Equal(t, tt.wantFinal, ok)
			assert.Equal(t, models.ID("42"), final.ID)
			assert.Equal(t, "Hello", final.Content)
			assert.False(t, final.Timestamp.IsZero())
		})
	}
}

func TestStreamSinglePass(t *testing.T) {
	s := client.NewStream(newResponse("text/plain", strings.NewReader("once")))

	_, err := collect(t, s)
	require.NoError(t, err)

	_, err = collect(t, s)
	assert.ErrorIs(t, err, client.ErrStreamConsumed)
}
