package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"mime"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/promptcraft/promptcraft-chat/internal/models"
	"github.com/tmaxmax/go-sse"
)

// Mode is the shape of a send-message response body.
type Mode int

const (
	// ModeText is a chunked raw-text body.
	ModeText Mode = iota
	// ModeJSON is a single complete JSON message object.
	ModeJSON
	// ModeSSE is a server-sent events body.
	ModeSSE
)

const (
	readBufferSize = 4096

	// DefaultMaxEventSize bounds a single server-sent event. A delta event carries one model chunk, so the
	// limit only has to fit the largest chunk a provider emits.
	DefaultMaxEventSize = 16 << 20
)

// Stream turns a send-message response body into a lazy sequence of content deltas. A Stream is single pass:
// it reads a live network body and cannot be restarted.
type Stream struct {
	mode         Mode
	resp         *http.Response
	maxEventSize int

	content  strings.Builder
	final    models.Message
	hasFinal bool
	consumed bool
}

// DetectMode maps a Content-Type header value to a response mode. Unknown or missing types are treated as
// raw text.
func DetectMode(contentType string) Mode {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ModeText
	}
	switch mediaType {
	case "application/json":
		return ModeJSON
	case "text/event-stream":
		return ModeSSE
	default:
		return ModeText
	}
}

func (m Mode) String() string {
	switch m {
	case ModeJSON:
		return "json"
	case ModeSSE:
		return "sse"
	default:
		return "text"
	}
}

// StreamOption configures a Stream.
type StreamOption func(*Stream)

// WithMaxEventSize sets the largest server-sent event the stream accepts, in bytes. Values of zero or less
// keep DefaultMaxEventSize.
func WithMaxEventSize(n int) StreamOption {
	return func(s *Stream) {
		if n > 0 {
			s.maxEventSize = n
		}
	}
}

// NewStream wraps a successful response. The caller hands ownership of resp.Body to the stream.
func NewStream(resp *http.Response, opts ...StreamOption) *Stream {
	s := &Stream{
		mode:         DetectMode(resp.Header.Get("Content-Type")),
		resp:         resp,
		maxEventSize: DefaultMaxEventSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mode returns the detected response mode.
func (s *Stream) Mode() Mode {
	return s.mode
}

// Deltas returns the content fragments of the body in receipt order. Concatenating them reconstructs the full
// message. When the body fails partway, a single *StreamReadError carrying the content delivered so far is
// yielded and the sequence ends. The body is closed when the sequence ends.
func (s *Stream) Deltas() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if s.consumed {
			yield("", ErrStreamConsumed)
			return
		}
		s.consumed = true
		defer s.resp.Body.Close()

		switch s.mode {
		case ModeJSON:
			s.readJSON(yield)
		case ModeSSE:
			s.readSSE(yield)
		default:
			s.readText(yield)
		}
	}
}

// Content returns everything delivered so far.
func (s *Stream) Content() string {
	return s.content.String()
}

// Final returns the authoritative message, if the server supplied one: the JSON body, an SSE message event,
// or the message trailers of a raw text stream. It is only meaningful once Deltas is exhausted.
func (s *Stream) Final() (models.Message, bool) {
	return s.final, s.hasFinal
}

// Close releases the body without reading it.
func (s *Stream) Close() error {
	return s.resp.Body.Close()
}

func (s *Stream) emit(yield func(string, error) bool, delta string) bool {
	s.content.WriteString(delta)
	return yield(delta, nil)
}

func (s *Stream) fail(yield func(string, error) bool, err error) {
	yield("", &StreamReadError{Partial: s.content.String(), Err: err})
}

func (s *Stream) readText(yield func(string, error) bool) {
	buf := make([]byte, readBufferSize)
	// pending holds the bytes of a rune split across two reads.
	var pending []byte
	for {
		n, err := s.resp.Body.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			var text string
			text, pending = splitUTF8(pending)
			if text != "" && !s.emit(yield, text) {
				return
			}
		}

		if err != nil && len(pending) > 0 {
			if !s.emit(yield, strings.ToValidUTF8(string(pending), string(utf8.RuneError))) {
				return
			}
			pending = nil
		}
		if errors.Is(err, io.EOF) {
			if detail := s.resp.Trailer.Get(models.TrailerStreamError); detail != "" {
				s.fail(yield, &ServerError{Status: http.StatusInternalServerError, Detail: detail})
				return
			}
			s.finalFromTrailer()
			return
		}
		if err != nil {
			s.fail(yield, err)
			return
		}
	}
}

// splitUTF8 returns the longest decodable prefix of b and the incomplete rune left at its end, if any.
func splitUTF8(b []byte) (string, []byte) {
	cut := len(b)
	for i := len(b) - 1; i >= 0 && i > len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				cut = i
			}
			break
		}
	}
	rest := append([]byte(nil), b[cut:]...)
	return strings.ToValidUTF8(string(b[:cut]), string(utf8.RuneError)), rest
}

func (s *Stream) finalFromTrailer() {
	id := s.resp.Trailer.Get(models.TrailerMessageID)
	if id == "" {
		return
	}

	msg := models.Message{
		ID:      models.ID(id),
		Role:    models.RoleAssistant,
		Content: s.content.String(),
	}
	if ts := s.resp.Trailer.Get(models.TrailerMessageTimestamp); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			msg.Timestamp = t
		}
	}
	s.final = msg
	s.hasFinal = true
}

func (s *Stream) readJSON(yield func(string, error) bool) {
	var msg models.Message
	if err := json.NewDecoder(s.resp.Body).Decode(&msg); err != nil {
		s.fail(yield, fmt.Errorf("error decoding message: %w", err))
		return
	}
	if msg.Role == "" {
		msg.Role = models.RoleAssistant
	}
	s.final = msg
	s.hasFinal = true

	if msg.Content != "" {
		s.emit(yield, msg.Content)
	}
}

func (s *Stream) readSSE(yield func(string, error) bool) {
	for ev, err := range sse.Read(s.resp.Body, &sse.ReadConfig{MaxEventSize: s.maxEventSize}) {
		if err != nil {
			s.fail(yield, fmt.Errorf("error reading event: %w", err))
			return
		}

		switch ev.Type {
		case "", models.EventDelta:
			var delta string
			if err := json.Unmarshal([]byte(ev.Data), &delta); err != nil {
				// Plain data lines are accepted as literal text.
				delta = ev.Data
			}
			if delta != "" && !s.emit(yield, delta) {
				return
			}
		case models.EventMessage:
			var msg models.Message
			if err := json.Unmarshal([]byte(ev.Data), &msg); err != nil {
				s.fail(yield, fmt.Errorf("error decoding message event: %w", err))
				return
			}
			if msg.Role == "" {
				msg.Role = models.RoleAssistant
			}
			if msg.Content == "" {
				msg.Content = s.content.String()
			}
			s.final = msg
			s.hasFinal = true
		case models.EventError:
			s.fail(yield, &ServerError{
				Status: http.StatusInternalServerError,
				Detail: errorDetail([]byte(ev.Data)),
			})
			return
		}
	}
}
