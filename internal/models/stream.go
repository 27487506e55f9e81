package models

// Names used by the streamed send-message response. A raw text stream reports its out-of-band results in HTTP
// trailers; an SSE stream uses typed events.
const (
	TrailerMessageID        = "X-Message-Id"
	TrailerMessageTimestamp = "X-Message-Timestamp"
	TrailerStreamError      = "X-Stream-Error"

	// EventDelta carries one content fragment, encoded as a JSON string.
	EventDelta = "delta"
	// EventMessage carries the persisted assistant message as JSON.
	EventMessage = "message"
	// EventError carries a {"detail": ...} object and ends the stream.
	EventError = "error"
)
