package session

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/promptcraft/promptcraft-chat/internal/client"
)

var (
	// ErrBusy is returned when a message is sent while the previous one is still in flight.
	ErrBusy = errors.New("a response is still in progress")
	// ErrNoActiveConversation is returned by operations that need a selected conversation.
	ErrNoActiveConversation = errors.New("no active conversation")
	// ErrNotEligible is returned when feedback is requested for a message that has no server identifier yet,
	// is still streaming, or is not in the active conversation.
	ErrNotEligible = errors.New("message is not eligible for feedback")

	errStreamTargetGone = errors.New("stream target is no longer the last message of the active conversation")
)

// ValidationError lists every precondition an intent failed. It is resolved locally: no request is made.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, " ")
}

// Describe turns any error produced by the engine into the notice shown to the user.
func Describe(err error) string {
	var (
		valErr  *ValidationError
		readErr *client.StreamReadError
		srvErr  *client.ServerError
		netErr  *client.NetworkError
	)

	switch {
	case errors.Is(err, ErrBusy):
		return "A response is still being received. Please wait for it to finish."
	case errors.As(err, &valErr):
		return valErr.Error()
	case errors.Is(err, ErrNoActiveConversation):
		return "Please start a new conversation first."
	case errors.Is(err, ErrNotEligible):
		return "Feedback is only available on saved assistant messages."
	case errors.As(err, &readErr):
		if errors.As(readErr.Err, &srvErr) && srvErr.Detail != "" {
			return "The response was interrupted: " + srvErr.Detail
		}
		return fmt.Sprintf("The response was interrupted: %v", readErr.Err)
	case errors.Is(err, client.ErrNotFound):
		if errors.As(err, &srvErr) && srvErr.Detail != "" {
			return "Not found: " + srvErr.Detail
		}
		return "The requested item no longer exists on the server."
	case errors.As(err, &srvErr):
		if srvErr.Detail != "" {
			return fmt.Sprintf("Server error (%d): %s", srvErr.Status, srvErr.Detail)
		}
		return fmt.Sprintf("Server error (%d %s).", srvErr.Status, http.StatusText(srvErr.Status))
	case errors.As(err, &netErr):
		return "Network error: could not reach the server. Please try again."
	default:
		return "Error: " + err.Error()
	}
}
