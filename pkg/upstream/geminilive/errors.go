package geminilive

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// ErrorType categorizes upstream failures.
type ErrorType string

const (
	ErrTransport         ErrorType = "transport_error"
	ErrRateLimited       ErrorType = "rate_limit_error"
	ErrInvalidCredential ErrorType = "invalid_credential_error"
	ErrProtocol          ErrorType = "protocol_error"
	ErrAPI               ErrorType = "api_error"
)

// Error is the only error shape delivered through a link's error handler.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    int       `json:"code,omitempty"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != 0 {
		return fmt.Sprintf("%s: %s (code: %d)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// RateLimited reports whether the error is quota/rate shaped.
func (e *Error) RateLimited() bool {
	return e != nil && e.Type == ErrRateLimited
}

// InvalidCredential reports whether retrying with the same credential is pointless.
func (e *Error) InvalidCredential() bool {
	return e != nil && e.Type == ErrInvalidCredential
}

func newProtocolError(message string) *Error {
	return &Error{Type: ErrProtocol, Message: message}
}

// classifyDialError maps a websocket dial failure (and the HTTP response, when
// the handshake got that far) onto the error taxonomy.
func classifyDialError(err error, resp *http.Response) *Error {
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	switch {
	case status == http.StatusTooManyRequests:
		return &Error{Type: ErrRateLimited, Message: "upstream rate limit exceeded", Code: status}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &Error{Type: ErrInvalidCredential, Message: "upstream rejected credential", Code: status}
	case status >= 400:
		return &Error{Type: ErrAPI, Message: fmt.Sprintf("upstream handshake failed: %v", err), Code: status}
	default:
		return &Error{Type: ErrTransport, Message: fmt.Sprintf("upstream dial failed: %v", err)}
	}
}

// classifyReadError maps a read-loop failure onto the taxonomy. The Live API
// reports quota and auth problems through close frames, so the close text is
// the only signal available here.
func classifyReadError(err error) *Error {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		text := strings.ToLower(closeErr.Text)
		switch {
		case strings.Contains(text, "resource_exhausted") || strings.Contains(text, "quota") || strings.Contains(text, "rate limit"):
			return &Error{Type: ErrRateLimited, Message: strings.TrimSpace(closeErr.Text), Code: closeErr.Code}
		case strings.Contains(text, "unauthenticated") || strings.Contains(text, "permission_denied") || strings.Contains(text, "api key"):
			return &Error{Type: ErrInvalidCredential, Message: strings.TrimSpace(closeErr.Text), Code: closeErr.Code}
		case closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway:
			return nil
		default:
			return &Error{Type: ErrTransport, Message: strings.TrimSpace(closeErr.Text), Code: closeErr.Code}
		}
	}
	return &Error{Type: ErrTransport, Message: err.Error()}
}
