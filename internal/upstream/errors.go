package upstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
)

// Kind is the closed taxonomy every screen switches on.
type Kind int

const (
	KindUnknown Kind = iota
	// KindConfig means the API is misconfigured or unreachable.
	KindConfig
	KindAuth
	KindValidation
	KindServer
	KindRequest
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "ConfigError"
	case KindAuth:
		return "AuthError"
	case KindValidation:
		return "ValidationError"
	case KindServer:
		return "ServerError"
	case KindRequest:
		return "RequestError"
	default:
		return "UnknownError"
	}
}

// Error is a classified failure of an upstream call or of local validation.
type Error struct {
	Kind Kind
	// Status is the HTTP status code, zero for local and network failures.
	Status int
	// Message is what the operator is shown.
	Message string
	// Detail is the message found in the response body, if any.
	Detail string
	Err    error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a classified error, or KindUnknown.
func KindOf(err error) Kind {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return KindUnknown
}

// StatusOf returns the HTTP status carried by a classified error.
func StatusOf(err error) int {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Status
	}
	return 0
}

// Validation builds a local validation failure, reported like a 422.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// networkError classifies a transport-level failure (DNS, refused, offline).
func networkError(err error) *Error {
	return &Error{
		Kind:    KindConfig,
		Message: "Unable to reach the log collection service. Check the API configuration and your connection.",
		Err:     err,
	}
}

// Classify maps an HTTP response onto the error taxonomy. It returns nil for
// a successful JSON response.
func Classify(resp *http.Response, body []byte) error {
	status := resp.StatusCode
	// A 204 carries no body and usually no content type.
	if status == http.StatusNoContent && resp.Header.Get("Content-Type") == "" {
		return nil
	}

	if !isJSON(resp.Header.Get("Content-Type")) {
		return &Error{
			Kind:    KindConfig,
			Status:  status,
			Message: fmt.Sprintf("The log collection API returned a non-JSON response (status %d). The API URL is probably misconfigured.", status),
		}
	}

	if status >= 200 && status < 300 {
		return nil
	}

	detail := bodyMessage(body)
	orDefault := func(def string) string {
		if detail != "" {
			return detail
		}
		return def
	}

	switch {
	case status == http.StatusUnauthorized:
		return &Error{Kind: KindAuth, Status: status, Detail: detail, Message: orDefault("Authentication failed. Please sign in again.")}
	case status == http.StatusNotFound:
		return &Error{Kind: KindConfig, Status: status, Detail: detail, Message: "The requested API endpoint was not found."}
	case status == http.StatusUnprocessableEntity:
		return &Error{Kind: KindValidation, Status: status, Detail: detail, Message: orDefault("The request was rejected as invalid.")}
	case status >= 500 || status == http.StatusBadRequest:
		return &Error{Kind: KindServer, Status: status, Detail: detail, Message: orDefault("The log collection service reported an error.")}
	default:
		return &Error{Kind: KindRequest, Status: status, Detail: detail, Message: fmt.Sprintf("Request failed with status %d", status)}
	}
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// bodyMessage pulls a human readable message out of an error body.
func bodyMessage(body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	for _, key := range []string{"message", "detail", "error", "msg"} {
		if s, ok := payload[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
