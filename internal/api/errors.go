package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Kind classifies a failed call by how the UI should react to it.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindAuth
	KindConflict
	KindNotFound
	KindNetwork
	KindCapacity
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindNetwork:
		return "network"
	case KindCapacity:
		return "capacity"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is. Every *Error matches the sentinel of its Kind.
var (
	ErrValidation = errors.New("validation failed")
	ErrAuth       = errors.New("not authenticated")
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("not found")
	ErrNetwork    = errors.New("network error")
	ErrCapacity   = errors.New("capacity reached")
)

// GenericMessage is shown when the server gave nothing more specific.
const GenericMessage = "Something went wrong. Please try again."

// messageKeys are body keys that carry a message not tied to a field, in the
// order they are consulted.
var messageKeys = []string{"non_field_errors", "error", "detail", "message"}

// Error is a classified API failure.
type Error struct {
	Kind    Kind
	Status  int                 // HTTP status, 0 for local or transport failures
	Message string              // best human-readable message
	Fields  map[string][]string // DRF-style field errors, including message keys
	Cause   error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (%d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches the sentinel for the error's Kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrAuth:
		return e.Kind == KindAuth
	case ErrConflict:
		return e.Kind == KindConflict
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrCapacity:
		return e.Kind == KindCapacity
	}
	return false
}

// FieldMessage returns the first message found by walking fields in order,
// then the non-field message keys, then Message, then GenericMessage.
func (e *Error) FieldMessage(fields ...string) string {
	for _, f := range append(fields, messageKeys...) {
		if msgs := e.Fields[f]; len(msgs) > 0 && msgs[0] != "" {
			return msgs[0]
		}
	}
	if e.Message != "" {
		return e.Message
	}
	return GenericMessage
}

// Message is FieldMessage for any error: non-API errors yield fallback.
func Message(err error, fallback string, fields ...string) string {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		if msg := apiErr.FieldMessage(fields...); msg != GenericMessage || fallback == "" {
			return msg
		}
		return fallback
	}
	if fallback != "" {
		return fallback
	}
	return err.Error()
}

// KindOf returns the Kind of err, KindUnknown for non-API errors.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}

// NewValidation builds a local validation failure on one field.
func NewValidation(field, msg string) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: msg,
		Fields:  map[string][]string{field: {msg}},
	}
}

// NewConflict builds a local conflict failure.
func NewConflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

// NewCapacity builds a local capacity failure.
func NewCapacity(msg string) *Error {
	return &Error{Kind: KindCapacity, Message: msg}
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return KindValidation
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status >= http.StatusInternalServerError:
		return KindNetwork
	default:
		return KindUnknown
	}
}

// parseError turns an error response into an *Error. Bodies are DRF-shaped:
// {"field": ["msg", ...]}, {"error": "msg"}, {"detail": "msg"} or a bare list.
func parseError(status int, body []byte) *Error {
	e := &Error{
		Kind:   kindForStatus(status),
		Status: status,
		Fields: map[string][]string{},
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err == nil {
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if msgs := decodeMessages(obj[k]); len(msgs) > 0 {
				e.Fields[k] = msgs
			}
		}
	} else if msgs := decodeMessages(body); len(msgs) > 0 {
		e.Fields["non_field_errors"] = msgs
	}

	for _, k := range messageKeys {
		if msgs := e.Fields[k]; len(msgs) > 0 {
			e.Message = msgs[0]
			break
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

func decodeMessages(raw json.RawMessage) []string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return nil
		}
		return []string{s}
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	return nil
}
