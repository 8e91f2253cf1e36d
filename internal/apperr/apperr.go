// Package apperr classifies failures into a fixed set of kinds, each with a
// user-facing message, HTTP status and code. Callers never see raw internal
// error text.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

type Kind string

const (
	Authentication Kind = "authentication"
	Authorization  Kind = "authorization"
	Validation     Kind = "validation"
	NotFound       Kind = "not_found"
	RateLimit      Kind = "rate_limit"
	ExternalAPI    Kind = "external_api"
	Database       Kind = "database"
	Storage        Kind = "storage"
	System         Kind = "system"
)

type descriptor struct {
	status  int
	code    string
	message string
}

var descriptors = map[Kind]descriptor{
	Authentication: {http.StatusUnauthorized, "AUTHENTICATION_ERROR", "Authentication required. Please sign in again."},
	Authorization:  {http.StatusForbidden, "AUTHORIZATION_ERROR", "You do not have permission to perform this action."},
	Validation:     {http.StatusBadRequest, "VALIDATION_ERROR", "The request is invalid. Please check your input."},
	NotFound:       {http.StatusNotFound, "NOT_FOUND", "The requested resource was not found."},
	RateLimit:      {http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Too many requests. Please try again later."},
	ExternalAPI:    {http.StatusBadGateway, "EXTERNAL_SERVICE_ERROR", "An external service is temporarily unavailable."},
	Database:       {http.StatusInternalServerError, "DATABASE_ERROR", "A data access error occurred."},
	Storage:        {http.StatusInternalServerError, "STORAGE_ERROR", "A file storage error occurred."},
	System:         {http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred."},
}

// Error tags an underlying error with its kind
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New tags err with kind
func New(kind Kind, err error) error {
	return &Error{Kind: kind, Err: err}
}

// Newf creates a tagged error from a format string
func Newf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the explicit kind of err, falling back to Classify
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Classify(err)
}

var keywordKinds = []struct {
	kind     Kind
	keywords []string
}{
	{Authentication, []string{"unauthorized", "unauthenticated", "invalid token", "jwt", "token expired", "missing authorization", "401"}},
	{Authorization, []string{"forbidden", "permission denied", "not allowed", "access denied", "403"}},
	{RateLimit, []string{"rate limit", "too many requests", "429"}},
	{Validation, []string{"invalid", "validation", "required", "malformed", "must be", "400"}},
	{NotFound, []string{"not found", "no rows", "does not exist", "404"}},
	{ExternalAPI, []string{"openai", "ollama", "model", "upstream", "bad gateway", "502", "503"}},
	{Database, []string{"database", "sql", "postgres", "sqlite", "constraint", "duplicate key", "connection refused"}},
	{Storage, []string{"storage", "bucket", "object", "file", "upload"}},
}

// Classify derives a kind from the error message when no explicit kind is set
func Classify(err error) Kind {
	if err == nil {
		return System
	}
	msg := strings.ToLower(err.Error())
	for _, kk := range keywordKinds {
		for _, kw := range kk.keywords {
			if strings.Contains(msg, kw) {
				return kk.kind
			}
		}
	}
	return System
}

// Status returns the HTTP status for a kind
func Status(kind Kind) int {
	return lookup(kind).status
}

// Code returns the stable error code for a kind
func Code(kind Kind) string {
	return lookup(kind).code
}

// Message returns the fixed user-facing message for a kind
func Message(kind Kind) string {
	return lookup(kind).message
}

func lookup(kind Kind) descriptor {
	if d, ok := descriptors[kind]; ok {
		return d
	}
	return descriptors[System]
}

var redactions = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(?m)^\s*at .*$`), "[STACK_REDACTED]"},
	{regexp.MustCompile(`(?m)^\s*goroutine \d+ \[.*$`), "[STACK_REDACTED]"},
	{regexp.MustCompile(`\S+\.go:\d+`), "[STACK_REDACTED]"},
	{regexp.MustCompile(`(?i)\b(?:postgres(?:ql)?|mysql|redis|rediss|mongodb(?:\+srv)?)://\S+`), "[CONNECTION_STRING_REDACTED]"},
	{regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9\-._~+/]+=*`), "Bearer [TOKEN_REDACTED]"},
	{regexp.MustCompile(`(?i)\b(password|passwd|pwd|secret|api[_-]?key)\s*[=:]\s*\S+`), "$1=[REDACTED]"},
}

// Redact removes stack frames, connection strings, bearer tokens and
// credentials from a message before it is logged
func Redact(msg string) string {
	for _, r := range redactions {
		msg = r.re.ReplaceAllString(msg, r.repl)
	}
	return msg
}
