// Package failure holds the playback error taxonomy shared by the
// orchestrator, the worker pool and the voice pipeline.
package failure

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind is the closed set of playback failure kinds
type Kind int

const (
	KindUnknown Kind = iota
	KindRateLimited
	KindAuthRequired
	KindWorkerUnavailable
)

// Kinds lists every kind in declaration order
var Kinds = []Kind{KindUnknown, KindRateLimited, KindAuthRequired, KindWorkerUnavailable}

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate-limited"
	case KindAuthRequired:
		return "auth-required"
	case KindWorkerUnavailable:
		return "worker-unavailable"
	default:
		return "unknown"
	}
}

// Recoverable reports whether the kind is eligible for the pooled fallback
func (k Kind) Recoverable() bool {
	switch k {
	case KindRateLimited, KindAuthRequired:
		return true
	case KindWorkerUnavailable, KindUnknown:
		return false
	}
	return false
}

// ErrorInfo is a classified playback error
type ErrorInfo struct {
	Kind      Kind
	Message   string
	Detail    map[string]string
	Err       error
	Timestamp time.Time
}

// New creates a classified error wrapping cause
func New(kind Kind, message string, cause error) *ErrorInfo {
	return &ErrorInfo{
		Kind:      kind,
		Message:   message,
		Detail:    make(map[string]string),
		Err:       cause,
		Timestamp: time.Now(),
	}
}

// Newf creates a classified error without a cause
func Newf(kind Kind, format string, args ...any) *ErrorInfo {
	return New(kind, fmt.Sprintf(format, args...), nil)
}

// WithDetail attaches a structured detail entry and returns the error
func (e *ErrorInfo) WithDetail(key, value string) *ErrorInfo {
	if e.Detail == nil {
		e.Detail = make(map[string]string)
	}
	e.Detail[key] = value
	return e
}

func (e *ErrorInfo) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ErrorInfo) Unwrap() error {
	return e.Err
}

// Is matches another *ErrorInfo by kind
func (e *ErrorInfo) Is(target error) bool {
	var other *ErrorInfo
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// Sentinels usable with errors.Is to test for a kind
var (
	ErrRateLimited       = &ErrorInfo{Kind: KindRateLimited, Message: "rate limited"}
	ErrAuthRequired      = &ErrorInfo{Kind: KindAuthRequired, Message: "authentication required"}
	ErrWorkerUnavailable = &ErrorInfo{Kind: KindWorkerUnavailable, Message: "no worker available"}
	ErrUnknown           = &ErrorInfo{Kind: KindUnknown, Message: "unknown failure"}
)

// Classifier maps a raw error onto the taxonomy
type Classifier interface {
	Classify(err error) *ErrorInfo
}

// ClassifierFunc adapts a function to the Classifier interface
type ClassifierFunc func(err error) *ErrorInfo

func (f ClassifierFunc) Classify(err error) *ErrorInfo {
	return f(err)
}

// Classify converts err into an *ErrorInfo. Already classified errors are
// returned as is, deadline expiry counts as throttling, and everything else
// is unknown.
func Classify(err error) *ErrorInfo {
	if err == nil {
		return nil
	}

	var info *ErrorInfo
	if errors.As(err, &info) {
		return info
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return New(KindRateLimited, "direct stream deadline exceeded", err).WithDetail("cause", "deadline")
	}
	return New(KindUnknown, "unclassified failure", err)
}

// KindOf returns the kind of err after classification
func KindOf(err error) Kind {
	if info := Classify(err); info != nil {
		return info.Kind
	}
	return KindUnknown
}
