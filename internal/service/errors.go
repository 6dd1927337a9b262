package service

import (
	"errors"
	"fmt"
)

// Kind classifies a service failure.
type Kind string

const (
	KindNotFound  Kind = "not_found"
	KindForbidden Kind = "forbidden"
	KindPolicy    Kind = "policy"
	KindInvalid   Kind = "invalid"
)

// Error is a business-rule failure reported to callers. Infrastructure
// failures are returned as plain wrapped errors instead.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

// Is matches any *Error of the same kind when target carries no message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// Sentinels for errors.Is.
var (
	ErrNotFound  = &Error{Kind: KindNotFound}
	ErrForbidden = &Error{Kind: KindForbidden}
	ErrPolicy    = &Error{Kind: KindPolicy}
	ErrInvalid   = &Error{Kind: KindInvalid}
)

func notFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func forbidden(format string, args ...any) error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func policy(format string, args ...any) error {
	return &Error{Kind: KindPolicy, Message: fmt.Sprintf(format, args...)}
}

func invalid(format string, args ...any) error {
	return &Error{Kind: KindInvalid, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of a service error, or "" for anything else.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// wrap annotates infrastructure errors and passes service errors through.
func wrap(err error, msg string) error {
	if err == nil || KindOf(err) != "" {
		return err
	}
	return fmt.Errorf("%s: %w", msg, err)
}
