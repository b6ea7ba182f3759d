package chatsync_errors

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrSubmission         = errors.New("message submission failed")
	ErrUpload             = errors.New("attachment upload failed")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidInput       = errors.New("invalid input")
	ErrAlreadyExists      = errors.New("already exists")
	ErrClosed             = errors.New("closed")
	ErrNoConversation     = errors.New("no conversation")
	ErrServiceUnavailable = errors.New("service unavailable")
)

// NowPtr returns a pointer to current time
func NowPtr() *time.Time {
	now := time.Now()
	return &now
}
