package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrAlreadyExists          = errors.New("already exists")
	ErrVersionConflict        = errors.New("record was modified concurrently")
	ErrNotCancelable          = errors.New("post is no longer scheduled")
	ErrNoToken                = errors.New("no token stored for account")
	ErrTokenExpiredNoRefresh  = errors.New("token expired and no refresh token is available")
	ErrUnsupportedFormat      = errors.New("unsupported image format")
	ErrMediaProcessingTimeout = errors.New("media processing did not finish in time")
)

type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindAuth              ErrorKind = "auth"
	KindPermission        ErrorKind = "permission"
	KindTransient         ErrorKind = "transient"
	KindProcessingTimeout ErrorKind = "processing_timeout"
)

// PublishError is a classified failure raised while preparing or publishing
// a job. MediaID is set when media was already uploaded to the platform
// before the failure.
type PublishError struct {
	Kind    ErrorKind
	Op      string
	Err     error
	MediaID string
}

func (e *PublishError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

func NewValidationError(op string, err error) error {
	return &PublishError{Kind: KindValidation, Op: op, Err: err}
}

func NewAuthError(op string, err error) error {
	return &PublishError{Kind: KindAuth, Op: op, Err: err}
}

func NewPermissionError(op string, err error) error {
	return &PublishError{Kind: KindPermission, Op: op, Err: err}
}

func NewTransientError(op string, err error) error {
	return &PublishError{Kind: KindTransient, Op: op, Err: err}
}

func NewProcessingTimeoutError(op string, err error) error {
	return &PublishError{Kind: KindProcessingTimeout, Op: op, Err: err}
}

// WithMediaID attaches an uploaded media id to err so the caller can record
// it as orphaned. Unclassified errors become transient.
func WithMediaID(err error, mediaID string) error {
	if err == nil || mediaID == "" {
		return err
	}
	var pe *PublishError
	if errors.As(err, &pe) {
		cp := *pe
		cp.MediaID = mediaID
		return &cp
	}
	return &PublishError{Kind: KindOf(err), Err: err, MediaID: mediaID}
}

// KindOf classifies err. Anything that is not explicitly classified is
// treated as transient.
func KindOf(err error) ErrorKind {
	var pe *PublishError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	switch {
	case errors.Is(err, ErrUnsupportedFormat):
		return KindValidation
	case errors.Is(err, ErrNoToken), errors.Is(err, ErrTokenExpiredNoRefresh):
		return KindAuth
	case errors.Is(err, ErrMediaProcessingTimeout):
		return KindProcessingTimeout
	}
	return KindTransient
}

func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindProcessingTimeout:
		return true
	}
	return false
}

// OrphanedMediaID returns the uploaded media id carried by err, if any.
func OrphanedMediaID(err error) string {
	var pe *PublishError
	if errors.As(err, &pe) {
		return pe.MediaID
	}
	return ""
}
