package models

import (
	"errors"
	"fmt"
)

// ErrorKind is a tagged value identifying the class of failure, per the
// "result sums, not exceptions" design: callers switch on kind rather than
// matching error strings.
type ErrorKind string

const (
	KindBadInput            ErrorKind = "bad_input"
	KindBadConfig           ErrorKind = "bad_config"
	KindCollaboratorFailure ErrorKind = "collaborator_failure"
	KindTimeout             ErrorKind = "timeout"
	KindNotFound            ErrorKind = "not_found"
	KindNoUsableFont        ErrorKind = "no_usable_font"
	KindQueueError          ErrorKind = "queue_error"
	KindDownloadRejected    ErrorKind = "download_rejected"
)

// QueueErrorReason further narrows a KindQueueError.
type QueueErrorReason string

const (
	QueueDuplicateID       QueueErrorReason = "duplicate_id"
	QueueUnknownID         QueueErrorReason = "unknown_id"
	QueueIllegalTransition QueueErrorReason = "illegal_transition"
)

// DownloadRejectReason further narrows a KindDownloadRejected.
type DownloadRejectReason string

const (
	DownloadOversize    DownloadRejectReason = "oversize"
	DownloadBadFormat   DownloadRejectReason = "bad_format"
	DownloadHTTPStatus  DownloadRejectReason = "http_status"
)

// PipelineError is the structured error value threaded through every stage.
type PipelineError struct {
	Kind       ErrorKind
	Which      string // which collaborator, for KindCollaboratorFailure
	Reason     string // QueueErrorReason / DownloadRejectReason, as a string
	Message    string
	Underlying error
}

func (e *PipelineError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Underlying)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Underlying
}

func newErr(kind ErrorKind, msg string, cause error) *PipelineError {
	return &PipelineError{Kind: kind, Message: msg, Underlying: cause}
}

func ErrBadInput(msg string) error {
	return newErr(KindBadInput, msg, nil)
}

func ErrBadConfig(msg string) error {
	return newErr(KindBadConfig, msg, nil)
}

func ErrCollaboratorFailure(which, msg string, cause error) error {
	e := newErr(KindCollaboratorFailure, msg, cause)
	e.Which = which
	return e
}

func ErrTimeout(msg string) error {
	return newErr(KindTimeout, msg, nil)
}

func ErrNotFound(msg string) error {
	return newErr(KindNotFound, msg, nil)
}

func ErrNoUsableFont(msg string) error {
	return newErr(KindNoUsableFont, msg, nil)
}

func ErrQueue(reason QueueErrorReason, msg string) error {
	e := newErr(KindQueueError, msg, nil)
	e.Reason = string(reason)
	return e
}

func ErrDownloadRejected(reason DownloadRejectReason, msg string) error {
	e := newErr(KindDownloadRejected, msg, nil)
	e.Reason = string(reason)
	return e
}

// KindOf extracts the ErrorKind from err, walking the wrap chain. The zero
// value is returned if err does not carry a PipelineError.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// Is reports whether err (or something it wraps) carries the given kind.
func Is(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
