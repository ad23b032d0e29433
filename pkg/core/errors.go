package core

import (
	"errors"
	"fmt"
)

// Error is the typed outcome of a collaborator call. Orchestrators inspect
// Kind through OutcomeOf to decide whether to retry, degrade or ignore.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Op      string    `json:"op,omitempty"`
	Message string    `json:"message"`
	Param   string    `json:"param,omitempty"`
	Status  int       `json:"status,omitempty"`
	Err     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorKind names the collaborator that failed.
type ErrorKind string

const (
	ErrTranscription  ErrorKind = "transcription_error"
	ErrCompletion     ErrorKind = "completion_error"
	ErrSynthesis      ErrorKind = "synthesis_error"
	ErrRelay          ErrorKind = "relay_error"
	ErrDirectory      ErrorKind = "directory_error"
	ErrEvidence       ErrorKind = "evidence_error"
	ErrInvalidRequest ErrorKind = "invalid_request_error"
)

// Outcome is what a caller should do after a collaborator failure.
type Outcome int

const (
	// OutcomeIgnore drops the failed unit of work and carries on.
	OutcomeIgnore Outcome = iota
	// OutcomeDegrade keeps the session alive with reduced capability.
	OutcomeDegrade
	// OutcomeRetry leaves the operation re-armable by a later trigger.
	OutcomeRetry
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDegrade:
		return "degrade"
	case OutcomeRetry:
		return "retry"
	default:
		return "ignore"
	}
}

func newError(kind ErrorKind, op string, err error) *Error {
	e := &Error{Kind: kind, Op: op, Err: err}
	if err != nil {
		e.Message = err.Error()
	}
	var se interface{ StatusCode() int }
	if errors.As(err, &se) {
		e.Status = se.StatusCode()
	}
	return e
}

// TranscriptionError wraps a speech-to-text failure.
func TranscriptionError(op string, err error) *Error { return newError(ErrTranscription, op, err) }

// CompletionError wraps a language-model failure.
func CompletionError(op string, err error) *Error { return newError(ErrCompletion, op, err) }

// SynthesisError wraps a text-to-speech failure.
func SynthesisError(op string, err error) *Error { return newError(ErrSynthesis, op, err) }

// RelayError wraps an SMS or outbound-call failure.
func RelayError(op string, err error) *Error { return newError(ErrRelay, op, err) }

// DirectoryError wraps a contact directory or location record failure.
func DirectoryError(op string, err error) *Error { return newError(ErrDirectory, op, err) }

// EvidenceError wraps an evidence archive failure.
func EvidenceError(op string, err error) *Error { return newError(ErrEvidence, op, err) }

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{Kind: ErrInvalidRequest, Message: message}
}

// NewInvalidRequestErrorWithParam creates an invalid request error with a parameter.
func NewInvalidRequestErrorWithParam(message, param string) *Error {
	return &Error{Kind: ErrInvalidRequest, Message: message, Param: param}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// OutcomeOf maps an error to the recovery policy for its collaborator.
func OutcomeOf(err error) Outcome {
	if err == nil {
		return OutcomeIgnore
	}
	switch KindOf(err) {
	case ErrTranscription, ErrCompletion:
		return OutcomeDegrade
	case ErrRelay:
		return OutcomeRetry
	default:
		return OutcomeIgnore
	}
}
