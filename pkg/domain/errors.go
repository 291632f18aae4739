package domain

import (
	"errors"
	"fmt"
)

// Kind classifies engine and node failures.
type Kind string

const (
	KindGraphConfig Kind = "GraphConfigError"
	KindTransient   Kind = "TransientExternalError"
	KindValidation  Kind = "ValidationError"
	KindParse       Kind = "ParseError"
	KindNotFound    Kind = "CheckpointNotFound"
	KindAbort       Kind = "UserAbort"
)

// TagMaxRetries is the error tag recorded when a retryable node runs out of attempts.
const TagMaxRetries = "Max retries exceeded"

var (
	// ErrGraphConfig is returned for invalid graphs, at compile time or when routing hits an undefined node.
	ErrGraphConfig = errors.New("invalid graph configuration")

	// ErrTransient marks retryable failures of external collaborators (rate limits, provider faults).
	ErrTransient = errors.New("transient external error")

	// ErrValidation marks structured output that failed schema validation.
	ErrValidation = errors.New("validation error")

	// ErrParse marks output that was not well-formed.
	ErrParse = errors.New("parse error")

	// ErrCheckpointNotFound is returned when no checkpoint exists for a run ID.
	ErrCheckpointNotFound = errors.New("checkpoint not found")

	// ErrUserAbort is returned when a run is cancelled at a safe point.
	ErrUserAbort = errors.New("run aborted")

	// ErrAwaitingInput is returned when an operation needs a run that is not waiting for input.
	ErrAwaitingInput = errors.New("run is awaiting external input")

	// ErrNotAwaitingInput is returned when input is provided to a run that did not ask for it.
	ErrNotAwaitingInput = errors.New("run is not awaiting external input")

	// ErrRunFinished is returned when input is provided to a run that already reached End.
	ErrRunFinished = errors.New("run already finished")

	// ErrRunExists is returned when starting a run whose ID already has a checkpoint.
	ErrRunExists = errors.New("run already exists")

	// ErrCheckpointCorrupt is returned when a stored checkpoint fails its digest check.
	ErrCheckpointCorrupt = errors.New("checkpoint digest mismatch")

	// ErrMaxRetries is matched by failures of nodes that ran out of retry attempts.
	ErrMaxRetries = errors.New(TagMaxRetries)
)

var sentinels = map[Kind]error{
	KindGraphConfig: ErrGraphConfig,
	KindTransient:   ErrTransient,
	KindValidation:  ErrValidation,
	KindParse:       ErrParse,
	KindNotFound:    ErrCheckpointNotFound,
	KindAbort:       ErrUserAbort,
}

// Error is a classified failure. It matches the sentinel of its Kind with errors.Is.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && target == s
}

// Errorf builds a classified error with a formatted cause.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Transient wraps err as retryable.
func Transient(op string, err error) error {
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

// Validation wraps err as a schema validation failure.
func Validation(op string, err error) error {
	return &Error{Kind: KindValidation, Op: op, Err: err}
}

// Parse wraps err as a malformed-output failure.
func Parse(op string, err error) error {
	return &Error{Kind: KindParse, Op: op, Err: err}
}

// KindOf returns the taxonomy kind of err, or "" when unclassified.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for kind, s := range sentinels {
		if errors.Is(err, s) {
			return kind
		}
	}
	return ""
}

// Tag maps a node failure to the human-readable tag stored in state.
func Tag(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrMaxRetries) {
		return TagMaxRetries
	}
	switch KindOf(err) {
	case KindValidation:
		return string(KindValidation)
	case KindParse:
		return string(KindParse)
	}
	return err.Error()
}
