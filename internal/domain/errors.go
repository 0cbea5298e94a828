package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrNoNewRecords      = errors.New("no new unique presets found")
	ErrNothingToExport   = errors.New("no presets to export")
	ErrClearDeclined     = errors.New("clear declined")
	ErrActionDisabled    = errors.New("action disabled: select a preset or enter a prompt")
	ErrEmptyPrompt       = errors.New("prompt must not be empty")
	ErrImageRequired     = errors.New("source image required")
	ErrNoImageReturned   = errors.New("no image returned")
	ErrInvalidTransition = errors.New("invalid panel state transition")
	ErrInvalidImport     = errors.New("invalid preset file format")
	ErrDuplicateID       = errors.New("preset id already exists")
)

// ConfigurationError is fatal to any generation call and is never retried.
type ConfigurationError struct {
	Setting string
	Msg     string
}

func (e *ConfigurationError) Error() string {
	if e.Setting == "" {
		return "configuration error: " + e.Msg
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Setting, e.Msg)
}

// ServiceError covers transport failures and error responses from the
// generation service.
type ServiceError struct {
	Op     string
	Status int
	Msg    string
	Err    error
}

func (e *ServiceError) Error() string {
	switch {
	case e.Status > 0 && e.Msg != "":
		return fmt.Sprintf("%s: service status %d: %s", e.Op, e.Status, e.Msg)
	case e.Status > 0:
		return fmt.Sprintf("%s: service status %d", e.Op, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
}

func (e *ServiceError) Unwrap() error { return e.Err }

// MalformedResponseError reports structured output that could not be parsed
// into the expected shape.
type MalformedResponseError struct {
	Op  string
	Raw string
	Err error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: malformed response: %v", e.Op, e.Err)
	}
	return e.Op + ": malformed response"
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// StorageKind separates storage failures by phase.
type StorageKind string

const (
	StorageUnavailable StorageKind = "unavailable"
	StorageWrite       StorageKind = "write"
	StorageImport      StorageKind = "import"
)

// StorageError reports a failure of the preset store.
type StorageError struct {
	Kind StorageKind
	Op   string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s (%s): %v", e.Kind, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Unavailable wraps err as a storage access failure.
func Unavailable(op string, err error) error {
	return &StorageError{Kind: StorageUnavailable, Op: op, Err: err}
}

// WriteFailed wraps err as a storage write failure.
func WriteFailed(op string, err error) error {
	return &StorageError{Kind: StorageWrite, Op: op, Err: err}
}

// NoImageError carries the text the service returned instead of an image.
func NoImageError(text string) error {
	if text == "" {
		return fmt.Errorf("%w: no valid image data found", ErrNoImageReturned)
	}
	return fmt.Errorf("%w: AI returned text instead of an image. Message: %q", ErrNoImageReturned, text)
}

// IsConfiguration reports whether err is a ConfigurationError.
func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsMalformed reports whether err is a MalformedResponseError.
func IsMalformed(err error) bool {
	var target *MalformedResponseError
	return errors.As(err, &target)
}

// IsStorage reports whether err is a StorageError.
func IsStorage(err error) bool {
	var target *StorageError
	return errors.As(err, &target)
}

// IsService reports whether err is a ServiceError.
func IsService(err error) bool {
	var target *ServiceError
	return errors.As(err, &target)
}
