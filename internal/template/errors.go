package template

import (
	"errors"
	"fmt"
)

var (
	// ErrTemplateNotFound is returned when a template does not exist, or is
	// inactive on a read path that hides inactive templates.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrVersionConflict matches every *VersionConflictError.
	ErrVersionConflict = errors.New("template version conflict")

	// ErrMalformedElement marks element content that does not fit its kind.
	ErrMalformedElement = errors.New("malformed element")

	// ErrInvalidTemplate is returned for writes that fail validation.
	ErrInvalidTemplate = errors.New("invalid template")
)

// VersionConflictError reports an optimistic lock failure. No write happened.
type VersionConflictError struct {
	ID       string
	Expected int
	Current  int
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("template %s: expected version %d, current version %d", e.ID, e.Expected, e.Current)
}

func (e *VersionConflictError) Is(target error) bool {
	return target == ErrVersionConflict
}

// MalformedElementError is attached to RawContent when the stored content
// could not be decoded into the shape of its element kind.
type MalformedElementError struct {
	Type ElementType
	Err  error
}

func (e *MalformedElementError) Error() string {
	return fmt.Sprintf("malformed %s element: %v", e.Type, e.Err)
}

func (e *MalformedElementError) Unwrap() error {
	return e.Err
}

func (e *MalformedElementError) Is(target error) bool {
	return target == ErrMalformedElement
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidTemplate, fmt.Sprintf(format, args...))
}
