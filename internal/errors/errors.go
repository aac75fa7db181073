// internal/errors/errors.go
package appErrors

import (
    "errors"
    "fmt"
)

// ErrJobNotFound is returned when a job id has no row.
type ErrJobNotFound struct {
    JobID int64
}

func (e *ErrJobNotFound) Error() string {
    return fmt.Sprintf("job with ID %d not found", e.JobID)
}

// Helper constructor
func NewJobNotFound(id int64) error {
    return &ErrJobNotFound{JobID: id}
}

// ErrTemplateNotFound is returned by the renderer for unknown template refs.
type ErrTemplateNotFound struct {
    Ref string
}

func (e *ErrTemplateNotFound) Error() string {
    return fmt.Sprintf("template %q not found", e.Ref)
}

func NewTemplateNotFound(ref string) error {
    return &ErrTemplateNotFound{Ref: ref}
}

// ValidationError describes a rejected input field.
type ValidationError struct {
    Field string `json:"field"`
    Msg   string `json:"message"`
}

func (e *ValidationError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Msg) }

func NewValidation(field, msg string) error {
    return &ValidationError{Field: field, Msg: msg}
}

var (
    ErrTemplateEmpty  = errors.New("template has empty subject or body")
    ErrNoRecipients   = errors.New("no valid recipients after filtering")
    ErrBulkLoadFailed = errors.New("bulk load inserted no rows")
    ErrJobNotEditable = errors.New("job can no longer be edited")
    ErrTokenNotFound  = errors.New("unsubscribe token not found")

    ErrRotationInProgress = errors.New("a secret rotation grace period is still running")
)

// IsNotFound reports whether err carries any not-found error of this package.
func IsNotFound(err error) bool {
    var jnf *ErrJobNotFound
    var tnf *ErrTemplateNotFound
    return errors.As(err, &jnf) || errors.As(err, &tnf) || errors.Is(err, ErrTokenNotFound)
}
