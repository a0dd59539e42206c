package recipe

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors.
var (
	// ErrMissingCredential is returned when the generation API key is not configured.
	ErrMissingCredential = errors.New("generation API credential is not set")
	// ErrUnauthenticated is returned by writes made without a caller identity.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrNotFound is returned when a recipe does not exist or is not owned by the caller.
	ErrNotFound = errors.New("recipe not found")
	// ErrNoIngredients is returned when no usable ingredient was supplied.
	ErrNoIngredients = errors.New("at least one ingredient is required")
	// ErrNoDishName is returned when a full recipe is requested without a dish name.
	ErrNoDishName = errors.New("dish name is required")
)

// GenerationError reports a failed model call or an unusable model reply.
type GenerationError struct {
	Reason string
	Err    error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation failed: %s: %v", e.Reason, e.Err)
	}
	return "generation failed: " + e.Reason
}

func (e *GenerationError) Unwrap() error { return e.Err }

// FieldError is one failing field of a validated value.
type FieldError struct {
	Path    string `json:"path"`
	Problem string `json:"problem"`
}

// ValidationError lists every missing or malformed field.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Path+": "+f.Problem)
	}
	return "invalid recipe: " + strings.Join(parts, "; ")
}

// StorageError wraps a backing store failure with the operation that failed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) || errors.Is(err, ErrNotFound) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
