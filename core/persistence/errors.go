package persistence

import (
	"errors"
	"fmt"
	"strings"

	"github.com/asaidimu/go-quire/core/schema"
)

var (
	// ErrNotFound is returned when a referenced collection, document, version
	// or file does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an expected latest version id does not
	// match the stored latest version.
	ErrConflict = errors.New("version conflict")

	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrUnexpected marks a broken storage invariant, such as a latest
	// version that cannot be loaded.
	ErrUnexpected = errors.New("unexpected storage state")

	// ErrConfirmationRequired is returned by destructive operations called
	// without ConfirmDeletion.
	ErrConfirmationRequired = errors.New("confirmation required")
)

// ConfirmDeletion is the literal destructive operations require.
const ConfirmDeletion = "permanently-delete"

// ValidationError carries the issues found while checking content, a schema
// or settings.
type ValidationError struct {
	Subject string
	Issues  []schema.Issue
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.String())
	}
	return fmt.Sprintf("invalid %s: %s", e.Subject, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ConflictError reports which version the caller expected and which one is
// actually latest.
type ConflictError struct {
	ID       string
	Expected string
	Actual   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: expected latest version %s, found %s", e.ID, e.Expected, e.Actual)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// MigrationError names the document a migration failed on. Err is either a
// *sandbox.Failure or a *ValidationError for the migrated content.
type MigrationError struct {
	DocumentID string
	Err        error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migrating document %s: %v", e.DocumentID, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

// Issues returns the validation issues behind the failure, if any.
func (e *MigrationError) Issues() []schema.Issue {
	var verr *ValidationError
	if errors.As(e.Err, &verr) {
		return verr.Issues
	}
	return nil
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

func unexpected(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrUnexpected)
}

func invalid(subject string, issues []schema.Issue) error {
	return &ValidationError{Subject: subject, Issues: issues}
}
