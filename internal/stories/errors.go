package stories

import (
	"errors"
	"fmt"
	"strings"
)

// NotFoundError reports a story id (or a whole resource) that does not
// exist where it was expected.
type NotFoundError struct {
	// StoryID is empty when the resource itself is missing.
	StoryID  string
	Resource string
}

func (e *NotFoundError) Error() string {
	if e.StoryID == "" {
		return fmt.Sprintf("stories file %s not found", e.Resource)
	}
	return fmt.Sprintf("story %q not found in %s", e.StoryID, e.Resource)
}

// MalformedError reports a resource that exists but is not a valid collection.
type MalformedError struct {
	Resource string
	Err      error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed stories file %s: %v", e.Resource, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// PersistError reports a failed write. Written lists resources that were
// already replaced before the failure, so a caller can reconcile a
// half-finished two-file operation.
type PersistError struct {
	Resource string
	Err      error
	Written  []string
}

func (e *PersistError) Error() string {
	msg := fmt.Sprintf("persisting %s: %v", e.Resource, e.Err)
	if len(e.Written) > 0 {
		msg += fmt.Sprintf(" (already written: %s)", strings.Join(e.Written, ", "))
	}
	return msg
}

func (e *PersistError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsMalformed reports whether err is or wraps a MalformedError.
func IsMalformed(err error) bool {
	var me *MalformedError
	return errors.As(err, &me)
}

// IsPersist reports whether err is or wraps a PersistError.
func IsPersist(err error) bool {
	var pe *PersistError
	return errors.As(err, &pe)
}
