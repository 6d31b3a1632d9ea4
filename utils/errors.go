package utils

import (
	"fmt"
	"strings"
)

type PermError string

func (e PermError) Error() string {
	return string(e)
}

func (e PermError) IsPermanent() bool {
	return true
}

var (
	ErrFileNotFound        = PermError("file not found")
	ErrUnreadableFile      = PermError("unreadable file")
	ErrColumnNotFound      = PermError("column not found")
	ErrNoStatistics        = PermError("no statistics")
	ErrIncomparableKeyType = PermError("incomparable key type")
	ErrWriteFailure        = PermError("write failure")
	ErrPathOutsideRoot     = PermError("path outside data root")
)

// ColumnNotFoundError matches ErrColumnNotFound with errors.Is and carries the
// columns the file does have.
type ColumnNotFoundError struct {
	Column    string
	Available []string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("column %q not found, available columns: %s", e.Column, strings.Join(e.Available, ", "))
}

func (e *ColumnNotFoundError) Is(target error) bool {
	return target == ErrColumnNotFound
}
