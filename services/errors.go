package services

import (
	"errors"
	"fmt"
)

var (
	// ErrUndefinedAggregate is returned by median and max over an empty set.
	ErrUndefinedAggregate = errors.New("aggregate undefined over empty set")
	// ErrEmptyResult marks a view that matched zero rows. It is a warning:
	// views still return an empty shape carrying models.NoDataWarning.
	ErrEmptyResult = errors.New("no matching rows")
	// ErrInvalidFilter wraps filter parameters rejected before any scan.
	ErrInvalidFilter = errors.New("invalid filter")
)

// MalformedInputError reports a source file that cannot be loaded: a missing
// required column or a cell that fails to parse.
type MalformedInputError struct {
	File   string
	Row    int // 1-based data row, 0 for header problems
	Column string
	Reason string
}

func (e *MalformedInputError) Error() string {
	if e.Row == 0 {
		return fmt.Sprintf("malformed input %s: column %q: %s", e.File, e.Column, e.Reason)
	}
	return fmt.Sprintf("malformed input %s: row %d column %q: %s", e.File, e.Row, e.Column, e.Reason)
}

// IsMalformedInput reports whether err is or wraps a MalformedInputError.
func IsMalformedInput(err error) bool {
	var mie *MalformedInputError
	return errors.As(err, &mie)
}
