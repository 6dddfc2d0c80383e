package reminder

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/lib/pq"
)

var (
	// ErrReminderNotFound means no updatable reminder has the given id.
	ErrReminderNotFound = errors.New("reminder not found")
	// ErrInvalidColumn is returned for column names that are not plain identifiers.
	ErrInvalidColumn = errors.New("invalid column name")
)

// pq error code for undefined_column.
const codeUndefinedColumn = "42703"

// UnknownColumnError is returned when the store rejects a statement because a
// column does not exist.
type UnknownColumnError struct {
	Column string
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("unknown column %q", e.Column)
}

// AsUnknownColumn extracts an UnknownColumnError from err.
func AsUnknownColumn(err error) (*UnknownColumnError, bool) {
	var uc *UnknownColumnError
	if errors.As(err, &uc) {
		return uc, true
	}
	return nil, false
}

var pqColumnRe = regexp.MustCompile(`column "?(?:[A-Za-z0-9_]+\.)?([A-Za-z0-9_]+)"?`)

// translate converts an undefined_column error from Postgres into an
// UnknownColumnError. Other errors are returned unchanged.
func translate(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || string(pqErr.Code) != codeUndefinedColumn {
		return err
	}

	column := ""
	if m := pqColumnRe.FindStringSubmatch(pqErr.Message); len(m) == 2 {
		column = m[1]
	}

	return &UnknownColumnError{Column: column}
}
