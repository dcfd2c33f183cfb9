package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrKeyColumn is wrapped when a key column is supplied as an ordinary field.
var ErrKeyColumn = errors.New("key columns cannot be set as fields")

// ErrJournal is wrapped when a change was applied in memory but could not be
// written to the session journal. The change stays in effect; the journal
// catches up on the next successful write.
var ErrJournal = errors.New("journal write failed")

// MissingSheetError is returned by the loader when a required sheet is absent.
type MissingSheetError struct {
	Sheet string
}

func (e MissingSheetError) Error() string {
	return fmt.Sprintf("workbook is missing required sheet %q", e.Sheet)
}

// MalformedRowError reports a row whose key cell cannot be parsed.
type MalformedRowError struct {
	Sheet  string
	Row    int
	Column string
	Value  string
	Err    error
}

func (e MalformedRowError) Error() string {
	msg := fmt.Sprintf("sheet %s row %d: column %s has malformed value %q", e.Sheet, e.Row, e.Column, e.Value)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e MalformedRowError) Unwrap() error { return e.Err }

// NotFoundError is returned when a keyed record does not exist.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// InvalidReferenceError reports a coded value missing from its lookup table or
// roster, or a reference that would be left dangling by a delete.
type InvalidReferenceError struct {
	Entity EntityType
	Field  string
	Value  string
	Target string
}

func (e InvalidReferenceError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s %s is still referenced by %s", e.Entity, e.Value, e.Target)
	}
	return fmt.Sprintf("%s.%s: %q is not a known %s", e.Entity, e.Field, e.Value, e.Target)
}

// DuplicateKeyError is returned when a primary key is already in use.
type DuplicateKeyError struct {
	Entity EntityType
	Key    string
}

func (e DuplicateKeyError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Entity, e.Key)
}

// FieldError reports a value that cannot be coerced to its column type.
type FieldError struct {
	Field string
	Value string
	Err   error
}

func (e FieldError) Error() string {
	return fmt.Sprintf("field %s: invalid value %q: %v", e.Field, e.Value, e.Err)
}

func (e FieldError) Unwrap() error { return e.Err }

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	var msgs []string
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			msgs = append(msgs, v.Message)
		}
	}
	if len(msgs) == 0 {
		return "transaction blocked by rules"
	}
	return "transaction blocked by rules: " + strings.Join(msgs, "; ")
}
