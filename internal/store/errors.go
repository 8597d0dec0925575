package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrAuthFailed covers both unknown users and wrong passwords.
	ErrAuthFailed     = errors.New("invalid username or password")
	ErrUserNotFound   = errors.New("user not found")
	ErrEmptyUsername  = errors.New("username is required")
	ErrInvalidRole    = errors.New("role must be user or assistant")
	ErrInvalidOutcome = errors.New("evaluation outcome must be hit or miss")
	ErrEmptyAction    = errors.New("action type is required")
)

// DuplicateFieldError reports which unique field a registration collided on.
type DuplicateFieldError struct {
	Field string // "username" or "email"
}

func (e *DuplicateFieldError) Error() string {
	return fmt.Sprintf("%s already registered", e.Field)
}

// duplicateField maps a users uniqueness violation to the offending field.
func duplicateField(err error) (string, bool) {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.Code != sqlite3.ErrConstraint {
		return "", false
	}
	msg := sqliteErr.Error()
	if !strings.Contains(msg, "UNIQUE") {
		return "", false
	}
	if strings.Contains(msg, "email") {
		return "email", true
	}
	return "username", true
}
