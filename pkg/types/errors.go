package types

import (
	"errors"
	"fmt"
)

// Error kind tags.
const (
	TagSyntaxError     = "SyntaxError"
	TagEvaluationError = "EvaluationError"
)

// Error is the single error type produced by the expression engine. Syntax
// errors come from the tokenizer and parser and carry a source position;
// evaluation errors come from the evaluator and have Pos set to -1.
type Error struct {
	Tag     string
	Message string
	Pos     int
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Pos >= 0 {
		return fmt.Sprintf("%s: %s (position %d)", e.Tag, e.Message, e.Pos)
	}
	return fmt.Sprintf("%s: %s", e.Tag, e.Message)
}

// NewSyntaxError creates a SyntaxError at the given source position.
func NewSyntaxError(pos int, format string, args ...interface{}) *Error {
	return &Error{Tag: TagSyntaxError, Message: fmt.Sprintf(format, args...), Pos: pos}
}

// NewEvaluationError creates an EvaluationError.
func NewEvaluationError(format string, args ...interface{}) *Error {
	return &Error{Tag: TagEvaluationError, Message: fmt.Sprintf(format, args...), Pos: -1}
}

// IsSyntaxError reports whether err wraps a SyntaxError.
func IsSyntaxError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Tag == TagSyntaxError
}

// IsEvaluationError reports whether err wraps an EvaluationError.
func IsEvaluationError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Tag == TagEvaluationError
}
