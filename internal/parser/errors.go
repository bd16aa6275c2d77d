package parser

import (
	"errors"
	"fmt"
)

var (
	ErrIncompleteQuestion  = errors.New("question is missing its text or correct answer index")
	ErrInsufficientAnswers = errors.New("question has fewer than 2 answers")
	ErrInvalidAnswerIndex  = errors.New("correct answer index is not a valid answer position")
	ErrEmptyOrUnrecognized = errors.New("no recognizable quiz content")
	ErrMalformedStructured = errors.New("malformed structured quiz")
)

// Error locates a validation failure. Set and Question are the numbers as
// they appear in the input (1-based positions for the structured format).
type Error struct {
	Set      int
	Question int
	Err      error
}

func (e *Error) Error() string {
	if e.Question == 0 {
		return fmt.Sprintf("set %d: %v", e.Set, e.Err)
	}
	return fmt.Sprintf("set %d question %d: %v", e.Set, e.Question, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
