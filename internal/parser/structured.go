package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pavelanni/trivia/internal/model"
)

// ParseStructured reads the JSON export format. Unknown fields are ignored
// and empty sets are dropped.
func ParseStructured(content string) (model.Quiz, error) {
	var exp model.QuizExport
	if err := json.Unmarshal([]byte(content), &exp); err != nil {
		return model.Quiz{}, fmt.Errorf("%w: %v", ErrMalformedStructured, err)
	}

	var quiz model.Quiz
	for i, set := range exp.Sets {
		if len(set) == 0 {
			continue
		}
		questions := make([]model.Question, 0, len(set))
		for j, qe := range set {
			if err := checkQuestion(qe.Question, len(qe.Answers), qe.Correct != nil, qe.Correct, false); err != nil {
				return model.Quiz{}, &Error{Set: i + 1, Question: j + 1, Err: err}
			}
			questions = append(questions, model.NewQuestion(qe.Question, qe.Answers, qe.Correct))
		}
		quiz.Sets = append(quiz.Sets, questions)
	}
	if len(quiz.Sets) == 0 {
		return model.Quiz{}, ErrEmptyOrUnrecognized
	}
	return quiz, nil
}

// SerializeStructured encodes quiz as compact JSON suitable for a QR payload.
func SerializeStructured(quiz model.Quiz) (string, error) {
	exp := model.QuizExport{Sets: make([][]model.QuestionExport, 0, len(quiz.Sets))}
	for _, set := range quiz.Sets {
		questions := make([]model.QuestionExport, 0, len(set))
		for _, q := range set {
			qe := model.QuestionExport{Question: q.Text, Answers: q.Answers}
			if idx, ok := q.CorrectIndex(); ok {
				qe.Correct = &idx
			}
			if qe.Answers == nil {
				qe.Answers = []string{}
			}
			questions = append(questions, qe)
		}
		exp.Sets = append(exp.Sets, questions)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(exp); err != nil {
		return "", fmt.Errorf("encode quiz: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// Decode accepts either format: content whose first non-blank character is
// '{' is read as JSON, anything else as text records.
func Decode(content string) (model.Quiz, error) {
	if strings.HasPrefix(strings.TrimSpace(content), "{") {
		return ParseStructured(content)
	}
	return Parse(content)
}

// Validate checks that quiz is finalized: non-empty, no empty sets, and every
// question usable.
func Validate(quiz model.Quiz) error {
	if len(quiz.Sets) == 0 {
		return ErrEmptyOrUnrecognized
	}
	for i, set := range quiz.Sets {
		if len(set) == 0 {
			return &Error{Set: i + 1, Err: ErrEmptyOrUnrecognized}
		}
		for j, q := range set {
			if err := checkQuestion(q.Text, len(q.Answers), q.Correct != nil, q.Correct, false); err != nil {
				return &Error{Set: i + 1, Question: j + 1, Err: err}
			}
		}
	}
	return nil
}
