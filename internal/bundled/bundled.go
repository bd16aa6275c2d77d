// Package bundled builds the read-only app topics shipped with the binary.
package bundled

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/pavelanni/trivia/internal/model"
	"github.com/pavelanni/trivia/internal/parser"
)

//go:embed topics.yaml
var topicsYAML []byte

// Localizer resolves a message ID to text.
type Localizer interface {
	Lookup(msgID string) (string, bool)
}

// Definition describes the bundled topics.
type Definition struct {
	AnswersPerQuestion int        `yaml:"answers_per_question"`
	Topics             []TopicDef `yaml:"topics"`
}

// TopicDef is one bundled topic.
type TopicDef struct {
	Name string   `yaml:"name"`
	Sets []SetDef `yaml:"sets"`
}

// SetDef maps a localization set key to its correct answer indices, one
// per question.
type SetDef struct {
	Key     int   `yaml:"key"`
	Correct []int `yaml:"correct"`
}

// QuestionKey returns the localization key of a question (answer == 0) or
// of one of its answers. All numbers are 1-based.
func QuestionKey(set, question, answer int) string {
	if answer == 0 {
		return fmt.Sprintf("S%dQ%d", set, question)
	}
	return fmt.Sprintf("S%dQ%dA%d", set, question, answer)
}

// Load parses the embedded definition.
func Load() (Definition, error) {
	return Parse(topicsYAML)
}

// Parse parses a YAML topic definition.
func Parse(data []byte) (Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("decode bundled topics: %w", err)
	}
	if def.AnswersPerQuestion == 0 {
		def.AnswersPerQuestion = 4
	}
	return def, nil
}

// Topics resolves every topic in def through loc. A missing key or an
// invalid resulting quiz is an error: bundled content must be complete.
func Topics(def Definition, loc Localizer) ([]model.TopicEntry, error) {
	entries := make([]model.TopicEntry, 0, len(def.Topics))
	for _, td := range def.Topics {
		var quiz model.Quiz
		for _, sd := range td.Sets {
			set, err := buildSet(sd, def.AnswersPerQuestion, loc)
			if err != nil {
				return nil, fmt.Errorf("topic %s: %w", td.Name, err)
			}
			quiz.Sets = append(quiz.Sets, set)
		}
		if err := parser.Validate(quiz); err != nil {
			return nil, fmt.Errorf("topic %s: %w", td.Name, err)
		}

		name, ok := loc.Lookup(td.Name)
		if !ok {
			name = td.Name
		}
		entries = append(entries, model.TopicEntry{
			Name:       name,
			Quiz:       quiz,
			Provenance: model.ModeApp,
			State:      model.StatePopulated,
		})
	}
	return entries, nil
}

func buildSet(sd SetDef, nAnswers int, loc Localizer) ([]model.Question, error) {
	questions := make([]model.Question, 0, len(sd.Correct))
	for i, correct := range sd.Correct {
		text, ok := loc.Lookup(QuestionKey(sd.Key, i+1, 0))
		if !ok {
			return nil, fmt.Errorf("missing text for %s", QuestionKey(sd.Key, i+1, 0))
		}
		answers := make([]string, 0, nAnswers)
		for j := 1; j <= nAnswers; j++ {
			key := QuestionKey(sd.Key, i+1, j)
			a, ok := loc.Lookup(key)
			if !ok {
				return nil, fmt.Errorf("missing text for %s", key)
			}
			answers = append(answers, a)
		}
		questions = append(questions, model.NewQuestion(text, answers, &correct))
	}
	return questions, nil
}
