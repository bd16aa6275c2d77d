// Package parser converts trivia content to and from model.Quiz.
//
// The text format is a list of KEY = VALUE records:
//
//	S1Q1 = "Who painted the Mona Lisa?"
//	S1Q1A1 = "Leonardo da Vinci"
//	S1Q1A2 = "Michelangelo"
//	S1Q1Ans = 0
//
// Records are separated by whitespace, commas or semicolons, and may appear
// in any order. Keys and values may be double-quoted; quoted values accept
// the escapes \" \\ \n \t and \r. Lines starting with # or // are comments.
// A key names the set, the question within the set and the field: no suffix
// for the question text, A<n> for answer option n, Ans for the 0-based index
// of the correct answer among the ordered options. Unknown keys are
// ignored and the last occurrence of a duplicated key wins.
package parser

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/pavelanni/trivia/internal/model"
)

var keyPattern = regexp.MustCompile(`^S(\d+)Q(\d+)(?:A(\d+)|(Ans))?$`)

type record struct {
	key   string
	value string
}

// rawQuestion collects the records of one question before validation.
type rawQuestion struct {
	text    *string
	answers map[int]string
	correct *string
}

func newRawQuestion() *rawQuestion {
	return &rawQuestion{answers: make(map[int]string)}
}

// Parse reads quiz content in the text format.
func Parse(content string) (model.Quiz, error) {
	sets := make(map[int]map[int]*rawQuestion)
	recognized := 0

	for _, rec := range scanRecords(content) {
		m := keyPattern.FindStringSubmatch(rec.key)
		if m == nil {
			continue
		}
		setNum, err1 := strconv.Atoi(m[1])
		qNum, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil {
			continue
		}
		answerNum := 0
		if m[3] != "" {
			n, err := strconv.Atoi(m[3])
			if err != nil {
				continue
			}
			answerNum = n
		}

		questions, ok := sets[setNum]
		if !ok {
			questions = make(map[int]*rawQuestion)
			sets[setNum] = questions
		}
		raw, ok := questions[qNum]
		if !ok {
			raw = newRawQuestion()
			questions[qNum] = raw
		}

		value := rec.value
		switch {
		case m[4] != "":
			raw.correct = &value
		case m[3] != "":
			raw.answers[answerNum] = value
		default:
			raw.text = &value
		}
		recognized++
	}

	if recognized == 0 {
		return model.Quiz{}, ErrEmptyOrUnrecognized
	}

	var quiz model.Quiz
	for _, setNum := range sortedKeys(sets) {
		questions := sets[setNum]
		var set []model.Question
		for _, qNum := range sortedKeys(questions) {
			q, err := questions[qNum].build()
			if err != nil {
				return model.Quiz{}, &Error{Set: setNum, Question: qNum, Err: err}
			}
			set = append(set, q)
		}
		quiz.Sets = append(quiz.Sets, set)
	}
	return quiz, nil
}

func (r *rawQuestion) build() (model.Question, error) {
	answers := make([]string, 0, len(r.answers))
	for _, n := range sortedKeys(r.answers) {
		answers = append(answers, r.answers[n])
	}

	text := ""
	if r.text != nil {
		text = *r.text
	}

	var correct *int
	badIndex := false
	if r.correct != nil {
		n, err := strconv.Atoi(strings.TrimSpace(*r.correct))
		if err != nil {
			badIndex = true
		} else {
			correct = &n
		}
	}

	if err := checkQuestion(text, len(answers), r.correct != nil, correct, badIndex); err != nil {
		return model.Question{}, err
	}
	return model.NewQuestion(text, answers, correct), nil
}

// checkQuestion applies the per-question rules shared by both formats.
func checkQuestion(text string, numAnswers int, hasCorrect bool, correct *int, badIndex bool) error {
	switch {
	case text == "":
		return ErrIncompleteQuestion
	case numAnswers < 2:
		return ErrInsufficientAnswers
	case !hasCorrect:
		return ErrIncompleteQuestion
	case badIndex || correct == nil || *correct < 0 || *correct >= numAnswers:
		return ErrInvalidAnswerIndex
	}
	return nil
}

// Serialize writes quiz in the text format, one record per line.
func Serialize(quiz model.Quiz) string {
	var sb strings.Builder
	for i, set := range quiz.Sets {
		for j, q := range set {
			prefix := "S" + strconv.Itoa(i+1) + "Q" + strconv.Itoa(j+1)
			writeRecord(&sb, prefix, quote(q.Text))
			for k, a := range q.Answers {
				writeRecord(&sb, prefix+"A"+strconv.Itoa(k+1), quote(a))
			}
			if idx, ok := q.CorrectIndex(); ok {
				writeRecord(&sb, prefix+"Ans", strconv.Itoa(idx))
			}
		}
		if i < len(quiz.Sets)-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

func writeRecord(sb *strings.Builder, key, value string) {
	sb.WriteString(key)
	sb.WriteString(" = ")
	sb.WriteString(value)
	sb.WriteByte('\n')
}

func quote(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"', '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
