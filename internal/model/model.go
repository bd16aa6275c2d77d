package model

import "slices"

// Mode selects one of the three topic collections.
type Mode string

const (
	ModeApp       Mode = "app"
	ModeSaved     Mode = "saved"
	ModeCommunity Mode = "community"
)

// ParseMode maps a user-supplied mode name to a Mode.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeApp, ModeSaved, ModeCommunity:
		return Mode(s), true
	}
	return "", false
}

// Provenance records where a topic came from. It shares values with Mode.
type Provenance = Mode

// CommunityState is the load state of a topic entry.
type CommunityState string

const (
	StatePlaceholder CommunityState = "placeholder"
	StateFetching    CommunityState = "fetching"
	StatePopulated   CommunityState = "populated"
)

// Question is a single multiple-choice question.
type Question struct {
	Text    string
	Answers []string
	Correct *int // index into Answers, nil until known
}

// NewQuestion builds a question that does not share memory with its inputs.
func NewQuestion(text string, answers []string, correct *int) Question {
	q := Question{Text: text, Answers: slices.Clone(answers)}
	if correct != nil {
		c := *correct
		q.Correct = &c
	}
	return q
}

// CorrectIndex returns the correct answer index and whether it is set.
func (q Question) CorrectIndex() (int, bool) {
	if q.Correct == nil {
		return 0, false
	}
	return *q.Correct, true
}

// Equal reports value equality.
func (q Question) Equal(o Question) bool {
	if q.Text != o.Text || !slices.Equal(q.Answers, o.Answers) {
		return false
	}
	if (q.Correct == nil) != (o.Correct == nil) {
		return false
	}
	return q.Correct == nil || *q.Correct == *o.Correct
}

// Quiz is an ordered list of question sets.
type Quiz struct {
	Sets [][]Question
}

// IsEmpty reports whether the quiz holds no questions at all.
func (q Quiz) IsEmpty() bool {
	for _, set := range q.Sets {
		if len(set) > 0 {
			return false
		}
	}
	return true
}

// QuestionCount returns the number of questions across all sets.
func (q Quiz) QuestionCount() int {
	n := 0
	for _, set := range q.Sets {
		n += len(set)
	}
	return n
}

// Equal reports value equality.
func (q Quiz) Equal(o Quiz) bool {
	return slices.EqualFunc(q.Sets, o.Sets, func(a, b []Question) bool {
		return slices.EqualFunc(a, b, Question.Equal)
	})
}

// Clone returns a deep copy.
func (q Quiz) Clone() Quiz {
	if q.Sets == nil {
		return Quiz{}
	}
	sets := make([][]Question, len(q.Sets))
	for i, set := range q.Sets {
		sets[i] = make([]Question, len(set))
		for j, question := range set {
			sets[i][j] = NewQuestion(question.Text, question.Answers, question.Correct)
		}
	}
	return Quiz{Sets: sets}
}

// TopicEntry pairs a display name with a quiz.
type TopicEntry struct {
	Name       string
	Quiz       Quiz
	Provenance Provenance
	State      CommunityState
	RemoteURL  string // community entries only
}

// Loaded reports whether the entry's quiz can be used.
func (e TopicEntry) Loaded() bool {
	return e.State == StatePopulated
}

// ManifestEntry is one community topic reference.
type ManifestEntry struct {
	Name      string
	RemoteURL string
}
