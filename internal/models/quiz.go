// internal/models/quiz.go
package models

import "github.com/google/uuid"

// QuestionType distinguishes multiple-choice from numeric range questions.
type QuestionType string

const (
	QuestionTypeQCM QuestionType = "QCM" // one or more correct choices
	QuestionTypeQRE QuestionType = "QRE" // numeric answer within a tolerance
)

// Choice is a single QCM option.
type Choice struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

// RangeAnswer holds the expected value of a QRE question.
// Min and Max only bound what clients may send; correctness uses GoodAnswer +/- Tolerance.
type RangeAnswer struct {
	GoodAnswer float64 `json:"goodAnswer"`
	Tolerance  float64 `json:"tolerance"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
}

// Question is one immutable question of a quiz snapshot.
type Question struct {
	Type   QuestionType `json:"type"`
	Text   string       `json:"text"`
	Points float64      `json:"points"`

	// DurationSeconds overrides the configured question duration when > 0.
	DurationSeconds int `json:"durationSeconds,omitempty"`

	Choices []Choice     `json:"choices,omitempty"`
	Range   *RangeAnswer `json:"qre,omitempty"`
}

// Quiz is the snapshot handed to the engine when a session is created.
// The engine never mutates it.
type Quiz struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Questions   []Question `json:"questions"`
}

// CorrectChoices returns the isCorrect flags of a QCM question, index-aligned with Choices.
func (q Question) CorrectChoices() []bool {
	flags := make([]bool, len(q.Choices))
	for i, c := range q.Choices {
		flags[i] = c.IsCorrect
	}
	return flags
}
