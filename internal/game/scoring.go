// internal/game/scoring.go
package game

import "github.com/samyarj/polyhoot/internal/models"

// DefaultBonusMultiplier scales the award of the first correct responder.
const DefaultBonusMultiplier = 1.2

// VerifyAnswerCorrect reports whether the stored answer of p is correct for q.
// It only reads p and q.
func VerifyAnswerCorrect(p *Player, q models.Question) bool {
	switch q.Type {
	case models.QuestionTypeQCM:
		for i, c := range q.Choices {
			selected := i < len(p.CurrentChoices) && p.CurrentChoices[i]
			if selected != c.IsCorrect {
				return false
			}
		}
		return true
	case models.QuestionTypeQRE:
		if p.NumericAnswer == nil || q.Range == nil {
			return false
		}
		v := *p.NumericAnswer
		return v >= q.Range.GoodAnswer-q.Range.Tolerance && v <= q.Range.GoodAnswer+q.Range.Tolerance
	default:
		return false
	}
}

// UpdatePlayerPoints credits p for q and returns the awarded delta.
// A correct first responder gets points*bonus, any other correct player gets
// points, and an incorrect answer leaves the total unchanged.
func UpdatePlayerPoints(p *Player, q models.Question, bonus float64) float64 {
	if !VerifyAnswerCorrect(p, q) {
		return 0
	}
	delta := q.Points
	if p.IsFirstCorrectResponder {
		delta = q.Points * bonus
	}
	if delta < 0 {
		delta = 0
	}
	p.Points += delta
	return delta
}
