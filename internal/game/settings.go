// internal/game/settings.go
package game

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/samyarj/polyhoot/internal/timer"
)

// OrganizerPolicy decides what happens to a session whose organizer connection drops.
type OrganizerPolicy string

const (
	// OrganizerPolicyEnd tears the session down immediately.
	OrganizerPolicyEnd OrganizerPolicy = "end"
	// OrganizerPolicyGrace keeps the session alive for a grace period waiting for a reconnect.
	OrganizerPolicyGrace OrganizerPolicy = "grace"
)

// ReservedNames cannot be used by players; they identify the organizer in results.
var ReservedNames = []string{"organizer", "organisateur"}

// Settings are the tunables a session is created with. They are copied into
// each session and never change afterwards.
type Settings struct {
	QuestionDurationSeconds int
	StartCountdownSeconds   int
	BetweenQuestionsSeconds int
	AlertThresholdSeconds   int
	BonusMultiplier         float64

	TickInterval      time.Duration
	AlertTickInterval time.Duration

	OrganizerPolicy OrganizerPolicy
	OrganizerGrace  time.Duration

	// EarlyClose closes a question as soon as every eligible player has submitted.
	EarlyClose bool

	RoomCodeLength  int
	MaxCodeAttempts int

	// EndedRetention is how long an ended session stays reachable for late result fetches.
	EndedRetention time.Duration
	// IdleTTL removes sessions that sat in the lobby without anyone for too long.
	IdleTTL time.Duration

	Clock clockwork.Clock
}

// DefaultSettings returns the stock configuration.
func DefaultSettings() Settings {
	return Settings{
		QuestionDurationSeconds: 20,
		StartCountdownSeconds:   5,
		BetweenQuestionsSeconds: 3,
		AlertThresholdSeconds:   10,
		BonusMultiplier:         DefaultBonusMultiplier,
		TickInterval:            timer.DefaultInterval,
		AlertTickInterval:       timer.DefaultAlertInterval,
		OrganizerPolicy:         OrganizerPolicyEnd,
		OrganizerGrace:          30 * time.Second,
		EarlyClose:              true,
		RoomCodeLength:          4,
		MaxCodeAttempts:         100,
		EndedRetention:          10 * time.Minute,
		IdleTTL:                 time.Hour,
		Clock:                   clockwork.NewRealClock(),
	}
}

// withDefaults fills zero fields so a partially built Settings stays usable.
func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.QuestionDurationSeconds <= 0 {
		s.QuestionDurationSeconds = d.QuestionDurationSeconds
	}
	if s.StartCountdownSeconds < 0 {
		s.StartCountdownSeconds = 0
	}
	if s.BetweenQuestionsSeconds < 0 {
		s.BetweenQuestionsSeconds = 0
	}
	if s.AlertThresholdSeconds < 0 {
		s.AlertThresholdSeconds = 0
	}
	if s.BonusMultiplier <= 0 {
		s.BonusMultiplier = d.BonusMultiplier
	}
	if s.TickInterval <= 0 {
		s.TickInterval = d.TickInterval
	}
	if s.AlertTickInterval <= 0 {
		s.AlertTickInterval = d.AlertTickInterval
	}
	if s.OrganizerPolicy == "" {
		s.OrganizerPolicy = d.OrganizerPolicy
	}
	if s.OrganizerGrace <= 0 {
		s.OrganizerGrace = d.OrganizerGrace
	}
	if s.RoomCodeLength <= 0 {
		s.RoomCodeLength = d.RoomCodeLength
	}
	if s.MaxCodeAttempts <= 0 {
		s.MaxCodeAttempts = d.MaxCodeAttempts
	}
	if s.EndedRetention <= 0 {
		s.EndedRetention = d.EndedRetention
	}
	if s.IdleTTL <= 0 {
		s.IdleTTL = d.IdleTTL
	}
	if s.Clock == nil {
		s.Clock = d.Clock
	}
	return s
}
