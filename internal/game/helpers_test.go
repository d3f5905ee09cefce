package game

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/samyarj/polyhoot/internal/models"
	"github.com/samyarj/polyhoot/internal/timer"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// mockConn collects events instead of sending them over WS.
type mockConn struct {
	id string

	mu          sync.Mutex
	events      []GameEvent
	closed      bool
	closeReason string
}

func newMockConn(id string) *mockConn {
	return &mockConn{id: id}
}

func (c *mockConn) ID() string { return c.id }

func (c *mockConn) Send(ev GameEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *mockConn) Close(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.closeReason = reason
}

func (c *mockConn) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

func (c *mockConn) ofType(t GameEventType) []GameEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []GameEvent
	for _, ev := range c.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (c *mockConn) last(t GameEventType) *GameEvent {
	evs := c.ofType(t)
	if len(evs) == 0 {
		return nil
	}
	return &evs[len(evs)-1]
}

func (c *mockConn) isClosed() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.closeReason
}

// mockRecorder hands recorded games to the test over a channel.
type mockRecorder struct {
	records chan models.GameRecord
}

func (m *mockRecorder) RecordGame(_ context.Context, rec models.GameRecord) error {
	m.records <- rec
	return nil
}

type mockActionLogger struct {
	mu      sync.Mutex
	actions []models.GameAction
}

func (m *mockActionLogger) LogAction(_ context.Context, a models.GameAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, a)
	return nil
}

func (m *mockActionLogger) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.actions))
	for _, a := range m.actions {
		out = append(out, a.ActionType)
	}
	return out
}

type mockSink struct {
	mu     sync.Mutex
	events []GameEvent
}

func (m *mockSink) Publish(_ string, ev GameEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *mockSink) count(t GameEventType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, ev := range m.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func qcmQuestion(points float64, correct ...bool) models.Question {
	q := models.Question{Type: models.QuestionTypeQCM, Text: "pick", Points: points}
	for i, c := range correct {
		q.Choices = append(q.Choices, models.Choice{Text: fmt.Sprintf("choice %d", i), IsCorrect: c})
	}
	return q
}

func qreQuestion(points, good, tol, min, max float64) models.Question {
	return models.Question{
		Type:   models.QuestionTypeQRE,
		Text:   "guess",
		Points: points,
		Range:  &models.RangeAnswer{GoodAnswer: good, Tolerance: tol, Min: min, Max: max},
	}
}

func testQuiz(questions ...models.Question) *models.Quiz {
	return &models.Quiz{ID: uuid.New(), Title: "test quiz", Questions: questions}
}

// testSettings uses a fake clock and skips the start countdown so most tests
// land directly on question 0.
func testSettings(fc *clockwork.FakeClock) Settings {
	s := DefaultSettings()
	s.Clock = fc
	s.StartCountdownSeconds = 0
	s.BetweenQuestionsSeconds = 0
	s.QuestionDurationSeconds = 20
	return s
}

type testRoom struct {
	reg     *Registry
	session *GameSession
	org     *mockConn
	players []*mockConn
	clock   *clockwork.FakeClock
}

// setupRoom creates a game and joins numPlayers players named p0..pN.
func setupRoom(t *testing.T, settings Settings, hooks Hooks, quiz *models.Quiz, numPlayers int, testMode bool) *testRoom {
	t.Helper()
	fc, ok := settings.Clock.(*clockwork.FakeClock)
	require.True(t, ok, "tests need a fake clock")

	reg := NewRegistry(settings, hooks, quietLogger())
	org := newMockConn("organizer")
	code, err := reg.CreateGame(quiz, org, testMode)
	require.NoError(t, err)
	s, ok := reg.GetSessionByRoomCode(code)
	require.True(t, ok)

	room := &testRoom{reg: reg, session: s, org: org, clock: fc}
	for i := 0; i < numPlayers; i++ {
		c := newMockConn(fmt.Sprintf("conn-%d", i))
		admitted, reason := reg.JoinGame(code, fmt.Sprintf("p%d", i), c)
		require.True(t, admitted, "join rejected: %s", reason)
		room.players = append(room.players, c)
	}
	return room
}

func (r *testRoom) activeTimer() *timer.Countdown {
	r.session.mu.Lock()
	defer r.session.mu.Unlock()
	return r.session.timer
}

// tick advances the fake clock by one interval and waits for the active
// countdown to consume it. Fake tickers drop ticks that are not consumed.
func (r *testRoom) tick(t *testing.T, d time.Duration) {
	t.Helper()
	cd := r.activeTimer()
	require.NotNil(t, cd, "no countdown running")
	before := cd.Remaining()
	r.clock.Advance(d)
	require.Eventually(t, func() bool {
		return cd.Done() || cd.Remaining() < before
	}, time.Second, time.Millisecond)
}

// ticks calls tick n times.
func (r *testRoom) ticks(t *testing.T, n int, d time.Duration) {
	t.Helper()
	for i := 0; i < n; i++ {
		r.tick(t, d)
	}
}

func (r *testRoom) waitPhase(t *testing.T, want Phase) {
	t.Helper()
	require.Eventually(t, func() bool { return r.session.Phase() == want }, time.Second, time.Millisecond,
		"phase never reached %s (at %s)", want, r.session.Phase())
}

func floatPtr(v float64) *float64 { return &v }
