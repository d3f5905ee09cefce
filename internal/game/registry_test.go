package game

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRoomCode(t *testing.T) {
	code, err := GenerateRoomCode(4)
	require.NoError(t, err)
	assert.Len(t, code, 4)
	for _, r := range code {
		assert.Contains(t, RoomCodeChars, string(r))
	}

	_, err = GenerateRoomCode(0)
	assert.Error(t, err)
}

func TestCreateGameRetriesOnCollision(t *testing.T) {
	reg := NewRegistry(testSettings(clockwork.NewFakeClock()), Hooks{}, quietLogger())
	codes := []string{"1111", "1111", "1111", "2222"}
	reg.newCode = func(int) (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}

	first, err := reg.CreateGame(testQuiz(qcmQuestion(10, true)), newMockConn("a"), false)
	require.NoError(t, err)
	second, err := reg.CreateGame(testQuiz(qcmQuestion(10, true)), newMockConn("b"), false)
	require.NoError(t, err)

	assert.Equal(t, "1111", first)
	assert.Equal(t, "2222", second)
	assert.Empty(t, codes)
}

func TestCreateGameFailsWhenCodesExhausted(t *testing.T) {
	settings := testSettings(clockwork.NewFakeClock())
	settings.MaxCodeAttempts = 5
	reg := NewRegistry(settings, Hooks{}, quietLogger())
	calls := 0
	reg.newCode = func(int) (string, error) {
		calls++
		return "0000", nil
	}

	_, err := reg.CreateGame(testQuiz(qcmQuestion(10, true)), newMockConn("a"), false)
	require.NoError(t, err)
	calls = 0

	_, err = reg.CreateGame(testQuiz(qcmQuestion(10, true)), newMockConn("b"), false)
	assert.ErrorIs(t, err, ErrRoomCodesExhausted)
	assert.Equal(t, 5, calls, "retries are capped")
}

func TestCreateGamePropagatesGeneratorError(t *testing.T) {
	reg := NewRegistry(testSettings(clockwork.NewFakeClock()), Hooks{}, quietLogger())
	boom := errors.New("entropy gone")
	reg.newCode = func(int) (string, error) { return "", boom }

	_, err := reg.CreateGame(testQuiz(qcmQuestion(10, true)), newMockConn("a"), false)
	assert.ErrorIs(t, err, boom)
}

func TestCreateGameRejectsEmptyQuiz(t *testing.T) {
	reg := NewRegistry(testSettings(clockwork.NewFakeClock()), Hooks{}, quietLogger())
	_, err := reg.CreateGame(testQuiz(), newMockConn("a"), false)
	assert.ErrorIs(t, err, ErrEmptyQuiz)
	_, err = reg.CreateGame(nil, newMockConn("a"), false)
	assert.ErrorIs(t, err, ErrEmptyQuiz)
}

func TestCreateGameSnapshotsQuiz(t *testing.T) {
	reg := NewRegistry(testSettings(clockwork.NewFakeClock()), Hooks{}, quietLogger())
	quiz := testQuiz(qcmQuestion(10, true))
	code, err := reg.CreateGame(quiz, newMockConn("a"), false)
	require.NoError(t, err)

	quiz.Questions[0].Text = "edited after creation"
	s, _ := reg.GetSessionByRoomCode(code)
	assert.Equal(t, "pick", s.Quiz.Questions[0].Text)
	assert.Equal(t, PhaseLobby, s.Phase())
}

func TestJoinGameRejections(t *testing.T) {
	room := setupRoom(t, testSettings(clockwork.NewFakeClock()), Hooks{}, testQuiz(qcmQuestion(10, true)), 1, false)
	code := room.session.RoomCode

	cases := []struct {
		name string
		room string
		conn *mockConn
		want RejectReason
	}{
		{"unknown room", "9999x", newMockConn("n1"), RejectRoomNotFound},
		{"empty name", code, newMockConn("n2"), RejectNameInvalid},
		{"taken ignoring case and spaces", code, newMockConn("n3"), RejectNameTaken},
		{"reserved organizer name", code, newMockConn("n4"), RejectNameReserved},
		{"same connection twice", code, room.players[0], RejectAlreadyJoined},
		{"organizer connection", code, room.org, RejectAlreadyJoined},
	}
	names := []string{"x", "   ", "  P0 ", "Organisateur", "other", "boss"}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			admitted, reason := room.reg.JoinGame(tc.room, names[i], tc.conn)
			assert.False(t, admitted)
			assert.Equal(t, tc.want, reason)
			assert.NotEmpty(t, reason.Message())
		})
	}
	assert.Equal(t, 1, room.session.PlayerCount())
}

func TestRemoveSessionIsIdempotent(t *testing.T) {
	room := setupRoom(t, testSettings(clockwork.NewFakeClock()), Hooks{}, testQuiz(qcmQuestion(10, true)), 0, false)
	room.reg.RemoveSession(room.session)
	room.reg.RemoveSession(room.session)
	room.reg.RemoveSession(nil)

	_, ok := room.reg.GetSessionByRoomCode(room.session.RoomCode)
	assert.False(t, ok)
}

func TestEndGame(t *testing.T) {
	t.Run("without active timer", func(t *testing.T) {
		room := setupRoom(t, testSettings(clockwork.NewFakeClock()), Hooks{}, testQuiz(qcmQuestion(10, true)), 1, false)
		require.NoError(t, room.reg.EndGame(room.session.RoomCode))
		assert.True(t, room.session.IsClosed())
		_, ok := room.reg.GetSessionByRoomCode(room.session.RoomCode)
		assert.False(t, ok)
		assert.NotNil(t, room.players[0].last(EventSessionClosed))
	})

	t.Run("with running question", func(t *testing.T) {
		room := setupRoom(t, testSettings(clockwork.NewFakeClock()), Hooks{}, testQuiz(qcmQuestion(10, true)), 1, false)
		require.NoError(t, room.session.StartGame(room.org))
		cd := room.activeTimer()
		require.NotNil(t, cd)

		require.NoError(t, room.reg.EndGame(room.session.RoomCode))
		assert.True(t, cd.Done())
		room.clock.Advance(5 * time.Second)
		assert.Empty(t, room.players[0].ofType(EventTick))
	})

	t.Run("unknown room", func(t *testing.T) {
		reg := NewRegistry(testSettings(clockwork.NewFakeClock()), Hooks{}, quietLogger())
		assert.ErrorIs(t, reg.EndGame("0000"), ErrSessionNotFound)
	})
}

func TestReapDropsEndedAndIdleSessions(t *testing.T) {
	fc := clockwork.NewFakeClock()
	settings := testSettings(fc)
	settings.EndedRetention = time.Minute
	settings.IdleTTL = time.Hour
	reg := NewRegistry(settings, Hooks{}, quietLogger())

	org := newMockConn("org")
	endedCode, err := reg.CreateGame(testQuiz(qcmQuestion(10, true)), org, true)
	require.NoError(t, err)
	ended, _ := reg.GetSessionByRoomCode(endedCode)
	require.NoError(t, ended.StartGame(org))
	require.NoError(t, ended.SubmitAnswer(org, Answer{Choices: []bool{true}}))
	require.NoError(t, ended.NextQuestion(org))
	require.Equal(t, PhaseEnded, ended.Phase())

	idleCode, err := reg.CreateGame(testQuiz(qcmQuestion(10, true)), newMockConn("idle"), false)
	require.NoError(t, err)

	assert.Zero(t, reg.Reap(fc.Now()))

	fc.Advance(2 * time.Minute)
	assert.Equal(t, 1, reg.Reap(fc.Now()))
	_, ok := reg.GetSessionByRoomCode(endedCode)
	assert.False(t, ok)

	fc.Advance(time.Hour)
	assert.Equal(t, 1, reg.Reap(fc.Now()))
	_, ok = reg.GetSessionByRoomCode(idleCode)
	assert.False(t, ok)
}

func TestStatsCountsSessionsAndPlayers(t *testing.T) {
	room := setupRoom(t, testSettings(clockwork.NewFakeClock()), Hooks{}, testQuiz(qcmQuestion(10, true)), 3, false)
	_, err := room.reg.CreateGame(testQuiz(qcmQuestion(10, true)), newMockConn("other"), true)
	require.NoError(t, err)

	st := room.reg.Stats()
	assert.Equal(t, 2, st.Sessions)
	assert.Equal(t, 4, st.Players, "three players plus the test-mode organizer")
	assert.Equal(t, 2, st.ByPhase[PhaseLobby])
}

func TestConcurrentJoinsKeepNamesUnique(t *testing.T) {
	room := setupRoom(t, testSettings(clockwork.NewFakeClock()), Hooks{}, testQuiz(qcmQuestion(10, true)), 0, false)

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, _ := room.reg.JoinGame(room.session.RoomCode, "same", newMockConn(string(rune('a'+i))))
			if ok {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, admitted)
	assert.Equal(t, 1, room.session.PlayerCount())
}

func TestJoinReturnsAdmittingSession(t *testing.T) {
	room := setupRoom(t, testSettings(clockwork.NewFakeClock()), Hooks{}, testQuiz(qcmQuestion(10, true)), 0, false)

	sess, reason := room.reg.Join(room.session.RoomCode, "alice", newMockConn("alice"))
	require.Equal(t, RejectNone, reason)
	assert.Same(t, room.session, sess)

	room.reg.RemoveSession(room.session)
	sess, reason = room.reg.Join(room.session.RoomCode, "bob", newMockConn("bob"))
	assert.Nil(t, sess)
	assert.Equal(t, RejectRoomNotFound, reason)
}
