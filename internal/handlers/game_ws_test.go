package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/samyarj/polyhoot/internal/auth"
	"github.com/samyarj/polyhoot/internal/game"
	"github.com/samyarj/polyhoot/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	gs  *GameServer
	srv *httptest.Server
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newTestEnv(t *testing.T, mutate func(*game.Settings)) *testEnv {
	t.Helper()
	settings := game.DefaultSettings()
	settings.Clock = clockwork.NewFakeClock()
	settings.StartCountdownSeconds = 0
	settings.BetweenQuestionsSeconds = 0
	if mutate != nil {
		mutate(&settings)
	}
	logger := quietLogger()
	tokens, err := auth.NewTokenIssuer(time.Hour)
	require.NoError(t, err)

	gs := NewGameServer(game.NewRegistry(settings, game.Hooks{}, logger), tokens, logger)
	gs.PublicURL = "http://quiz.test"
	srv := httptest.NewServer(NewRouter(gs))
	t.Cleanup(srv.Close)
	return &testEnv{gs: gs, srv: srv}
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws"
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{Subprotocols: []string{"polyhoot"}})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close(websocket.StatusNormalClosure, "") })
	return c
}

func send(t *testing.T, c *websocket.Conn, msg map[string]interface{}) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Write(ctx, websocket.MessageText, data))
}

// expect reads events until one of type typ arrives.
func expect(t *testing.T, c *websocket.Conn, typ game.GameEventType) game.GameEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		_, data, err := c.Read(ctx)
		require.NoError(t, err, "waiting for %s", typ)
		var ev game.GameEvent
		require.NoError(t, json.Unmarshal(data, &ev))
		if ev.Type == typ {
			return ev
		}
	}
}

func oneQuestionQuiz() map[string]interface{} {
	return map[string]interface{}{
		"title": "capitals",
		"questions": []interface{}{
			map[string]interface{}{
				"type":   "QCM",
				"text":   "Capital of France?",
				"points": 10,
				"choices": []interface{}{
					map[string]interface{}{"text": "Paris", "isCorrect": true},
					map[string]interface{}{"text": "Lyon", "isCorrect": false},
				},
			},
		},
	}
}

func createGame(t *testing.T, c *websocket.Conn) game.GameEvent {
	t.Helper()
	send(t, c, map[string]interface{}{"type": "create_game", "quiz": oneQuestionQuiz()})
	ev := expect(t, c, game.EventGameCreated)
	require.Len(t, ev.RoomCode, 4)
	return ev
}

func joinGame(t *testing.T, c *websocket.Conn, code, name string) {
	t.Helper()
	send(t, c, map[string]interface{}{"type": "join_game", "roomCode": code, "name": name})
	expect(t, c, game.EventJoinAccepted)
}

func TestFullRoundOverWebsocket(t *testing.T) {
	env := newTestEnv(t, nil)
	org := env.dial(t)
	created := createGame(t, org)
	assert.NotEmpty(t, created.Payload["token"])
	assert.Equal(t, "http://quiz.test/join/"+created.RoomCode, created.Payload["joinUrl"])

	player := env.dial(t)
	joinGame(t, player, created.RoomCode, "alice")
	roster := expect(t, org, game.EventRosterChanged)
	require.Len(t, roster.Roster, 1)
	assert.Equal(t, "alice", roster.Roster[0].Name)

	send(t, org, map[string]interface{}{"type": "organizer_control", "action": "start"})
	opened := expect(t, player, game.EventPhaseChanged)
	assert.Equal(t, game.PhaseQuestionOpen, opened.Phase)
	require.NotNil(t, opened.Question)
	assert.Equal(t, []string{"Paris", "Lyon"}, opened.Question.Choices)

	send(t, player, map[string]interface{}{"type": "submit_answer", "choices": []bool{true, false}})
	expect(t, player, game.EventSubmissionAccepted)

	final := expect(t, player, game.EventAnswerFinalized)
	require.Len(t, final.Deltas, 1)
	assert.Equal(t, 12.0, final.Deltas[0].Delta)
	assert.True(t, final.Deltas[0].Bonus)

	send(t, org, map[string]interface{}{"type": "organizer_control", "action": "next_question"})
	ended := expect(t, player, game.EventGameEnded)
	require.Len(t, ended.Standings, 1)
	assert.Equal(t, 1, ended.Standings[0].Rank)
}

func TestJoinUnknownRoom(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.dial(t)
	send(t, c, map[string]interface{}{"type": "join_game", "roomCode": "0000", "name": "bob"})
	ev := expect(t, c, game.EventJoinRejected)
	assert.Equal(t, string(game.RejectRoomNotFound), ev.Reason)
}

func TestPingPong(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.dial(t)
	send(t, c, map[string]interface{}{"type": "ping"})
	expect(t, c, game.EventPong)
}

func TestPlayerCannotControl(t *testing.T) {
	env := newTestEnv(t, nil)
	org := env.dial(t)
	created := createGame(t, org)

	player := env.dial(t)
	joinGame(t, player, created.RoomCode, "alice")
	send(t, player, map[string]interface{}{"type": "organizer_control", "action": "start"})
	ev := expect(t, player, game.EventActionRejected)
	assert.Equal(t, "not_organizer", ev.Reason)

	send(t, player, map[string]interface{}{"type": "organizer_control", "action": "end"})
	ev = expect(t, player, game.EventActionRejected)
	assert.Equal(t, "not_organizer", ev.Reason)
}

func TestAnswerWithoutSession(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.dial(t)
	send(t, c, map[string]interface{}{"type": "submit_answer", "choices": []bool{true}})
	ev := expect(t, c, game.EventSubmissionRejected)
	assert.Equal(t, "not_in_session", ev.Reason)
}

func TestCreateGameRequiresQuiz(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.dial(t)
	send(t, c, map[string]interface{}{"type": "create_game"})
	ev := expect(t, c, game.EventError)
	assert.Equal(t, "quiz_required", ev.Reason)

	send(t, c, map[string]interface{}{"type": "create_game", "quiz": map[string]interface{}{"title": "empty"}})
	ev = expect(t, c, game.EventError)
	assert.Equal(t, "empty_quiz", ev.Reason)
}

type staticQuizzes map[uuid.UUID]*models.Quiz

func (s staticQuizzes) GetQuiz(_ context.Context, id uuid.UUID) (*models.Quiz, error) {
	q, ok := s[id]
	if !ok {
		return nil, errors.New("quiz not found")
	}
	return q, nil
}

func TestCreateGameFromStoredQuiz(t *testing.T) {
	env := newTestEnv(t, nil)
	id := uuid.New()
	env.gs.Quizzes = staticQuizzes{id: {
		ID:    id,
		Title: "stored",
		Questions: []models.Question{{
			Type:   models.QuestionTypeQRE,
			Text:   "Year?",
			Points: 20,
			Range:  &models.RangeAnswer{GoodAnswer: 1789, Tolerance: 1, Min: 1700, Max: 1900},
		}},
	}}

	c := env.dial(t)
	send(t, c, map[string]interface{}{"type": "create_game", "quizId": id.String(), "testMode": true})
	ev := expect(t, c, game.EventGameCreated)
	assert.Equal(t, "stored", ev.Payload["quizTitle"])
	assert.Equal(t, true, ev.Payload["testMode"])

	sess, ok := env.gs.Registry.GetSessionByRoomCode(ev.RoomCode)
	require.True(t, ok)
	assert.True(t, sess.TestMode)

	guest := env.dial(t)
	send(t, guest, map[string]interface{}{"type": "join_game", "roomCode": ev.RoomCode, "name": "alice"})
	rejected := expect(t, guest, game.EventJoinRejected)
	assert.Equal(t, string(game.RejectTestSession), rejected.Reason)

	other := env.dial(t)
	send(t, other, map[string]interface{}{"type": "create_game", "quizId": uuid.NewString()})
	expect(t, other, game.EventError)
}

func TestBanClosesPlayerConnection(t *testing.T) {
	env := newTestEnv(t, nil)
	org := env.dial(t)
	created := createGame(t, org)

	player := env.dial(t)
	joinGame(t, player, created.RoomCode, "mallory")

	send(t, org, map[string]interface{}{"type": "organizer_control", "action": "ban", "target": "mallory"})
	expect(t, player, game.EventBanned)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		_, _, err := player.Read(ctx)
		if err != nil {
			assert.Equal(t, websocket.StatusCode(BannedError), websocket.CloseStatus(err))
			break
		}
	}

	again := env.dial(t)
	send(t, again, map[string]interface{}{"type": "join_game", "roomCode": created.RoomCode, "name": "Mallory"})
	ev := expect(t, again, game.EventJoinRejected)
	assert.Equal(t, string(game.RejectNameBanned), ev.Reason)
}

func TestOrganizerReconnectWithToken(t *testing.T) {
	env := newTestEnv(t, func(s *game.Settings) {
		s.OrganizerPolicy = game.OrganizerPolicyGrace
		s.OrganizerGrace = time.Minute
	})
	org := env.dial(t)
	created := createGame(t, org)
	token, _ := created.Payload["token"].(string)
	require.NotEmpty(t, token)

	player := env.dial(t)
	joinGame(t, player, created.RoomCode, "alice")

	org.Close(websocket.StatusNormalClosure, "")
	expect(t, player, game.EventOrganizerDisconnected)

	intruder := env.dial(t)
	send(t, intruder, map[string]interface{}{"type": "reconnect_organizer", "roomCode": created.RoomCode, "token": "not-a-token"})
	ev := expect(t, intruder, game.EventActionRejected)
	assert.Equal(t, "invalid_token", ev.Reason)

	back := env.dial(t)
	send(t, back, map[string]interface{}{"type": "reconnect_organizer", "roomCode": created.RoomCode, "token": token})
	sync := expect(t, back, game.EventSyncState)
	assert.Equal(t, game.PhaseLobby, sync.Phase)
	expect(t, player, game.EventOrganizerReconnected)

	send(t, back, map[string]interface{}{"type": "organizer_control", "action": "end"})
	closed := expect(t, player, game.EventSessionClosed)
	assert.Equal(t, "ended_by_organizer", closed.Reason)
	_, ok := env.gs.Registry.GetSessionByRoomCode(created.RoomCode)
	assert.False(t, ok)
}

func TestBadSubprotocolIsRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws"
	c, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer c.CloseNow()

	_, _, err = c.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusCode(BadSubprotocolError), websocket.CloseStatus(err))
}
