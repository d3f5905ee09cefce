package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/samyarj/polyhoot/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestHeartbeat(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, _ := get(t, env.srv.URL+"/ping")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGameInfo(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := get(t, env.srv.URL+"/games/0000")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"exists":false,"reason":"room_not_found"}`, string(body))

	org := env.dial(t)
	created := createGame(t, org)

	resp, body = get(t, env.srv.URL+"/games/"+created.RoomCode)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got struct {
		Exists   bool             `json:"exists"`
		Joinable bool             `json:"joinable"`
		Game     game.SessionInfo `json:"game"`
	}
	require.NoError(t, json.Unmarshal(body, &got))
	assert.True(t, got.Exists)
	assert.True(t, got.Joinable)
	assert.Equal(t, "capitals", got.Game.QuizTitle)
	assert.Equal(t, game.PhaseLobby, got.Game.Phase)

	send(t, org, map[string]interface{}{"type": "organizer_control", "action": "toggle_lock"})
	expect(t, org, game.EventLockStateChanged)
	_, body = get(t, env.srv.URL+"/games/"+created.RoomCode)
	require.NoError(t, json.Unmarshal(body, &got))
	assert.False(t, got.Joinable)
	assert.True(t, got.Game.Locked)
}

func TestGameQR(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, _ := get(t, env.srv.URL+"/games/0000/qr")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	org := env.dial(t)
	created := createGame(t, org)
	resp, body := get(t, env.srv.URL+"/games/"+created.RoomCode+"/qr")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(body, []byte("\x89PNG")))
}

func TestStats(t *testing.T) {
	env := newTestEnv(t, nil)
	org := env.dial(t)
	created := createGame(t, org)
	joinGame(t, env.dial(t), created.RoomCode, "alice")

	resp, body := get(t, env.srv.URL+"/stats")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats game.Stats
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Equal(t, 1, stats.Sessions)
	assert.Equal(t, 1, stats.Players)
	assert.Equal(t, 1, stats.ByPhase[game.PhaseLobby])
}

func TestRejectionReason(t *testing.T) {
	assert.Equal(t, "question_locked", rejectionReason(game.ErrQuestionLocked))
	assert.Equal(t, "bad_request", rejectionReason(io.EOF))
}

func TestOriginPatterns(t *testing.T) {
	assert.Equal(t, []string{"*", "quiz.example.com", "localhost:*"},
		originPatterns([]string{"*", "https://quiz.example.com", " http://localhost:* ", ""}))
}
