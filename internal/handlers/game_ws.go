// internal/handlers/game_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/samyarj/polyhoot/internal/game"
	"github.com/samyarj/polyhoot/internal/middleware"
	"github.com/samyarj/polyhoot/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	subprotocol     = "polyhoot"
	outboundBufSize = 64
	writeTimeout    = 5 * time.Second
)

// ClientMessage is the envelope of every inbound websocket message. Only the
// fields relevant to Type are read.
type ClientMessage struct {
	Type string `json:"type"`

	// create_game
	Quiz     *models.Quiz `json:"quiz,omitempty"`
	QuizID   string       `json:"quizId,omitempty"`
	TestMode bool         `json:"testMode,omitempty"`

	// join_game, reconnect_organizer
	RoomCode string `json:"roomCode,omitempty"`
	Name     string `json:"name,omitempty"`
	Token    string `json:"token,omitempty"`

	// select_choice, set_numeric_answer, submit_answer
	Index   *int     `json:"index,omitempty"`
	Value   *float64 `json:"value,omitempty"`
	Choices []bool   `json:"choices,omitempty"`

	// organizer_control
	Action string `json:"action,omitempty"`
	Target string `json:"target,omitempty"`
}

// wsConn is one websocket client. It implements game.Conn: Send only queues,
// the write pump does the network I/O.
type wsConn struct {
	id  string
	out chan game.GameEvent
	log *logrus.Entry

	done      chan struct{}
	closeOnce sync.Once
	reason    string

	// session is the game this client created or joined. Only the read loop touches it.
	session *game.GameSession
}

func newWSConn(logger *logrus.Logger, remote string) *wsConn {
	id := uuid.NewString()
	return &wsConn{
		id:   id,
		out:  make(chan game.GameEvent, outboundBufSize),
		done: make(chan struct{}),
		log:  logger.WithFields(logrus.Fields{"conn": id, "remote": remote}),
	}
}

func (c *wsConn) ID() string { return c.id }

// Send queues ev without blocking. A client that stops reading is dropped.
func (c *wsConn) Send(ev game.GameEvent) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.out <- ev:
	default:
		c.log.Warnf("outbound buffer full, dropped %s", ev.Type)
		if ev.Type != game.EventTick {
			c.Close("slow_consumer")
		}
	}
}

// Close flushes queued events and closes the socket with reason.
func (c *wsConn) Close(reason string) {
	c.closeOnce.Do(func() {
		c.reason = reason
		close(c.done)
	})
}

// GameWSHandler upgrades the request and serves one client until it disconnects.
func (gs *GameServer) GameWSHandler(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{subprotocol},
		OriginPatterns: originPatterns(gs.AllowedOrigins),
	})
	if err != nil {
		gs.Logger.Warnf("websocket accept error: %v", err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "handler finished")

	if c.Subprotocol() != subprotocol {
		c.Close(BadSubprotocolError, "client must speak the polyhoot subprotocol")
		return
	}

	conn := newWSConn(gs.Logger, r.RemoteAddr)
	middleware.LogWebSocketConnect(gs.Logger, r.RemoteAddr, conn.id)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		writePump(ctx, c, conn)
	}()

	readErr := gs.readGameMessages(ctx, c, conn)

	if conn.session != nil {
		conn.session.Disconnect(conn)
	}
	conn.Close("disconnected")
	<-pumpDone
	middleware.LogWebSocketDisconnect(gs.Logger, r.RemoteAddr, conn.id, readErr)
}

// writePump delivers queued events in order. Once the connection is closed it
// flushes what is left and sends the close frame.
func writePump(ctx context.Context, c *websocket.Conn, conn *wsConn) {
	write := func(ev game.GameEvent) bool {
		writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()
		if err := c.Write(writeCtx, websocket.MessageText, game.EncodeEvent(ev)); err != nil {
			conn.log.Debugf("write %s: %v", ev.Type, err)
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-conn.out:
			if !write(ev) {
				return
			}
		case <-conn.done:
			for {
				select {
				case ev := <-conn.out:
					if !write(ev) {
						return
					}
				default:
					c.Close(closeStatusFor(conn.reason), conn.reason)
					return
				}
			}
		}
	}
}

// readGameMessages reads client messages until the socket fails. The returned
// error is nil for a normal closure.
func (gs *GameServer) readGameMessages(ctx context.Context, c *websocket.Conn, conn *wsConn) error {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if msgType != websocket.MessageText {
			conn.log.Warnf("received non-text message type %d, ignoring", msgType)
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			conn.log.Warnf("invalid json: %v", err)
			conn.Send(game.GameEvent{Type: game.EventError, Reason: "invalid_json"})
			continue
		}
		gs.handleGameMessage(ctx, conn, msg)
	}
}

// handleGameMessage routes one client message to the engine.
func (gs *GameServer) handleGameMessage(ctx context.Context, conn *wsConn, msg ClientMessage) {
	switch msg.Type {
	case "ping":
		conn.Send(game.GameEvent{Type: game.EventPong})
		return
	case "create_game", "join_game", "reconnect_organizer":
		if conn.session != nil && !conn.session.IsClosed() {
			conn.Send(game.GameEvent{Type: game.EventActionRejected, Reason: "already_in_session", RoomCode: conn.session.RoomCode})
			return
		}
		conn.session = nil
		switch msg.Type {
		case "create_game":
			gs.createGame(ctx, conn, msg)
		case "join_game":
			gs.joinGame(conn, msg)
		default:
			gs.reconnectOrganizer(conn, msg)
		}
		return
	}

	sess := conn.session
	if sess == nil {
		t := game.EventActionRejected
		if isAnswerMessage(msg.Type) {
			t = game.EventSubmissionRejected
		}
		conn.Send(rejection(t, game.ErrNotInSession))
		return
	}

	switch msg.Type {
	case "select_choice":
		if msg.Index == nil {
			conn.Send(rejection(game.EventSubmissionRejected, game.ErrMalformedAnswer))
			return
		}
		if err := sess.SelectChoice(conn, *msg.Index); err != nil {
			conn.Send(rejection(game.EventSubmissionRejected, err))
		}
	case "set_numeric_answer":
		if msg.Value == nil {
			conn.Send(rejection(game.EventSubmissionRejected, game.ErrMalformedAnswer))
			return
		}
		if err := sess.SetNumericAnswer(conn, *msg.Value); err != nil {
			conn.Send(rejection(game.EventSubmissionRejected, err))
		}
	case "submit_answer":
		if err := sess.SubmitAnswer(conn, game.Answer{Choices: msg.Choices, Value: msg.Value}); err != nil {
			conn.Send(rejection(game.EventSubmissionRejected, err))
		}
	case "organizer_control":
		gs.organizerControl(conn, sess, msg)
	case "leave_game":
		sess.Leave(conn)
		conn.session = nil
	default:
		conn.log.Warnf("unknown message type %q", msg.Type)
		conn.Send(game.GameEvent{Type: game.EventError, Reason: "unknown_message_type"})
	}
}

func isAnswerMessage(t string) bool {
	switch t {
	case "select_choice", "set_numeric_answer", "submit_answer":
		return true
	}
	return false
}

func (gs *GameServer) joinGame(conn *wsConn, msg ClientMessage) {
	code := strings.TrimSpace(msg.RoomCode)
	sess, reason := gs.Registry.Join(code, msg.Name, conn)
	if sess == nil {
		conn.log.WithFields(logrus.Fields{"room": code, "reason": reason}).Info("join rejected")
		conn.Send(game.RejectedJoinEvent(code, reason))
		return
	}
	conn.session = sess
}

func (gs *GameServer) organizerControl(conn *wsConn, sess *game.GameSession, msg ClientMessage) {
	action := game.ControlAction(msg.Action)
	if action == game.ActionEnd {
		if !sess.IsOrganizer(conn) {
			conn.Send(rejection(game.EventActionRejected, game.ErrNotOrganizer))
			return
		}
		if cur, ok := gs.Registry.GetSessionByRoomCode(sess.RoomCode); !ok || cur != sess {
			conn.Send(rejection(game.EventActionRejected, game.ErrSessionNotFound))
			return
		}
		if err := gs.Registry.EndGame(sess.RoomCode); err != nil {
			conn.Send(rejection(game.EventActionRejected, err))
		}
		return
	}
	if err := sess.Control(conn, action, msg.Target); err != nil {
		conn.log.WithField("action", action).Debugf("control rejected: %v", err)
		conn.Send(rejection(game.EventActionRejected, err))
	}
}
