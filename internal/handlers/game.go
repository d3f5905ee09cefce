// internal/handlers/game.go
package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/samyarj/polyhoot/internal/game"
	"github.com/skip2/go-qrcode"
)

const qrSize = 256

// StatsHandler reports registry counters.
func (gs *GameServer) StatsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, gs.Registry.Stats())
}

// GameInfoHandler lets clients validate a room code before opening a websocket.
func (gs *GameServer) GameInfoHandler(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	sess, ok := gs.Registry.GetSessionByRoomCode(code)
	if !ok || sess.IsClosed() {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"exists": false,
			"reason": game.RejectRoomNotFound,
		})
		return
	}
	info := sess.Info()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"exists":   true,
		"joinable": !info.Locked && !info.TestMode && info.Phase != game.PhaseEnded,
		"game":     info,
	})
}

// GameQRHandler renders the join link of a room as a PNG QR code.
func (gs *GameServer) GameQRHandler(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if _, ok := gs.Registry.GetSessionByRoomCode(code); !ok {
		http.Error(w, "game not found", http.StatusNotFound)
		return
	}
	size := qrSize
	if s := r.URL.Query().Get("size"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 64 && n <= 1024 {
			size = n
		}
	}
	png, err := qrcode.Encode(gs.JoinURL(code), qrcode.Medium, size)
	if err != nil {
		gs.Logger.Errorf("qr encode for room %s: %v", code, err)
		http.Error(w, "failed to render qr code", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}
