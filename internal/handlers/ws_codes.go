// internal/handlers/ws_codes.go
package handlers

import "github.com/coder/websocket"

// Custom WebSocket close codes used by the game handler.
const (
	BadSubprotocolError = 3000 // Client connected with an unsupported subprotocol.
	BannedError         = 3001 // The organizer banned this player.
	SlowConsumerError   = 3002 // The client stopped reading and its outbound buffer overflowed.
)

// closeStatusFor maps a connection close reason to a close code.
func closeStatusFor(reason string) websocket.StatusCode {
	switch reason {
	case "banned":
		return BannedError
	case "slow_consumer":
		return SlowConsumerError
	default:
		return websocket.StatusNormalClosure
	}
}
