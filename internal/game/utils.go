// internal/game/utils.go
package game

import (
	crand "crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/sirupsen/logrus"
)

// RoomCodeChars are the characters room codes are drawn from. Digits keep codes easy to type on phones.
const RoomCodeChars = "0123456789"

// GenerateRoomCode returns a random room code of the given length.
func GenerateRoomCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid room code length %d", length)
	}
	max := big.NewInt(int64(len(RoomCodeChars)))
	code := make([]byte, length)
	for i := range code {
		n, err := crand.Int(crand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate room code: %w", err)
		}
		code[i] = RoomCodeChars[n.Int64()]
	}
	return string(code), nil
}

// EncodeEvent marshals a GameEvent into JSON bytes.
// Logs a warning and returns empty JSON "{}" on marshalling error.
func EncodeEvent(ev GameEvent) []byte {
	data, err := json.Marshal(ev)
	if err != nil {
		logrus.WithField("type", ev.Type).Warnf("failed to marshal game event: %v", err)
		return []byte("{}")
	}
	return data
}
