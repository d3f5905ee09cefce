package models

// GameAction is a single recorded event of a session, pushed to the historian queue.
type GameAction struct {
	RoomCode    string                 `json:"room_code"`
	SessionID   string                 `json:"session_id"`
	ActionIndex int                    `json:"action_index"`
	Actor       string                 `json:"actor"`
	ActionType  string                 `json:"action_type"`
	Payload     map[string]interface{} `json:"action_payload,omitempty"`
	Timestamp   int64                  `json:"timestamp"`
}
