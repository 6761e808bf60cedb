package chat

import "time"

type TurnOutcome string

const (
	TurnCompleted TurnOutcome = "completed"
	TurnFailed    TurnOutcome = "failed"
)

// Turn summarises one finished exchange.
type Turn struct {
	SessionID      string      `json:"session_id"`
	ProfileID      string      `json:"profile_id"`
	ConversationID string      `json:"conversation_id,omitempty"`
	Input          string      `json:"input"`
	Reply          string      `json:"reply"`
	Outcome        TurnOutcome `json:"outcome"`
	// Error is filled when Outcome is TurnFailed.
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
