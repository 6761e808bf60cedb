package archive

import (
	"time"

	"github.com/suPer8Hu/portfolio-platform/internal/chat"
)

// TurnRecord is a finished chat turn as stored in the database.
type TurnRecord struct {
	ID string `gorm:"primaryKey;size:26" json:"id"` // ULID

	SessionID      string `gorm:"type:varchar(26);index;not null" json:"session_id"`
	ProfileID      string `gorm:"type:varchar(64);index" json:"profile_id"`
	ConversationID string `gorm:"type:varchar(128);index" json:"conversation_id"`

	Input   string           `gorm:"type:text;not null" json:"input"`
	Reply   string           `gorm:"type:text" json:"reply"`
	Outcome chat.TurnOutcome `gorm:"type:varchar(16);index;not null" json:"outcome"`
	Error   *string          `gorm:"type:text" json:"error,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	CreatedAt  time.Time `json:"created_at"`
}

func (TurnRecord) TableName() string { return "chat_turns" }

// Message is the queue payload published for every finished turn.
type Message struct {
	ID   string    `json:"id"`
	Turn chat.Turn `json:"turn"`
}

func RecordFromMessage(m Message) TurnRecord {
	r := TurnRecord{
		ID:             m.ID,
		SessionID:      m.Turn.SessionID,
		ProfileID:      m.Turn.ProfileID,
		ConversationID: m.Turn.ConversationID,
		Input:          m.Turn.Input,
		Reply:          m.Turn.Reply,
		Outcome:        m.Turn.Outcome,
		StartedAt:      m.Turn.StartedAt,
		FinishedAt:     m.Turn.FinishedAt,
	}
	if m.Turn.Error != "" {
		e := m.Turn.Error
		r.Error = &e
	}
	return r
}
