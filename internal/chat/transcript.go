package chat

import "time"

type Author string

const (
	AuthorUser      Author = "user"
	AuthorAssistant Author = "assistant"
)

const (
	WelcomeID      = "welcome"
	WelcomeContent = "안녕하세요! 저는 이 포트폴리오에 대해 도움을 드릴 AI 어시스턴트입니다. 경력이나 프로젝트에 대해 궁금한 점이 있으시면 언제든 물어보세요."

	// ApologyContent is shown when a turn fails on the transport.
	ApologyContent = "죄송합니다. 응답을 받는 중 오류가 발생했습니다. 잠시 후 다시 시도해주세요."
)

// Message is a single transcript entry.
type Message struct {
	ID             string    `json:"id"`
	Content        string    `json:"content"`
	Author         Author    `json:"author"`
	CreatedAt      time.Time `json:"created_at"`
	ConversationID string    `json:"conversation_id,omitempty"`
}

// HistoryEntry is the wire shape of one prior message sent with a request.
type HistoryEntry struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// Millisecond ISO-8601 in UTC, e.g. 2025-01-02T03:04:05.000Z.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Transcript is an insertion-ordered message log. Only the open assistant
// message may change after it is appended. Not safe for concurrent use;
// Session serializes access.
type Transcript struct {
	msgs []Message
	open int
}

func NewTranscript(now time.Time) *Transcript {
	return &Transcript{
		msgs: []Message{{
			ID:        WelcomeID,
			Content:   WelcomeContent,
			Author:    AuthorAssistant,
			CreatedAt: now,
		}},
		open: -1,
	}
}

func (t *Transcript) Len() int { return len(t.msgs) }

// Append adds a closed message. Any open assistant message is closed first.
func (t *Transcript) Append(m Message) {
	t.open = -1
	t.msgs = append(t.msgs, m)
}

// UpsertOpen creates the open assistant message on first use, otherwise
// replaces its content with the full accumulated text.
func (t *Transcript) UpsertOpen(id string, content string, at time.Time, conversationID string) Message {
	if t.open < 0 {
		t.msgs = append(t.msgs, Message{
			ID:             id,
			Content:        content,
			Author:         AuthorAssistant,
			CreatedAt:      at,
			ConversationID: conversationID,
		})
		t.open = len(t.msgs) - 1
		return t.msgs[t.open]
	}
	m := &t.msgs[t.open]
	m.Content = content
	if m.ConversationID == "" {
		m.ConversationID = conversationID
	}
	return *m
}

// CloseOpen freezes the open assistant message, if any.
func (t *Transcript) CloseOpen() { t.open = -1 }

func (t *Transcript) LastActivity() time.Time {
	return t.msgs[len(t.msgs)-1].CreatedAt
}

func (t *Transcript) HasOpen() bool { return t.open >= 0 }

// Messages returns a copy of the log.
func (t *Transcript) Messages() []Message {
	out := make([]Message, len(t.msgs))
	copy(out, t.msgs)
	return out
}

// History builds the request history, leaving out the seeded welcome entry.
func (t *Transcript) History() []HistoryEntry {
	out := make([]HistoryEntry, 0, len(t.msgs))
	for _, m := range t.msgs {
		if m.ID == WelcomeID {
			continue
		}
		out = append(out, HistoryEntry{
			Role:      string(m.Author),
			Content:   m.Content,
			Timestamp: m.CreatedAt.UTC().Format(timestampLayout),
		})
	}
	return out
}
