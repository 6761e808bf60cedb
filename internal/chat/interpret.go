package chat

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Status is the transient progress indicator of a session.
type Status string

const (
	StatusIdle           Status = "idle"
	StatusWaiting        Status = "waiting"
	StatusToolCalling    Status = "tool_calling"
	StatusToolResult     Status = "tool_result"
	StatusGeneratingText Status = "generating_text"
)

type ChunkType string

const (
	ChunkToolCalling ChunkType = "tool_calling"
	ChunkToolResult  ChunkType = "tool_result"
	ChunkAIResponse  ChunkType = "ai_response"
)

// DoneSentinel terminates a stream. It is sent as a bare payload, not JSON.
const DoneSentinel = "[DONE]"

// StreamChunk is the JSON body of one payload.
type StreamChunk struct {
	Content        string          `json:"content"`
	ConversationID string          `json:"conversation_id"`
	IsFinal        bool            `json:"is_final"`
	ChunkType      ChunkType       `json:"chunk_type,omitempty"`
	Metadata       json.RawMessage `json:"metadata"`
}

// Label prefixes the backend may put in front of answer text, longest first.
var answerLabels = []string{"AI 응답:\n", "AI 응답:"}

// Markers recognised in untagged payloads from older backends.
var (
	toolCallMarkers   = []string{"🔧", "도구 호출", "도구를 호출", "Calling tool", "Tool calling"}
	toolResultMarkers = []string{"📊", "도구 결과", "도구 실행 결과", "Tool result"}
)

// Action is what a single payload asks the session to do.
type Action struct {
	// Status is empty when the payload does not change status.
	Status         Status
	Delta          string
	ConversationID string
	Done           bool
}

// ProtocolError reports a payload that could not be decoded.
type ProtocolError struct {
	Payload string
	Err     error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("chat: malformed payload %q: %v", truncate(e.Payload, 64), e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Interpret classifies one payload. A *ProtocolError means the payload
// should be skipped; the stream itself is still healthy.
func Interpret(payload string) (Action, error) {
	if strings.TrimSpace(payload) == DoneSentinel {
		return Action{Done: true}, nil
	}

	var chunk StreamChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return Action{}, &ProtocolError{Payload: payload, Err: err}
	}

	act := Action{ConversationID: chunk.ConversationID, Done: chunk.IsFinal}

	switch chunk.ChunkType {
	case ChunkToolCalling:
		act.Status = StatusToolCalling
	case ChunkToolResult:
		act.Status = StatusToolResult
	case ChunkAIResponse:
		act.Status = StatusGeneratingText
		act.Delta = StripAnswerLabel(chunk.Content)
	default:
		if st, ok := legacyToolStatus(chunk.Content); ok {
			act.Status = st
			break
		}
		if delta := StripAnswerLabel(chunk.Content); delta != "" {
			act.Status = StatusGeneratingText
			act.Delta = delta
		}
	}
	return act, nil
}

// StripAnswerLabel removes a leading answer label from content.
func StripAnswerLabel(content string) string {
	for _, label := range answerLabels {
		if rest, ok := strings.CutPrefix(content, label); ok {
			return rest
		}
	}
	return content
}

func legacyToolStatus(content string) (Status, bool) {
	for _, m := range toolResultMarkers {
		if strings.Contains(content, m) {
			return StatusToolResult, true
		}
	}
	for _, m := range toolCallMarkers {
		if strings.Contains(content, m) {
			return StatusToolCalling, true
		}
	}
	return "", false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
