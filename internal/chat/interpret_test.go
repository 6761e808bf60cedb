package chat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInterpret(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Action
	}{
		{
			name:    "done sentinel",
			payload: "[DONE]",
			want:    Action{Done: true},
		},
		{
			name:    "done sentinel with padding",
			payload: "  [DONE]\n",
			want:    Action{Done: true},
		},
		{
			name:    "tool calling",
			payload: `{"content":"search_careers","conversation_id":"c1","is_final":false,"chunk_type":"tool_calling","metadata":{"tool":"search"}}`,
			want:    Action{Status: StatusToolCalling, ConversationID: "c1"},
		},
		{
			name:    "tool result",
			payload: `{"content":"3 rows","conversation_id":"c1","is_final":false,"chunk_type":"tool_result","metadata":null}`,
			want:    Action{Status: StatusToolResult, ConversationID: "c1"},
		},
		{
			name:    "ai response with newline label",
			payload: `{"content":"AI 응답:\nhello","chunk_type":"ai_response"}`,
			want:    Action{Status: StatusGeneratingText, Delta: "hello"},
		},
		{
			name:    "ai response with inline label",
			payload: `{"content":"AI 응답:hello","chunk_type":"ai_response"}`,
			want:    Action{Status: StatusGeneratingText, Delta: "hello"},
		},
		{
			name:    "ai response without label",
			payload: `{"content":"hello","chunk_type":"ai_response"}`,
			want:    Action{Status: StatusGeneratingText, Delta: "hello"},
		},
		{
			name:    "final ai response",
			payload: `{"content":"bye","is_final":true,"chunk_type":"ai_response"}`,
			want:    Action{Status: StatusGeneratingText, Delta: "bye", Done: true},
		},
		{
			name:    "legacy untagged text",
			payload: `{"content":"AI 응답:\n경력은","conversation_id":"c2","is_final":false,"metadata":null}`,
			want:    Action{Status: StatusGeneratingText, Delta: "경력은", ConversationID: "c2"},
		},
		{
			name:    "legacy tool call marker",
			payload: `{"content":"🔧 도구 호출: get_projects","is_final":false}`,
			want:    Action{Status: StatusToolCalling},
		},
		{
			name:    "legacy tool result marker",
			payload: `{"content":"📊 도구 결과: 2건","is_final":false}`,
			want:    Action{Status: StatusToolResult},
		},
		{
			name:    "unknown chunk type treated as legacy",
			payload: `{"content":"hi","chunk_type":"thinking"}`,
			want:    Action{Status: StatusGeneratingText, Delta: "hi"},
		},
		{
			name:    "legacy empty content",
			payload: `{"content":"","is_final":true}`,
			want:    Action{Done: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Interpret(tt.payload)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestInterpret_Malformed(t *testing.T) {
	_, err := Interpret("{not json")
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "{not json", perr.Payload)
}

func TestStripAnswerLabel(t *testing.T) {
	require.Equal(t, "hello", StripAnswerLabel("AI 응답:\nhello"))
	require.Equal(t, "hello", StripAnswerLabel("AI 응답:hello"))
	require.Equal(t, "hello", StripAnswerLabel("hello"))
	require.Equal(t, "\nhello", StripAnswerLabel("AI 응답:\n\nhello"))
	require.Equal(t, "x AI 응답:y", StripAnswerLabel("x AI 응답:y"))
}
