package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/portfolio-platform/internal/chat"
)

func TestConverse_StreamsReply(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"content\":\"🔧 Calling tool get_profile\"}\n\n")
		io.WriteString(w, "data: {\"content\":\"AI 응답:\\n반갑\",\"chunk_type\":\"ai_response\"}\n\n")
		io.WriteString(w, "data: {\"content\":\"습니다\",\"chunk_type\":\"ai_response\",\"is_final\":true}\n\n")
	}))
	defer backend.Close()

	sess := chat.NewSession(chat.NewClient(backend.URL, false), "owner", chat.WithID("t"))
	var out bytes.Buffer
	require.NoError(t, converse(context.Background(), sess, strings.NewReader("\n안녕\n"), &out))

	got := out.String()
	require.True(t, strings.HasPrefix(got, chat.WelcomeContent+"\n"))
	require.Contains(t, got, "  [thinking...]\n")
	require.Contains(t, got, "  [calling tools...]\n")
	require.Contains(t, got, "반갑습니다\n")
	require.Len(t, sess.Messages(), 3)
}

func TestConverse_NotConfigured(t *testing.T) {
	sess := chat.NewSession(chat.NewClient("", false), "")
	err := converse(context.Background(), sess, strings.NewReader("hi\n"), io.Discard)
	require.ErrorContains(t, err, "no chat endpoint configured")
}

func TestPrinter_PrintsOnlyNewSuffix(t *testing.T) {
	var out bytes.Buffer
	p := newPrinter(&out)

	msg := func(id, content string) chat.Event {
		return chat.Event{Kind: chat.EventMessage, Message: &chat.Message{ID: id, Content: content, Author: chat.AuthorAssistant}}
	}
	p.handle(msg("ai-1", "Hel"))
	p.handle(msg("ai-1", "Hello"))
	p.handle(chat.Event{Kind: chat.EventStatus, Status: chat.StatusToolResult})
	p.handle(msg("ai-1", "Hello!"))
	p.handle(chat.Event{Kind: chat.EventStatus, Status: chat.StatusIdle})
	p.handle(chat.Event{Kind: chat.EventMessage, Message: &chat.Message{ID: "user-1", Content: "x", Author: chat.AuthorUser}})

	require.Equal(t, "Hello\n  [reading tool results...]\n!\n", out.String())
}
