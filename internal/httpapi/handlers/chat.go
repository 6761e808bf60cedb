package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/portfolio-platform/internal/chat"
	"github.com/suPer8Hu/portfolio-platform/internal/common"
	"github.com/tmaxmax/go-sse"
	"gorm.io/gorm"
)

const heartbeatInterval = 15 * time.Second

func (h *Handler) CreateChatSession(c *gin.Context) {
	sess, err := h.Sessions.Create()
	if err != nil {
		logger(c).Error("create chat session", slog.String("error", err.Error()))
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to create session")
		return
	}
	common.OK(c, gin.H{
		"session_id": sess.ID(),
		"configured": sess.Configured(),
		"status":     sess.Status(),
		"messages":   sess.Messages(),
	})
}

func (h *Handler) lookupSession(c *gin.Context) (*chat.Session, bool) {
	sess, found := h.Sessions.Get(c.Param("session_id"))
	if !found {
		common.Fail(c, http.StatusNotFound, 40404, "session not found")
		return nil, false
	}
	return sess, true
}

func (h *Handler) ListChatMessages(c *gin.Context) {
	sess, found := h.lookupSession(c)
	if !found {
		return
	}
	common.OK(c, gin.H{
		"messages":        sess.Messages(),
		"status":          sess.Status(),
		"conversation_id": sess.ConversationID(),
	})
}

func (h *Handler) DeleteChatSession(c *gin.Context) {
	id := c.Param("session_id")
	if _, found := h.lookupSession(c); !found {
		return
	}
	if !h.Sessions.Remove(id) {
		common.Fail(c, http.StatusConflict, 40902, "a reply is still streaming")
		return
	}
	common.OK(c, gin.H{"deleted": id})
}

type sendMessageReq struct {
	Message string `json:"message"`
}

// StreamChatMessage submits one turn and relays the session's events to the
// browser as server-sent events, ending with a done event.
func (h *Handler) StreamChatMessage(c *gin.Context) {
	sess, found := h.lookupSession(c)
	if !found {
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "message required")
		return
	}
	if !sess.Configured() {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "chat endpoint not configured")
		return
	}
	if sess.Status() != chat.StatusIdle {
		common.Fail(c, http.StatusConflict, 40901, "a reply is already streaming")
		return
	}

	stream, err := sse.Upgrade(c.Writer, c.Request)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "streaming unsupported")
		return
	}
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	log := logger(c).With(slog.String("session_id", sess.ID()))
	out := &eventWriter{stream: stream, log: log}
	cancel := sess.Watch(func(ev chat.Event) {
		out.send(string(ev.Kind), ev)
	})

	stopBeat := make(chan struct{})
	var beat sync.WaitGroup
	beat.Add(1)
	go func() {
		defer beat.Done()
		t := time.NewTicker(heartbeatInterval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				out.ping()
			case <-stopBeat:
				return
			}
		}
	}()

	err = sess.Submit(c.Request.Context(), req.Message)

	cancel()
	close(stopBeat)
	beat.Wait()

	if err != nil {
		msg := err.Error()
		switch {
		case errors.Is(err, chat.ErrTurnInFlight):
			msg = "a reply is already streaming"
		case errors.Is(err, chat.ErrClosed):
			msg = "chat session was deleted"
		}
		out.send("error", gin.H{"message": msg})
	}
	out.send("done", gin.H{
		"status":          sess.Status(),
		"conversation_id": sess.ConversationID(),
	})
	out.close()
}

// eventWriter serialises writes to one SSE stream. Watch callbacks and the
// heartbeat run on different goroutines.
type eventWriter struct {
	mu     sync.Mutex
	stream *sse.Session
	log    *slog.Logger
	closed bool
	failed bool
}

func (w *eventWriter) send(event string, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		w.log.Error("marshal sse payload", slog.String("error", err.Error()))
		return
	}
	m := &sse.Message{Type: sse.Type(event)}
	m.AppendData(string(b))
	w.write(m)
}

func (w *eventWriter) ping() {
	m := &sse.Message{}
	m.AppendComment("ping")
	w.write(m)
}

func (w *eventWriter) write(m *sse.Message) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.failed {
		return
	}
	if err := w.stream.Send(m); err == nil {
		err = w.stream.Flush()
		if err == nil {
			return
		}
	}
	// client went away; stop writing and let the turn finish
	w.failed = true
	w.log.Debug("sse client gone")
}

func (w *eventWriter) close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}

// ListChatTurns pages through archived turns of a session, newest first.
func (h *Handler) ListChatTurns(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Query("session_id"))
	if sessionID == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "session_id required")
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	turns, err := h.Turns.ListBySession(c.Request.Context(), sessionID, limit, c.Query("before_id"))
	if err != nil {
		logger(c).Error("list chat turns", slog.String("error", err.Error()))
		common.Fail(c, http.StatusInternalServerError, 50001, "db error")
		return
	}

	var nextBeforeID string
	if len(turns) > 0 {
		nextBeforeID = turns[len(turns)-1].ID
	}
	common.OK(c, gin.H{
		"turns":          turns,
		"next_before_id": nextBeforeID,
	})
}

func (h *Handler) GetChatTurn(c *gin.Context) {
	t, err := h.Turns.GetByID(c.Request.Context(), c.Param("turn_id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40405, "turn not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "db error")
		return
	}
	common.OK(c, t)
}
