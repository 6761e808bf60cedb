package httpapi

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gormsqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/portfolio-platform/internal/archive"
	"github.com/suPer8Hu/portfolio-platform/internal/chat"
	"github.com/suPer8Hu/portfolio-platform/internal/common"
	"github.com/suPer8Hu/portfolio-platform/internal/config"
	"github.com/suPer8Hu/portfolio-platform/internal/portfolio"
	"gorm.io/gorm"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testAPI struct {
	t      *testing.T
	router http.Handler
	token  string
}

func newTestAPI(t *testing.T, backendURL string) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(gormsqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(append(portfolio.Models(), &archive.TurnRecord{})...))

	cfg := config.Config{JWTSecret: "test-secret", ChatAPIBaseURL: backendURL, ChatProfileID: "owner"}
	sessions := chat.NewRegistry(common.NewULID, func(id string) *chat.Session {
		return chat.NewSession(chat.NewClient(cfg.ChatAPIBaseURL, false), cfg.ChatProfileID,
			chat.WithID(id), chat.WithIdleTimeout(5*time.Second))
	})
	return &testAPI{t: t, router: NewRouter(db, cfg, nil, sessions)}
}

func (a *testAPI) do(method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	a.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(a.t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestPingAndNoRoute(t *testing.T) {
	api := newTestAPI(t, "")

	rec, env := api.do(http.MethodGet, "/ping", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Zero(t, env.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec, env = api.do(http.MethodGet, "/nope", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, 40400, env.Code)
}

func TestAdminFlow(t *testing.T) {
	api := newTestAPI(t, "")

	_, env := api.do(http.MethodGet, "/admin/status", nil)
	require.JSONEq(t, `{"admin_exists":false}`, string(env.Data))

	rec, _ := api.do(http.MethodPost, "/admin/register", gin.H{"username": "root", "password": "secret1", "confirm_password": "secret2"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = api.do(http.MethodPost, "/admin/register", gin.H{"username": "root", "password": "secret1", "confirm_password": "secret1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = api.do(http.MethodPost, "/admin/register", gin.H{"username": "two", "password": "secret1", "confirm_password": "secret1"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	_, env = api.do(http.MethodGet, "/admin/status", nil)
	require.JSONEq(t, `{"admin_exists":true}`, string(env.Data))

	rec, _ = api.do(http.MethodGet, "/admin/entities/profiles", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = api.do(http.MethodPost, "/admin/login", gin.H{"username": "root", "password": "wrong"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env = api.do(http.MethodPost, "/admin/login", gin.H{"username": "root", "password": "secret1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &login))
	require.NotEmpty(t, login.Token)
	api.token = login.Token

	_, env = api.do(http.MethodGet, "/admin/me", nil)
	require.Contains(t, string(env.Data), `"username":"root"`)

	rec, env = api.do(http.MethodPost, "/admin/entities/profiles", gin.H{"name": "홍길동", "email": "gildong@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	var profile portfolio.Profile
	require.NoError(t, json.Unmarshal(env.Data, &profile))

	rec, _ = api.do(http.MethodPost, "/admin/entities/careers", gin.H{"profile_id": profile.ID, "company_name": "Acme", "start_date": "2020-13-01"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = api.do(http.MethodPost, "/admin/entities/careers", gin.H{"profile_id": profile.ID, "company_name": "Acme", "start_date": "2020-01-01"})
	require.Equal(t, http.StatusOK, rec.Code)
	var career portfolio.Career
	require.NoError(t, json.Unmarshal(env.Data, &career))

	rec, _ = api.do(http.MethodPost, "/admin/entities/projects", gin.H{"career_id": career.ID, "project_name": "Portfolio", "technologies": "Go, gin"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = api.do(http.MethodGet, "/admin/entities/users", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	api.token = ""
	rec, env = api.do(http.MethodGet, "/api/profile", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view portfolio.ProfileWithCareers
	require.NoError(t, json.Unmarshal(env.Data, &view))
	require.Equal(t, "홍길동", view.Name)
	require.Len(t, view.Careers, 1)
	require.Len(t, view.Careers[0].Projects, 1)
	require.Equal(t, []string{"Go", "gin"}, view.Careers[0].Projects[0].Technologies)

	api.token = login.Token
	rec, _ = api.do(http.MethodPut, "/admin/entities/profiles/"+profile.ID, gin.H{"name": "Hong", "email": "gildong@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = api.do(http.MethodDelete, "/admin/entities/profiles/"+profile.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = api.do(http.MethodGet, "/api/profiles/"+profile.ID, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

type sseEvent struct {
	Type string
	Data string
}

func readEvents(t *testing.T, body io.Reader) []sseEvent {
	t.Helper()
	var (
		out []sseEvent
		cur sseEvent
	)
	sc := bufio.NewScanner(body)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if cur.Type != "" || cur.Data != "" {
				out = append(out, cur)
			}
			cur = sseEvent{}
		case strings.HasPrefix(line, "event: "):
			cur.Type = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.Data += strings.TrimPrefix(line, "data: ")
		}
	}
	require.NoError(t, sc.Err())
	return out
}

func createSession(t *testing.T, api *testAPI) string {
	t.Helper()
	rec, env := api.do(http.MethodPost, "/chat/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var created struct {
		SessionID string         `json:"session_id"`
		Messages  []chat.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.Len(t, created.Messages, 1)
	require.Equal(t, chat.WelcomeID, created.Messages[0].ID)
	return created.SessionID
}

func TestChatStream_RelaysSessionEvents(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != chat.StreamToolsPath {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"content\":\"\",\"chunk_type\":\"tool_calling\"}\n\n")
		io.WriteString(w, "data: {\"content\":\"반갑\",\"chunk_type\":\"ai_response\",\"conversation_id\":\"conv-1\"}\n\n")
		io.WriteString(w, "data: {\"content\":\"습니다\",\"chunk_type\":\"ai_response\"}\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer backend.Close()

	api := newTestAPI(t, backend.URL)
	id := createSession(t, api)

	rec, _ := api.do(http.MethodPost, "/chat/sessions/"+id+"/messages", gin.H{"message": "안녕"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := readEvents(t, rec.Body)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	require.Equal(t, "done", last.Type)
	require.JSONEq(t, `{"status":"idle","conversation_id":"conv-1"}`, last.Data)

	var statuses []string
	for _, ev := range events {
		if ev.Type != "status" {
			continue
		}
		var e chat.Event
		require.NoError(t, json.Unmarshal([]byte(ev.Data), &e))
		statuses = append(statuses, string(e.Status))
	}
	require.Equal(t, []string{"waiting", "tool_calling", "generating_text", "idle"}, statuses)

	_, env := api.do(http.MethodGet, "/chat/sessions/"+id+"/messages", nil)
	var listed struct {
		Messages       []chat.Message `json:"messages"`
		Status         string         `json:"status"`
		ConversationID string         `json:"conversation_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &listed))
	require.Equal(t, "idle", listed.Status)
	require.Equal(t, "conv-1", listed.ConversationID)
	require.Len(t, listed.Messages, 3)
	require.Equal(t, "안녕", listed.Messages[1].Content)
	require.Equal(t, "반갑습니다", listed.Messages[2].Content)
}

func TestChatStream_RejectsBeforeUpgrade(t *testing.T) {
	api := newTestAPI(t, "")
	id := createSession(t, api)

	rec, env := api.do(http.MethodPost, "/chat/sessions/"+id+"/messages", gin.H{"message": "  "})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, 10002, env.Code)

	rec, env = api.do(http.MethodPost, "/chat/sessions/"+id+"/messages", gin.H{"message": "hi"})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, 50301, env.Code)

	rec, _ = api.do(http.MethodPost, "/chat/sessions/missing/messages", gin.H{"message": "hi"})
	require.Equal(t, http.StatusNotFound, rec.Code)

	_, env = api.do(http.MethodGet, "/chat/sessions/"+id+"/messages", nil)
	require.Contains(t, string(env.Data), `"status":"idle"`)
	require.Contains(t, string(env.Data), chat.WelcomeID)
	require.NotContains(t, string(env.Data), `"hi"`)
}

func TestChatStream_BusySessionConflicts(t *testing.T) {
	release := make(chan struct{})
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		<-release
		io.WriteString(w, "data: {\"content\":\"ok\",\"chunk_type\":\"ai_response\"}\n\n")
	}))
	defer backend.Close()

	api := newTestAPI(t, backend.URL)
	id := createSession(t, api)

	first := make(chan int, 1)
	go func() {
		req := httptest.NewRequest(http.MethodPost, "/chat/sessions/"+id+"/messages", strings.NewReader(`{"message":"one"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		api.router.ServeHTTP(rec, req)
		first <- rec.Code
	}()

	require.Eventually(t, func() bool {
		_, env := api.do(http.MethodGet, "/chat/sessions/"+id+"/messages", nil)
		return strings.Contains(string(env.Data), `"status":"waiting"`)
	}, 2*time.Second, 5*time.Millisecond)

	rec, env := api.do(http.MethodPost, "/chat/sessions/"+id+"/messages", gin.H{"message": "two"})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, 40901, env.Code)

	rec, _ = api.do(http.MethodDelete, "/chat/sessions/"+id, nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	close(release)
	require.Equal(t, http.StatusOK, <-first)

	rec, _ = api.do(http.MethodDelete, "/chat/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	api := newTestAPI(t, "")

	req := httptest.NewRequest(http.MethodOptions, "/chat/sessions", nil)
	req.Header.Set("Origin", "https://portfolio.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
