package chat

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClient_StreamToolsRequest(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = io.WriteString(w, doneFrame)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", false)
	body, err := c.Stream(context.Background(), Request{Message: "hi", ProfileID: "p1"})
	require.NoError(t, err)
	defer body.Close()

	b, err := io.ReadAll(body)
	require.NoError(t, err)
	require.Equal(t, doneFrame, string(b))

	require.Equal(t, StreamToolsPath, gotPath)
	require.Equal(t, "hi", gotBody["message"])
	require.Equal(t, "p1", gotBody["profile_id"])
	require.Equal(t, []any{}, gotBody["messages"])
}

func TestClient_LegacyRequest(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = io.WriteString(w, doneFrame)
	}))
	defer srv.Close()

	body, err := NewClient(srv.URL, true).Stream(context.Background(), Request{Message: "hi", ProfileID: "p1"})
	require.NoError(t, err)
	body.Close()

	require.Equal(t, LegacyStreamPath, gotPath)
	_, hasProfile := gotBody["profile_id"]
	require.False(t, hasProfile)
}

func TestClient_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, false).Stream(context.Background(), Request{Message: "hi"})
	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, http.StatusServiceUnavailable, serr.Code)
	require.Equal(t, "nope", serr.Body)
}

func TestClient_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, false).Stream(context.Background(), Request{Message: "hi"})
	require.ErrorIs(t, err, ErrEmptyBody)
}

func TestClient_NotConfigured(t *testing.T) {
	_, err := NewClient("", false).Stream(context.Background(), Request{Message: "hi"})
	require.ErrorIs(t, err, ErrNotConfigured)
}
