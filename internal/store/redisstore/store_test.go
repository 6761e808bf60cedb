package redisstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := New(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestProfileView_SetGet(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetProfileView(ctx, "")
	require.ErrorIs(t, err, redis.Nil)

	require.NoError(t, s.SetProfileView(ctx, "", []byte(`{"id":"p1"}`), time.Minute))
	got, err := s.GetProfileView(ctx, "")
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"p1"}`, string(got))
	require.True(t, mr.Exists(profileKeyPrefix+"default"))

	mr.FastForward(2 * time.Minute)
	_, err = s.GetProfileView(ctx, "")
	require.ErrorIs(t, err, redis.Nil)
}

func TestInvalidateProfiles(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InvalidateProfiles(ctx))

	// more keys than one SCAN page
	for i := range 250 {
		require.NoError(t, s.SetProfileView(ctx, fmt.Sprintf("p%d", i), []byte("{}"), time.Hour))
	}
	require.NoError(t, mr.Set(loginKeyPrefix+"root", "2"))
	require.NoError(t, mr.Set("unrelated", "x"))

	require.NoError(t, s.InvalidateProfiles(ctx))

	require.ElementsMatch(t, []string{loginKeyPrefix + "root", "unrelated"}, mr.Keys())
}

func TestLoginFailures_Window(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	n, err := s.LoginFailures(ctx, "root")
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = s.RecordLoginFailure(ctx, "root", 15*time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.Equal(t, 15*time.Minute, mr.TTL(loginKey("root")))

	// later failures do not extend the window
	mr.FastForward(10 * time.Minute)
	n, err = s.RecordLoginFailure(ctx, "root", 15*time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
	require.Equal(t, 5*time.Minute, mr.TTL(loginKey("root")))

	n, err = s.LoginFailures(ctx, "root")
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	mr.FastForward(6 * time.Minute)
	n, err = s.LoginFailures(ctx, "root")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestResetLoginFailures(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for range 3 {
		_, err := s.RecordLoginFailure(ctx, "root", time.Minute)
		require.NoError(t, err)
	}
	_, err := s.RecordLoginFailure(ctx, "other", time.Minute)
	require.NoError(t, err)

	require.NoError(t, s.ResetLoginFailures(ctx, "root"))

	n, err := s.LoginFailures(ctx, "root")
	require.NoError(t, err)
	require.Zero(t, n)
	n, err = s.LoginFailures(ctx, "other")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestPingUnreachable(t *testing.T) {
	s, mr := newTestStore(t)
	require.NoError(t, s.Ping(context.Background()))

	mr.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.Error(t, s.Ping(ctx))
}
