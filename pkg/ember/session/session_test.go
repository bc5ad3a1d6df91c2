package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yourusername/ember/pkg/ember/wire"
)

func TestResolveIssuesNewSessionWithoutCookie(t *testing.T) {
	st := NewStore(time.Minute)
	req := &wire.Request{}

	sess, isNew, err := Resolve(st, req, time.Now())
	require.NoError(t, err)
	require.True(t, isNew)
	require.Len(t, sess.ID, 32)
	require.Equal(t, 1, st.Len())
}

func TestResolveReusesExistingSession(t *testing.T) {
	st := NewStore(time.Minute)
	now := time.Now()
	sess, err := st.New(now)
	require.NoError(t, err)

	req := &wire.Request{}
	req.Header.Set("Cookie", "sessionid="+sess.ID)

	got, isNew, err := Resolve(st, req, now.Add(time.Second))
	require.NoError(t, err)
	require.False(t, isNew)
	require.Equal(t, sess.ID, got.ID)
}

func TestResolveReissuesExpiredSession(t *testing.T) {
	st := NewStore(time.Millisecond)
	now := time.Now()
	sess, err := st.New(now)
	require.NoError(t, err)

	req := &wire.Request{}
	req.Header.Set("Cookie", "sessionid="+sess.ID)

	got, isNew, err := Resolve(st, req, now.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, isNew)
	require.NotEqual(t, sess.ID, got.ID)
}

func TestApplySetsCookieOnlyWhenNew(t *testing.T) {
	st := NewStore(time.Minute)
	sess, err := st.New(time.Now())
	require.NoError(t, err)

	resp := wire.NewResponse(200)
	Apply(st, resp, sess, true)
	require.Contains(t, resp.Header.Get("Set-Cookie"), "sessionid="+sess.ID)
	require.Contains(t, resp.Header.Get("Set-Cookie"), "HttpOnly")

	resp2 := wire.NewResponse(200)
	Apply(st, resp2, sess, false)
	require.Empty(t, resp2.Header.Get("Set-Cookie"))
}

func TestSweepRemovesExpired(t *testing.T) {
	st := NewStore(time.Millisecond)
	now := time.Now()
	_, err := st.New(now)
	require.NoError(t, err)

	removed := st.Sweep(now.Add(time.Hour))
	require.Equal(t, 1, removed)
	require.Equal(t, 0, st.Len())
}

func TestTickTriggersOnThousandth(t *testing.T) {
	st := NewStore(time.Minute)
	var due bool
	for i := 0; i < 1000; i++ {
		due = st.Tick()
	}
	require.True(t, due)
}
