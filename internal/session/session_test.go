package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestObserveCreatesActiveSession(t *testing.T) {
	m := New()
	now := time.Now()
	err := m.Observe("tenant-a", "camera-a", "sid-1", "user-1", now.Unix(), now.Add(time.Minute).Unix())
	require.NoError(t, err)

	entries := m.List(Filter{SID: "sid-1"})
	require.Len(t, entries, 1)
	require.Equal(t, StatusActive, entries[0].Status)
}

func TestObserveRefreshesExistingActiveSession(t *testing.T) {
	m := New()
	now := time.Now()
	require.NoError(t, m.Observe("t", "c", "sid-1", "u", now.Unix(), now.Add(time.Minute).Unix()))
	require.NoError(t, m.Observe("t", "c", "sid-1", "u", now.Unix(), now.Add(time.Minute).Unix()))

	entries := m.List(Filter{SID: "sid-1"})
	require.Len(t, entries, 1)
}

func TestTerminalSessionStaysClosedOnReuse(t *testing.T) {
	m := New()
	now := time.Now()
	require.NoError(t, m.Observe("t", "c", "sid-1", "u", now.Unix(), now.Add(time.Minute).Unix()))

	m.CloseForStream("t", "c", ReasonDeprovision)

	err := m.Observe("t", "c", "sid-1", "u", now.Unix(), now.Add(time.Minute).Unix())
	require.Error(t, err)
	_, ok := err.(ErrSessionClosed)
	require.True(t, ok)
}

func TestSweepExpiresPastDeadline(t *testing.T) {
	m := New()
	now := time.Now()
	require.NoError(t, m.Observe("t", "c", "sid-1", "u", now.Add(-time.Minute).Unix(), now.Add(-time.Second).Unix()))

	result := m.Sweep(time.Minute)
	require.Equal(t, 1, result.Expired)

	entries := m.List(Filter{SID: "sid-1"})
	require.Equal(t, StatusExpired, entries[0].Status)
	require.Equal(t, ReasonTokenExpired, entries[0].EndReason)
}

func TestSweepEndsIdleSessions(t *testing.T) {
	m := New()
	now := time.Now()
	require.NoError(t, m.Observe("t", "c", "sid-1", "u", now.Unix(), now.Add(time.Hour).Unix()))

	m.mu.Lock()
	for _, entry := range m.sessions {
		entry.LastSeenAt = now.Add(-2 * time.Second)
	}
	m.mu.Unlock()

	result := m.Sweep(time.Second)
	require.Equal(t, 1, result.Ended)

	entries := m.List(Filter{SID: "sid-1"})
	require.Equal(t, StatusEnded, entries[0].Status)
	require.Equal(t, ReasonIdleTimeout, entries[0].EndReason)
}

func TestCloseForStreamOnlyAffectsNonTerminalSessionsForThatStream(t *testing.T) {
	m := New()
	now := time.Now()
	require.NoError(t, m.Observe("t1", "c", "sid-1", "u", now.Unix(), now.Add(time.Minute).Unix()))
	require.NoError(t, m.Observe("t2", "c", "sid-2", "u", now.Unix(), now.Add(time.Minute).Unix()))

	closed := m.CloseForStream("t1", "c", ReasonDeprovision)
	require.Equal(t, 1, closed)

	e1 := m.List(Filter{SID: "sid-1"})[0]
	e2 := m.List(Filter{SID: "sid-2"})[0]
	require.Equal(t, StatusEnded, e1.Status)
	require.Equal(t, StatusActive, e2.Status)
}

func TestListSortedByLastSeenDescending(t *testing.T) {
	m := New()
	now := time.Now()
	require.NoError(t, m.Observe("t", "c", "sid-older", "u", now.Unix(), now.Add(time.Minute).Unix()))
	require.NoError(t, m.Observe("t", "c", "sid-newer", "u", now.Unix(), now.Add(time.Minute).Unix()))

	m.mu.Lock()
	m.sessions[key{"t", "c", "sid-older"}].LastSeenAt = now.Add(-time.Minute)
	m.sessions[key{"t", "c", "sid-newer"}].LastSeenAt = now
	m.mu.Unlock()

	entries := m.List(Filter{TenantID: "t", CameraID: "c"})
	require.Len(t, entries, 2)
	require.Equal(t, "sid-newer", entries[0].SID)
	require.Equal(t, "sid-older", entries[1].SID)
}
