package session

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldlink/fieldlink-go/internal/client/models"
	"github.com/fieldlink/fieldlink-go/internal/logging"
	"github.com/fieldlink/fieldlink-go/internal/timex"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

var user = models.User{ID: "u1", Email: "user@example.com"}

func TestMachine_StartsUnknown(t *testing.T) {
	m := NewMachine(testLogger())
	assert.Equal(t, StatusUnknown, m.Current().Status)
}

func TestResolveStartup_LeavesUnknownExactlyOnce(t *testing.T) {
	m := NewMachine(testLogger())

	m.ResolveStartup(&user)
	assert.Equal(t, StatusAuthenticated, m.Current().Status)
	assert.Equal(t, user, m.Current().User)

	// Second startup resolution is ignored.
	m.ResolveStartup(nil)
	assert.Equal(t, StatusAuthenticated, m.Current().Status)
}

func TestResolveStartup_NoCredentials(t *testing.T) {
	m := NewMachine(testLogger())
	m.ResolveStartup(nil)
	assert.Equal(t, StatusUnauthenticated, m.Current().Status)
}

func TestRefreshCycle_Transitions(t *testing.T) {
	m := NewMachine(testLogger())
	m.ResolveStartup(&user)

	m.RefreshStarted()
	st := m.Current()
	assert.Equal(t, StatusRefreshing, st.Status)
	assert.Equal(t, user, st.User, "refreshing state keeps the user")

	m.RefreshSucceeded()
	assert.Equal(t, StatusAuthenticated, m.Current().Status)

	m.RefreshStarted()
	m.LoggedOut("refresh failed")
	st = m.Current()
	assert.Equal(t, StatusUnauthenticated, st.Status)
	assert.Equal(t, "refresh failed", st.Reason)
}

func TestRefreshStarted_IgnoredWhenUnauthenticated(t *testing.T) {
	m := NewMachine(testLogger())
	m.ResolveStartup(nil)

	m.RefreshStarted()
	assert.Equal(t, StatusUnauthenticated, m.Current().Status)
}

func TestLoggedIn_OnlyFromUnauthenticated(t *testing.T) {
	m := NewMachine(testLogger())
	m.ResolveStartup(nil)

	m.LoggedIn(user)
	assert.Equal(t, StatusAuthenticated, m.Current().Status)
}

func TestSubscribe_DeliversInRegistrationOrder(t *testing.T) {
	m := NewMachine(testLogger())

	var mu sync.Mutex
	var order []string
	m.Subscribe(func(s State) {
		mu.Lock()
		order = append(order, "first:"+s.Status.String())
		mu.Unlock()
	})
	m.Subscribe(func(s State) {
		mu.Lock()
		order = append(order, "second:"+s.Status.String())
		mu.Unlock()
	})

	m.ResolveStartup(nil)
	m.LoggedIn(user)

	assert.Equal(t, []string{
		"first:unauthenticated", "second:unauthenticated",
		"first:authenticated", "second:authenticated",
	}, order)
}

func TestSubscribe_UnsubscribeStopsDelivery(t *testing.T) {
	m := NewMachine(testLogger())

	calls := 0
	cancel := m.Subscribe(func(State) { calls++ })

	m.ResolveStartup(nil)
	cancel()
	m.LoggedIn(user)

	assert.Equal(t, 1, calls)
}

func TestSubscriber_ObservesCompletedState(t *testing.T) {
	m := NewMachine(testLogger())

	m.Subscribe(func(s State) {
		// Current() must already reflect the delivered state.
		assert.Equal(t, s.Status, m.Current().Status)
	})

	m.ResolveStartup(&user)
	m.RefreshStarted()
	m.RefreshSucceeded()
	m.LoggedOut("logout")
}

func TestWatchdog_FiresAfterTimeout(t *testing.T) {
	clock := timex.NewFakeClock(time.Unix(0, 0))

	fired := 0
	w := NewWatchdog(clock, 5*time.Minute, func() { fired++ }, testLogger())

	w.EnterBackground()
	clock.Advance(4 * time.Minute)
	require.Equal(t, 0, fired)
	clock.Advance(time.Minute)
	assert.Equal(t, 1, fired)
}

func TestWatchdog_ForegroundCancels(t *testing.T) {
	clock := timex.NewFakeClock(time.Unix(0, 0))

	fired := 0
	w := NewWatchdog(clock, 5*time.Minute, func() { fired++ }, testLogger())

	w.EnterBackground()
	clock.Advance(4 * time.Minute)
	w.EnterForeground()
	clock.Advance(10 * time.Minute)
	assert.Equal(t, 0, fired)

	// Re-backgrounding arms a fresh timer.
	w.EnterBackground()
	clock.Advance(5 * time.Minute)
	assert.Equal(t, 1, fired)
}
