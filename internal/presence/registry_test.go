package presence

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/npezzotti/gochat-engine/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(start time.Time) func() time.Time {
	var (
		mu  sync.Mutex
		cur = start
	)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Second)
		return cur
	}
}

func TestConnect(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewRegistry(WithClock(fixedClock(start)))

	rec := r.Connect("alice", "Alice", "c1")

	assert.Equal(t, "alice", rec.UserId)
	assert.Equal(t, "Alice", rec.DisplayName)
	assert.Equal(t, "c1", rec.ConnectionId)
	assert.True(t, rec.Online)
	assert.Equal(t, start.Add(time.Second), rec.LastSeen)

	assert.True(t, r.IsOnline("alice"))
	conn, ok := r.ConnectionOf("alice")
	assert.True(t, ok)
	assert.Equal(t, "c1", conn)
	user, ok := r.UserOf("c1")
	assert.True(t, ok)
	assert.Equal(t, "alice", user)
	assert.Equal(t, 1, r.OnlineCount())
}

func TestConnectKeepsDisplayName(t *testing.T) {
	r := NewRegistry()

	r.Connect("alice", "Alice", "c1")
	r.Disconnect("c1")
	rec := r.Connect("alice", "", "c2")

	assert.Equal(t, "Alice", rec.DisplayName, "expected display name to survive a nameless reconnect")
}

func TestDisconnect(t *testing.T) {
	r := NewRegistry()
	r.Connect("alice", "Alice", "c1")

	rec, ok := r.Disconnect("c1")
	require.True(t, ok)
	assert.False(t, rec.Online)
	assert.Empty(t, rec.ConnectionId)

	assert.False(t, r.IsOnline("alice"))
	_, ok = r.ConnectionOf("alice")
	assert.False(t, ok)
	_, ok = r.UserOf("c1")
	assert.False(t, ok)
	assert.Equal(t, 0, r.OnlineCount())

	stored, ok := r.Get("alice")
	require.True(t, ok, "expected record to be retained after disconnect")
	assert.False(t, stored.Online)
}

func TestDisconnectUnknown(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Disconnect("missing")
	assert.False(t, ok)

	r.Connect("alice", "Alice", "c1")
	r.Disconnect("c1")
	_, ok = r.Disconnect("c1")
	assert.False(t, ok, "expected second disconnect to be a no-op")
}

func TestReconnectSupersedes(t *testing.T) {
	r := NewRegistry()

	r.Connect("alice", "Alice", "c1")
	r.Connect("alice", "Alice", "c2")

	conn, ok := r.ConnectionOf("alice")
	require.True(t, ok)
	assert.Equal(t, "c2", conn)

	_, ok = r.UserOf("c1")
	assert.False(t, ok, "expected superseded connection to leave the reverse index")

	_, ok = r.Disconnect("c1")
	assert.False(t, ok, "expected disconnect of superseded connection to be ignored")
	assert.True(t, r.IsOnline("alice"))
	assert.Equal(t, 1, r.OnlineCount())
}

func TestConnectionIdRebound(t *testing.T) {
	r := NewRegistry()

	r.Connect("alice", "Alice", "c1")
	r.Connect("bob", "Bob", "c1")

	assert.False(t, r.IsOnline("alice"))
	_, ok := r.ConnectionOf("alice")
	assert.False(t, ok)

	user, ok := r.UserOf("c1")
	require.True(t, ok)
	assert.Equal(t, "bob", user)
}

func TestParticipants(t *testing.T) {
	r := NewRegistry()
	r.Connect("alice", "Alice", "c1")
	r.Connect("bob", "Bob", "c2")
	r.Disconnect("c2")

	got := r.Participants([]string{"bob", "alice", "carol"})

	require.Len(t, got, 2, "expected unknown users to be left out")
	assert.Equal(t, "bob", got[0].Id)
	assert.Equal(t, "Bob", got[0].Username)
	assert.False(t, got[0].Online)
	assert.Equal(t, "alice", got[1].Id)
	assert.True(t, got[1].Online)
}

func TestObserve(t *testing.T) {
	r := NewRegistry()
	r.Observe(types.User{Id: "carol", Username: "Carol"})
	r.Observe(types.User{Username: "Nobody"})

	got := r.Participants([]string{"carol"})
	assert.Equal(t, []types.Participant{{Id: "carol", Username: "Carol"}}, got)
	assert.False(t, r.IsOnline("carol"))
	assert.Equal(t, 0, r.OnlineCount())

	r.Connect("carol", "Caz", "c1")
	r.Observe(types.User{Id: "carol", Username: "Carol"})
	rec, ok := r.Get("carol")
	require.True(t, ok)
	assert.True(t, rec.Online, "expected observe to leave a live user online")
	assert.Equal(t, "Caz", rec.DisplayName)
}

func TestConcurrentConnectDisconnect(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", i)
			conn := fmt.Sprintf("conn-%d", i)
			r.Connect(user, user, conn)
			if i%2 == 0 {
				r.Disconnect(conn)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 25, r.OnlineCount())
	for i := 0; i < 50; i++ {
		user := fmt.Sprintf("user-%d", i)
		conn, ok := r.ConnectionOf(user)
		if i%2 == 0 {
			assert.False(t, ok)
			continue
		}
		assert.True(t, ok)
		owner, _ := r.UserOf(conn)
		assert.Equal(t, user, owner, "expected reverse index to agree with forward index")
	}
}
