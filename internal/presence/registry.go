// Package presence tracks which users hold a live connection.
package presence

import (
	"sync"
	"time"

	"github.com/npezzotti/gochat-engine/internal/types"
)

// Registry maps users to their live connection and back. A user holds at most
// one live connection; connecting again supersedes the previous one without
// closing it.
type Registry struct {
	mu     sync.RWMutex
	users  map[string]*types.PresenceRecord
	byConn map[string]string
	now    func() time.Time
}

type Option func(*Registry)

// WithClock overrides the time source used for lastSeen stamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		users:  make(map[string]*types.PresenceRecord),
		byConn: make(map[string]string),
		now:    func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Connect marks userId online on connId. A previous live connection for the
// same user is dropped from the reverse index, so its later Disconnect is a
// no-op.
func (r *Registry) Connect(userId, displayName, connId string) types.PresenceRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.users[userId]
	if !ok {
		rec = &types.PresenceRecord{UserId: userId}
		r.users[userId] = rec
	}

	if rec.ConnectionId != "" && rec.ConnectionId != connId {
		delete(r.byConn, rec.ConnectionId)
	}

	// a connection id belongs to one user; rebinding it releases the old owner
	if prev, ok := r.byConn[connId]; ok && prev != userId {
		if old := r.users[prev]; old != nil {
			old.ConnectionId = ""
			old.Online = false
			old.LastSeen = r.now()
		}
	}

	if displayName != "" {
		rec.DisplayName = displayName
	}
	rec.ConnectionId = connId
	rec.Online = true
	rec.LastSeen = r.now()
	r.byConn[connId] = userId

	return *rec
}

// Observe records u as a known, offline user. It never changes the state of
// a user the registry already holds, except to fill a missing name.
func (r *Registry) Observe(u types.User) {
	if u.Id == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.users[u.Id]
	if !ok {
		r.users[u.Id] = &types.PresenceRecord{UserId: u.Id, DisplayName: u.Username}
		return
	}
	if rec.DisplayName == "" {
		rec.DisplayName = u.Username
	}
}

// Disconnect marks the owner of connId offline. It reports false when connId
// is unknown, already disconnected or superseded.
func (r *Registry) Disconnect(connId string) (types.PresenceRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userId, ok := r.byConn[connId]
	if !ok {
		return types.PresenceRecord{}, false
	}
	delete(r.byConn, connId)

	rec := r.users[userId]
	rec.ConnectionId = ""
	rec.Online = false
	rec.LastSeen = r.now()

	return *rec, true
}

func (r *Registry) IsOnline(userId string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.users[userId]
	return ok && rec.Online
}

func (r *Registry) ConnectionOf(userId string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.users[userId]
	if !ok || rec.ConnectionId == "" {
		return "", false
	}

	return rec.ConnectionId, true
}

func (r *Registry) UserOf(connId string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userId, ok := r.byConn[connId]
	return userId, ok
}

func (r *Registry) Get(userId string) (types.PresenceRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.users[userId]
	if !ok {
		return types.PresenceRecord{}, false
	}

	return *rec, true
}

// Participants returns the participant view of userIds in the given order.
// Users the registry has never seen are left out.
func (r *Registry) Participants(userIds []string) []types.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.Participant, 0, len(userIds))
	for _, id := range userIds {
		rec, ok := r.users[id]
		if !ok {
			continue
		}
		out = append(out, types.Participant{Id: id, Username: rec.DisplayName, Online: rec.Online})
	}

	return out
}

func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byConn)
}
