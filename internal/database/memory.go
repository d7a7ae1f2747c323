package database

import (
	"context"
	"database/sql"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryIdentityRepository keeps users and friendships in process memory.
// It is used when no database DSN is configured.
type MemoryIdentityRepository struct {
	mu      sync.RWMutex
	users   map[string]User
	friends map[string]map[string]struct{}
	newId   func() string
}

func NewMemoryIdentityRepository() *MemoryIdentityRepository {
	return &MemoryIdentityRepository{
		users:   make(map[string]User),
		friends: make(map[string]map[string]struct{}),
		newId:   uuid.NewString,
	}
}

func (m *MemoryIdentityRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryIdentityRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	u := User{
		Id:          m.newId(),
		Username:    params.Username,
		ContactInfo: params.ContactInfo,
		CreatedAt:   time.Now().UTC(),
	}
	m.users[u.Id] = u

	return u, nil
}

func (m *MemoryIdentityRepository) GetUser(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return User{}, sql.ErrNoRows
	}

	return u, nil
}

func (m *MemoryIdentityRepository) GetUserByContact(ctx context.Context, contact string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		found User
		ok    bool
	)
	for _, u := range m.users {
		if u.ContactInfo != contact {
			continue
		}
		if !ok || u.CreatedAt.Before(found.CreatedAt) || (u.CreatedAt.Equal(found.CreatedAt) && u.Id < found.Id) {
			found, ok = u, true
		}
	}
	if !ok {
		return User{}, sql.ErrNoRows
	}

	return found, nil
}

// SearchUsers orders matches by username, then id.
func (m *MemoryIdentityRepository) SearchUsers(ctx context.Context, params SearchUsersParams) ([]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	q := strings.ToLower(params.Query)
	out := []User{}
	for _, u := range m.users {
		if u.Id == params.ExcludeId {
			continue
		}
		if strings.Contains(strings.ToLower(u.Username), q) || strings.Contains(u.ContactInfo, params.Query) {
			out = append(out, u)
		}
	}
	slices.SortFunc(out, func(a, b User) int {
		if c := strings.Compare(a.Username, b.Username); c != 0 {
			return c
		}
		return strings.Compare(a.Id, b.Id)
	})
	if params.Limit > 0 && len(out) > params.Limit {
		out = out[:params.Limit]
	}

	return out, nil
}

func (m *MemoryIdentityRepository) AddFriend(ctx context.Context, userId, friendId string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	_, okA := m.users[userId]
	_, okB := m.users[friendId]
	if !okA || !okB {
		return sql.ErrNoRows
	}
	if _, dup := m.friends[userId][friendId]; dup {
		return ErrDuplicateFriend
	}

	m.link(userId, friendId)
	m.link(friendId, userId)

	return nil
}

func (m *MemoryIdentityRepository) RemoveFriend(ctx context.Context, userId, friendId string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	_, okA := m.users[userId]
	_, okB := m.users[friendId]
	if !okA || !okB {
		return sql.ErrNoRows
	}

	delete(m.friends[userId], friendId)
	delete(m.friends[friendId], userId)

	return nil
}

func (m *MemoryIdentityRepository) AreFriends(ctx context.Context, userId, friendId string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.friends[userId][friendId]
	return ok, nil
}

func (m *MemoryIdentityRepository) link(from, to string) {
	set, ok := m.friends[from]
	if !ok {
		set = make(map[string]struct{})
		m.friends[from] = set
	}
	set[to] = struct{}{}
}

func (m *MemoryIdentityRepository) FriendsOf(ctx context.Context, userId string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	friends := make([]string, 0, len(m.friends[userId]))
	for id := range m.friends[userId] {
		friends = append(friends, id)
	}
	slices.Sort(friends)

	return friends, nil
}

func (m *MemoryIdentityRepository) Close() error {
	return nil
}
