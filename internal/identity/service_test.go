package identity

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/npezzotti/gochat-engine/internal/chaterr"
	"github.com/npezzotti/gochat-engine/internal/database"
	"github.com/npezzotti/gochat-engine/internal/testutil"
	"github.com/npezzotti/gochat-engine/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestResolveIdentity(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tcases := []struct {
		name    string
		userId  string
		dbUser  database.User
		dbErr   error
		kind    chaterr.Kind
		callsDb bool
	}{
		{
			name:    "found",
			userId:  "u1",
			dbUser:  database.User{Id: "u1", Username: "alice", CreatedAt: created},
			callsDb: true,
		},
		{
			name:    "not found",
			userId:  "u2",
			dbErr:   sql.ErrNoRows,
			kind:    chaterr.KindNotFound,
			callsDb: true,
		},
		{
			name:    "store down",
			userId:  "u3",
			dbErr:   errors.New("connection refused"),
			kind:    chaterr.KindUnavailable,
			callsDb: true,
		},
		{
			name:   "empty id",
			userId: "",
			kind:   chaterr.KindInvalidInput,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			repo := new(database.MockIdentityRepository)
			if tc.callsDb {
				repo.On("GetUser", mock.Anything, tc.userId).Return(tc.dbUser, tc.dbErr)
			}
			svc := NewService(repo, time.Second, testutil.TestLogger(t))

			u, err := svc.ResolveIdentity(context.Background(), tc.userId)
			if tc.kind != chaterr.KindInternal {
				assert.Equal(t, tc.kind, chaterr.KindOf(err))
			} else {
				require.NoError(t, err)
				assert.Equal(t, "u1", u.Id)
				assert.Equal(t, "alice", u.Username)
				assert.Equal(t, created, u.CreatedAt)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestResolveIdentityTimeout(t *testing.T) {
	repo := new(database.MockIdentityRepository)
	repo.On("GetUser", mock.Anything, "u1").
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(database.User{}, context.DeadlineExceeded)
	svc := NewService(repo, 10*time.Millisecond, testutil.TestLogger(t))

	_, err := svc.ResolveIdentity(context.Background(), "u1")

	assert.ErrorIs(t, err, chaterr.ErrUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResolveIdentitySharesConcurrentLookups(t *testing.T) {
	release := make(chan struct{})
	repo := new(database.MockIdentityRepository)
	defer repo.AssertExpectations(t)
	repo.On("GetUser", mock.Anything, "u1").
		Run(func(args mock.Arguments) { <-release }).
		Return(database.User{Id: "u1", Username: "alice"}, nil).
		Once()
	svc := NewService(repo, time.Second, testutil.TestLogger(t))

	var wg sync.WaitGroup
	results := make(chan string, 5)
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, err := svc.ResolveIdentity(context.Background(), "u1")
			if err == nil {
				results <- u.Username
			}
		}()
	}

	// let every caller join the in-flight lookup
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	got := 0
	for name := range results {
		assert.Equal(t, "alice", name)
		got++
	}
	assert.Equal(t, 5, got)
}

func TestRegisterIdentity(t *testing.T) {
	repo := new(database.MockIdentityRepository)
	repo.On("CreateUser", mock.Anything, database.CreateUserParams{Username: "Alice", ContactInfo: "a@example.com"}).
		Return(database.User{Id: "u1", Username: "Alice", ContactInfo: "a@example.com"}, nil)
	svc := NewService(repo, time.Second, testutil.TestLogger(t))

	u, err := svc.RegisterIdentity(context.Background(), " Alice ", " a@example.com ")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.Id)
	assert.Equal(t, "a@example.com", u.ContactInfo)

	_, err = svc.RegisterIdentity(context.Background(), "  ", "")
	assert.ErrorIs(t, err, chaterr.ErrInvalidInput)
	repo.AssertNumberOfCalls(t, "CreateUser", 1)
}

func TestRegisterIdentityStoreFailure(t *testing.T) {
	repo := new(database.MockIdentityRepository)
	repo.On("CreateUser", mock.Anything, mock.Anything).Return(database.User{}, errors.New("disk full"))
	svc := NewService(repo, time.Second, testutil.TestLogger(t))

	_, err := svc.RegisterIdentity(context.Background(), "Alice", "")
	assert.ErrorIs(t, err, chaterr.ErrUnavailable)
}

func TestAddFriend(t *testing.T) {
	tcases := []struct {
		name   string
		a, b   string
		dbErr  error
		callDb bool
		kind   chaterr.Kind
	}{
		{name: "ok", a: "u1", b: "u2", callDb: true},
		{name: "duplicate", a: "u1", b: "u2", dbErr: database.ErrDuplicateFriend, callDb: true, kind: chaterr.KindConflict},
		{name: "unknown user", a: "u1", b: "u9", dbErr: sql.ErrNoRows, callDb: true, kind: chaterr.KindNotFound},
		{name: "self", a: "u1", b: "u1", kind: chaterr.KindInvalidInput},
		{name: "missing id", a: "", b: "u1", kind: chaterr.KindInvalidInput},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			repo := new(database.MockIdentityRepository)
			if tc.callDb {
				repo.On("AddFriend", mock.Anything, tc.a, tc.b).Return(tc.dbErr)
			}
			svc := NewService(repo, time.Second, testutil.TestLogger(t))

			err := svc.AddFriend(context.Background(), tc.a, tc.b)
			if tc.kind == chaterr.KindInternal {
				assert.NoError(t, err)
			} else {
				assert.Equal(t, tc.kind, chaterr.KindOf(err))
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestFriendsOf(t *testing.T) {
	repo := database.NewMemoryIdentityRepository()
	svc := NewService(repo, 0, testutil.TestLogger(t))
	ctx := context.Background()

	alice, err := svc.RegisterIdentity(ctx, "alice", "")
	require.NoError(t, err)
	bob, err := svc.RegisterIdentity(ctx, "bob", "")
	require.NoError(t, err)
	require.NoError(t, svc.AddFriend(ctx, alice.Id, bob.Id))

	friends, err := svc.FriendsOf(ctx, bob.Id)
	require.NoError(t, err)
	assert.Equal(t, []string{alice.Id}, friends)

	assert.ErrorIs(t, svc.AddFriend(ctx, bob.Id, alice.Id), chaterr.ErrConflict)
	assert.NoError(t, svc.Ping(ctx))
}

func TestFriendsOfFailure(t *testing.T) {
	repo := new(database.MockIdentityRepository)
	repo.On("FriendsOf", mock.Anything, "u1").Return(nil, errors.New("timeout"))
	svc := NewService(repo, time.Second, testutil.TestLogger(t))

	_, err := svc.FriendsOf(context.Background(), "u1")
	assert.ErrorIs(t, err, chaterr.ErrUnavailable)
}

func TestRemoveFriend(t *testing.T) {
	tcases := []struct {
		name   string
		a, b   string
		dbErr  error
		callDb bool
		kind   chaterr.Kind
	}{
		{name: "ok", a: "u1", b: "u2", callDb: true},
		{name: "unknown user", a: "u1", b: "u9", dbErr: sql.ErrNoRows, callDb: true, kind: chaterr.KindNotFound},
		{name: "store down", a: "u1", b: "u2", dbErr: errors.New("connection reset"), callDb: true, kind: chaterr.KindUnavailable},
		{name: "missing id", a: "u1", b: "", kind: chaterr.KindInvalidInput},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			repo := new(database.MockIdentityRepository)
			if tc.callDb {
				repo.On("RemoveFriend", mock.Anything, tc.a, tc.b).Return(tc.dbErr)
			}
			svc := NewService(repo, time.Second, testutil.TestLogger(t))

			err := svc.RemoveFriend(context.Background(), tc.a, tc.b)
			if tc.kind == chaterr.KindInternal {
				assert.NoError(t, err)
			} else {
				assert.Equal(t, tc.kind, chaterr.KindOf(err))
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestFriendLifecycle(t *testing.T) {
	svc := NewService(database.NewMemoryIdentityRepository(), time.Second, testutil.TestLogger(t))
	ctx := context.Background()
	alice, _ := svc.RegisterIdentity(ctx, "alice", "")
	bob, _ := svc.RegisterIdentity(ctx, "bob", "")

	require.NoError(t, svc.AddFriend(ctx, alice.Id, bob.Id))
	ok, err := svc.AreFriends(ctx, bob.Id, alice.Id)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, svc.RemoveFriend(ctx, alice.Id, bob.Id))
	ok, err = svc.AreFriends(ctx, alice.Id, bob.Id)
	require.NoError(t, err)
	assert.False(t, ok)
	friends, err := svc.FriendsOf(ctx, bob.Id)
	require.NoError(t, err)
	assert.Empty(t, friends)

	_, err = svc.AreFriends(ctx, "", bob.Id)
	assert.ErrorIs(t, err, chaterr.ErrInvalidInput)
}

func TestSearchUsers(t *testing.T) {
	svc := NewService(database.NewMemoryIdentityRepository(), time.Second, testutil.TestLogger(t))
	ctx := context.Background()
	alice, _ := svc.RegisterIdentity(ctx, "Alice", "555-0100")
	bob, _ := svc.RegisterIdentity(ctx, "Bob", "555-0101")

	users, err := svc.SearchUsers(ctx, " 555 ", alice.Id)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, bob.Id, users[0].Id)

	_, err = svc.SearchUsers(ctx, "  ", "")
	assert.ErrorIs(t, err, chaterr.ErrInvalidInput)
}

func TestSearchUsersStoreFailure(t *testing.T) {
	repo := new(database.MockIdentityRepository)
	repo.On("SearchUsers", mock.Anything, database.SearchUsersParams{Query: "al", Limit: SearchLimit}).
		Return(nil, errors.New("timeout"))
	svc := NewService(repo, time.Second, testutil.TestLogger(t))

	_, err := svc.SearchUsers(context.Background(), "al", "")
	assert.ErrorIs(t, err, chaterr.ErrUnavailable)
	repo.AssertExpectations(t)
}

func TestFindByContact(t *testing.T) {
	svc := NewService(database.NewMemoryIdentityRepository(), time.Second, testutil.TestLogger(t))
	ctx := context.Background()
	alice, _ := svc.RegisterIdentity(ctx, "Alice", "555-0100")

	got, err := svc.FindByContact(ctx, " 555-0100 ")
	require.NoError(t, err)
	assert.Equal(t, alice.Id, got.Id)

	_, err = svc.FindByContact(ctx, "555-0199")
	assert.ErrorIs(t, err, chaterr.ErrNotFound)
	_, err = svc.FindByContact(ctx, "")
	assert.ErrorIs(t, err, chaterr.ErrInvalidInput)
}

func TestObserver(t *testing.T) {
	var seen []string
	svc := NewService(database.NewMemoryIdentityRepository(), time.Second, testutil.TestLogger(t),
		WithObserver(func(u types.User) { seen = append(seen, u.Username) }))
	ctx := context.Background()

	alice, err := svc.RegisterIdentity(ctx, "alice", "555-0100")
	require.NoError(t, err)
	_, err = svc.ResolveIdentity(ctx, alice.Id)
	require.NoError(t, err)
	_, err = svc.FindByContact(ctx, "555-0100")
	require.NoError(t, err)
	_, err = svc.ResolveIdentity(ctx, "missing")
	require.Error(t, err)

	assert.Equal(t, []string{"alice", "alice", "alice"}, seen)
}
