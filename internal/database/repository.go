package database

import (
	"context"
	"errors"
)

// ErrDuplicateFriend is returned by AddFriend when the two users are already
// friends. Lookups of unknown users return sql.ErrNoRows.
var ErrDuplicateFriend = errors.New("friendship already exists")

type IdentityRepository interface {
	Ping(ctx context.Context) error
	CreateUser(ctx context.Context, params CreateUserParams) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	// GetUserByContact returns the oldest user registered with contact.
	GetUserByContact(ctx context.Context, contact string) (User, error)
	SearchUsers(ctx context.Context, params SearchUsersParams) ([]User, error)
	AddFriend(ctx context.Context, userId, friendId string) error
	// RemoveFriend deletes the friendship in both directions. Removing a
	// friendship that does not exist is not an error.
	RemoveFriend(ctx context.Context, userId, friendId string) error
	AreFriends(ctx context.Context, userId, friendId string) (bool, error)
	FriendsOf(ctx context.Context, userId string) ([]string, error)
	Close() error
}

var (
	_ IdentityRepository = (*PgIdentityRepository)(nil)
	_ IdentityRepository = (*MemoryIdentityRepository)(nil)
	_ IdentityRepository = (*MockIdentityRepository)(nil)
)
