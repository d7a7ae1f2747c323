package database

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockIdentityRepository struct {
	mock.Mock
}

func (m *MockIdentityRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *MockIdentityRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockIdentityRepository) GetUser(ctx context.Context, id string) (User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockIdentityRepository) GetUserByContact(ctx context.Context, contact string) (User, error) {
	args := m.Called(ctx, contact)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockIdentityRepository) SearchUsers(ctx context.Context, params SearchUsersParams) ([]User, error) {
	args := m.Called(ctx, params)
	if users, ok := args.Get(0).([]User); ok {
		return users, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockIdentityRepository) RemoveFriend(ctx context.Context, userId, friendId string) error {
	args := m.Called(ctx, userId, friendId)
	return args.Error(0)
}
func (m *MockIdentityRepository) AreFriends(ctx context.Context, userId, friendId string) (bool, error) {
	args := m.Called(ctx, userId, friendId)
	return args.Bool(0), args.Error(1)
}
func (m *MockIdentityRepository) AddFriend(ctx context.Context, userId, friendId string) error {
	args := m.Called(ctx, userId, friendId)
	return args.Error(0)
}
func (m *MockIdentityRepository) FriendsOf(ctx context.Context, userId string) ([]string, error) {
	args := m.Called(ctx, userId)
	if friends, ok := args.Get(0).([]string); ok {
		return friends, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockIdentityRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}
