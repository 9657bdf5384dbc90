package database

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockChatRepository struct {
	mock.Mock
}

func (m *MockChatRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockChatRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (User, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) GetAccountById(ctx context.Context, id string) (User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) GetAccountByEmail(ctx context.Context, email string) (User, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) UpdatePresence(ctx context.Context, userId string, online bool, lastSeen time.Time) error {
	args := m.Called(ctx, userId, online, lastSeen)
	return args.Error(0)
}
func (m *MockChatRepository) LastSeen(ctx context.Context, userId string) (time.Time, bool, error) {
	args := m.Called(ctx, userId)
	return args.Get(0).(time.Time), args.Bool(1), args.Error(2)
}
