package handler_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"couplesync/backend/internal/chathub"
)

type MockSession struct {
	mock.Mock
}

func (m *MockSession) View() chathub.View {
	return m.Called().Get(0).(chathub.View)
}

func (m *MockSession) Send(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}

func (m *MockSession) SendImage(ctx context.Context, ref string) error {
	return m.Called(ctx, ref).Error(0)
}

func (m *MockSession) SendEmergency(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}

func (m *MockSession) TypingInput(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockSession) SetMood(ctx context.Context, value string) error {
	return m.Called(ctx, value).Error(0)
}

func (m *MockSession) SetStatus(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}

func (m *MockSession) CreateCapsule(ctx context.Context, message string, unlockAt time.Time) error {
	return m.Called(ctx, message, unlockAt).Error(0)
}

func (m *MockSession) OpenCapsule(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockSession) DeleteCapsule(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockSession) AddTodo(ctx context.Context, title string, dueAt *time.Time) error {
	return m.Called(ctx, title, dueAt).Error(0)
}

func (m *MockSession) ToggleTodo(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockSession) DeleteTodo(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockSession) SetAnniversary(ctx context.Context, start time.Time) error {
	return m.Called(ctx, start).Error(0)
}

func (m *MockSession) SetCycle(ctx context.Context, start time.Time) error {
	return m.Called(ctx, start).Error(0)
}
