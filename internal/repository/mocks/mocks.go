package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/domain/queue"
	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/domain/session"
)

// SessionRepository is a mock for session.Repository.
type SessionRepository struct {
	mock.Mock
}

func (m *SessionRepository) Create(ctx context.Context, sess *session.Session) error {
	args := m.Called(ctx, sess)
	return args.Error(0)
}

func (m *SessionRepository) Get(ctx context.Context, id string) (*session.Session, error) {
	args := m.Called(ctx, id)
	if sess, ok := args.Get(0).(*session.Session); ok {
		return sess, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *SessionRepository) GetActive(ctx context.Context) (*session.Session, error) {
	args := m.Called(ctx)
	if sess, ok := args.Get(0).(*session.Session); ok {
		return sess, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *SessionRepository) Close(ctx context.Context, id string, endedAt time.Time) error {
	args := m.Called(ctx, id, endedAt)
	return args.Error(0)
}

func (m *SessionRepository) Prune(ctx context.Context, keep int) error {
	args := m.Called(ctx, keep)
	return args.Error(0)
}

// StateStore is a mock for session.StateStore.
type StateStore struct {
	mock.Mock
}

func (m *StateStore) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *StateStore) Set(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *StateStore) Delete(ctx context.Context, keys ...string) error {
	callArgs := make([]interface{}, 0, len(keys)+1)
	callArgs = append(callArgs, ctx)
	for _, key := range keys {
		callArgs = append(callArgs, key)
	}
	args := m.Called(callArgs...)
	return args.Error(0)
}

// QueueRepository is a mock for the pending-record store consumed by the
// accountant and the replay engine.
type QueueRepository struct {
	mock.Mock
}

func (m *QueueRepository) Enqueue(ctx context.Context, rec *queue.Record) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *QueueRepository) ListPending(ctx context.Context) ([]queue.Record, error) {
	args := m.Called(ctx)
	if records, ok := args.Get(0).([]queue.Record); ok {
		return records, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *QueueRepository) ListQuarantined(ctx context.Context) ([]queue.Record, error) {
	args := m.Called(ctx)
	if records, ok := args.Get(0).([]queue.Record); ok {
		return records, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *QueueRepository) Remove(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *QueueRepository) IncrementAttempts(ctx context.Context, id int64) (int, error) {
	args := m.Called(ctx, id)
	return args.Int(0), args.Error(1)
}

func (m *QueueRepository) Quarantine(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *QueueRepository) CountPending(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}
