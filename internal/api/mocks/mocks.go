package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/api"
	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/domain/queue"
)

// Client is a mock for api.Client.
type Client struct {
	mock.Mock
}

func (m *Client) StartActivity(ctx context.Context, req api.StartActivityRequest) (*api.StartActivityResponse, error) {
	args := m.Called(ctx, req)
	if resp, ok := args.Get(0).(*api.StartActivityResponse); ok {
		return resp, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Client) EndActivity(ctx context.Context, req api.EndActivityRequest) (*api.EndActivityResponse, error) {
	args := m.Called(ctx, req)
	if resp, ok := args.Get(0).(*api.EndActivityResponse); ok {
		return resp, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Client) GetActivity(ctx context.Context, ownerID, activityID string) (*api.Activity, error) {
	args := m.Called(ctx, ownerID, activityID)
	if act, ok := args.Get(0).(*api.Activity); ok {
		return act, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Client) RemoveTimeout(ctx context.Context, ownerID, activityID string) error {
	args := m.Called(ctx, ownerID, activityID)
	return args.Error(0)
}

func (m *Client) SubmitOfflineActivity(ctx context.Context, payload queue.ActivityPayload) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}

func (m *Client) UploadMedia(ctx context.Context, ownerID, path string) (string, error) {
	args := m.Called(ctx, ownerID, path)
	return args.String(0), args.Error(1)
}

func (m *Client) AddScreenshot(ctx context.Context, ownerID, activityID, mediaID string) error {
	args := m.Called(ctx, ownerID, activityID, mediaID)
	return args.Error(0)
}

func (m *Client) Health(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
