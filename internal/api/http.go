package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/domain/queue"
)

// HTTPClient implements Client over the backend's REST endpoints.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPClient creates a backend client.
func NewHTTPClient(baseURL, token string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (c *HTTPClient) StartActivity(ctx context.Context, req StartActivityRequest) (*StartActivityResponse, error) {
	var resp StartActivityResponse
	if err := c.postJSON(ctx, "/api/activity/start", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) EndActivity(ctx context.Context, req EndActivityRequest) (*EndActivityResponse, error) {
	var resp EndActivityResponse
	if err := c.postJSON(ctx, "/api/activity/end", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) GetActivity(ctx context.Context, ownerID, activityID string) (*Activity, error) {
	req := struct {
		OwnerID    string `json:"ownerId"`
		ActivityID string `json:"activityId"`
	}{ownerID, activityID}

	var resp Activity
	if err := c.postJSON(ctx, "/api/activity/get", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) RemoveTimeout(ctx context.Context, ownerID, activityID string) error {
	req := struct {
		OwnerID    string `json:"ownerId"`
		ActivityID string `json:"activityId"`
	}{ownerID, activityID}

	return c.postJSON(ctx, "/api/activity/timeout/remove", req, nil)
}

func (c *HTTPClient) SubmitOfflineActivity(ctx context.Context, payload queue.ActivityPayload) error {
	return c.postJSON(ctx, "/api/activity/offline", payload, nil)
}

func (c *HTTPClient) UploadMedia(ctx context.Context, ownerID, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open screenshot: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("copy screenshot: %w", err)
	}
	if err := writer.WriteField("ownerId", ownerID); err != nil {
		return "", fmt.Errorf("write owner field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/media/upload", &body)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.token)

	var resp struct {
		MediaID string `json:"mediaId"`
	}
	if err := c.do(req, &resp); err != nil {
		return "", err
	}
	return resp.MediaID, nil
}

func (c *HTTPClient) AddScreenshot(ctx context.Context, ownerID, activityID, mediaID string) error {
	req := struct {
		OwnerID    string `json:"ownerId"`
		ActivityID string `json:"activityId"`
		MediaID    string `json:"mediaId"`
	}{ownerID, activityID, mediaID}

	return c.postJSON(ctx, "/api/activity/screenshot", req, nil)
}

func (c *HTTPClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	return c.do(req, nil)
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	return c.do(req, out)
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func readErrorMessage(body io.Reader) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(body, 4096)).Decode(&payload); err != nil {
		return ""
	}
	return payload.Message
}
