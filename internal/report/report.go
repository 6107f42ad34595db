// Package report posts job status updates and completion records to the
// request's service endpoint.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/withObsrvr/transform-worker/internal/logging"
)

// StatusCode is the lifecycle state carried by a status update.
type StatusCode string

const (
	StatusStart    StatusCode = "start"
	StatusRetry    StatusCode = "retry"
	StatusComplete StatusCode = "complete"
	StatusFailure  StatusCode = "failure"
)

// File completion statuses.
const (
	FileSuccess = "success"
	FileFailure = "failure"
)

// FileCompleteRecord is the final per-file report.
type FileCompleteRecord struct {
	FilePath    string  `json:"file-path"`
	FileID      string  `json:"file-id"`
	Status      string  `json:"status"` // "success" | "failure"
	NumMessages int     `json:"num-messages"`
	TotalTime   float64 `json:"total-time"`
	TotalEvents int64   `json:"total-events"`
	TotalBytes  int64   `json:"total-bytes"`
}

// Reporter is the status-reporting collaborator seen by the job executor.
type Reporter interface {
	PostStatusUpdate(ctx context.Context, fileID string, code StatusCode, info string) error
	PutFileComplete(ctx context.Context, rec FileCompleteRecord) error
}

// Factory builds a Reporter for the endpoint named by one request.
type Factory func(endpoint string) Reporter

// Client reports over HTTP to a service endpoint.
type Client struct {
	endpoint string
	client   *http.Client
	log      *slog.Logger
}

// NewClient creates a reporter for the given endpoint.
func NewClient(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: logging.Component("reporter"),
	}
}

type statusUpdate struct {
	FileID string     `json:"file-id"`
	Status StatusCode `json:"status"`
	Info   string     `json:"info"`
}

// PostStatusUpdate posts one lifecycle status for a file.
func (c *Client) PostStatusUpdate(ctx context.Context, fileID string, code StatusCode, info string) error {
	c.log.Debug("posting status", "file_id", fileID, "status", string(code))
	return c.send(ctx, http.MethodPost, c.endpoint+"/status", statusUpdate{
		FileID: fileID,
		Status: code,
		Info:   info,
	})
}

// PutFileComplete reports the terminal outcome for a file.
func (c *Client) PutFileComplete(ctx context.Context, rec FileCompleteRecord) error {
	c.log.Debug("posting completion record", "file_id", rec.FileID, "status", rec.Status)
	return c.send(ctx, http.MethodPut, c.endpoint+"/file-complete", rec)
}

func (c *Client) send(ctx context.Context, method, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	respBody, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("%s %s: http %d: %s", method, url, resp.StatusCode, string(respBody))
}
