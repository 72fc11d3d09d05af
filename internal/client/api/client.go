package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/SofieTorch/cbba-mobility/internal/recording"
)

// StatusError is a non-2xx response from the recording service.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote responded %d: %s", e.StatusCode, e.Message)
}

// IsConflict reports whether the error is the server refusing an operation
// because the session already left in_progress. Conflicts are not
// retryable; the server closed the session through another path.
func IsConflict(err error) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusErr.StatusCode == http.StatusConflict
}

// Client is a typed HTTP client for the recording service. Every call is
// bounded by the configured timeout.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) StartSession(ctx context.Context, meta recording.SessionCreate) (recording.Session, error) {
	var session recording.Session
	err := c.post(ctx, "/recordings/", meta, &session)
	return session, err
}

func (c *Client) UploadLocationBatch(ctx context.Context, id string, points []recording.LocationPointInput) (recording.BatchResult, error) {
	var result recording.BatchResult
	err := c.post(ctx, "/recordings/"+id+"/locations/batch", recording.LocationBatch{Points: points}, &result)
	return result, err
}

func (c *Client) UploadSensorBatch(ctx context.Context, id string, readings []recording.SensorReadingInput) (recording.BatchResult, error) {
	var result recording.BatchResult
	err := c.post(ctx, "/recordings/"+id+"/sensors/batch", recording.SensorBatch{Readings: readings}, &result)
	return result, err
}

func (c *Client) EndSession(ctx context.Context, id string, req recording.EndRequest) (recording.Session, error) {
	var session recording.Session
	err := c.post(ctx, "/recordings/"+id+"/end", req, &session)
	return session, err
}

func (c *Client) CancelSession(ctx context.Context, id string) (recording.Session, error) {
	var session recording.Session
	err := c.post(ctx, "/recordings/"+id+"/cancel", nil, &session)
	return session, err
}

func (c *Client) ResumeSession(ctx context.Context, id string) (recording.Session, error) {
	var session recording.Session
	err := c.post(ctx, "/recordings/"+id+"/resume", nil, &session)
	return session, err
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Message: string(message)}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
