// Package syncclient is the HTTP transport for the sync engine. It
// speaks the focusflow-sync server's push protocol: one batched POST
// per sync round, acknowledged per operation as success, retryable
// failure, or a structured conflict carrying the remote's current
// payload and timestamp.
package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MMR-MINGriyue/focusflow/internal/syncengine"
)

// Sentinel errors for common HTTP error classes. ErrTransport marks
// network-level failures the sync engine counts against retry budgets.
var (
	ErrTransport    = errors.New("transport failure")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// Client is an HTTP client for the focusflow-sync server. It implements
// syncengine.Transport.
type Client struct {
	BaseURL  string
	APIKey   string
	DeviceID string
	HTTP     *http.Client
}

// New creates a sync client.
func New(baseURL, apiKey, deviceID string) *Client {
	return &Client{
		BaseURL:  baseURL,
		APIKey:   apiKey,
		DeviceID: deviceID,
		HTTP:     &http.Client{Timeout: 30 * time.Second},
	}
}

// HealthURL returns the endpoint a connectivity prober should poll.
func (c *Client) HealthURL() string {
	return c.BaseURL + "/healthz"
}

// --- Wire types ---

// pushRequest is the body for POST /v1/sync/push.
type pushRequest struct {
	DeviceID   string           `json:"device_id"`
	Operations []operationInput `json:"operations"`
}

// operationInput is a single operation in a push request.
type operationInput struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt string          `json:"enqueued_at"`
}

// pushResponse is the per-operation acknowledgement list.
type pushResponse struct {
	Results []ackResult `json:"results"`
}

// ackResult is one operation's acknowledgement.
type ackResult struct {
	OperationID     string          `json:"operation_id"`
	Status          string          `json:"status"` // "ok" | "failed" | "conflict"
	Error           string          `json:"error,omitempty"`
	RemotePayload   json.RawMessage `json:"remote_payload,omitempty"`
	RemoteTimestamp string          `json:"remote_timestamp,omitempty"`
}

// apiError is the standard error body from the server.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

// Send pushes one batch of operations. A non-nil error means the whole
// batch failed transport; otherwise every operation gets a Result.
func (c *Client) Send(ctx context.Context, ops []syncengine.Operation) ([]syncengine.Result, error) {
	req := pushRequest{DeviceID: c.DeviceID, Operations: make([]operationInput, 0, len(ops))}
	for _, op := range ops {
		req.Operations = append(req.Operations, operationInput{
			ID:         op.ID,
			Kind:       string(op.Kind),
			EntityType: op.EntityType,
			EntityID:   op.EntityID,
			Payload:    op.Payload,
			EnqueuedAt: op.EnqueuedAt.UTC().Format(time.RFC3339Nano),
		})
	}

	var resp pushResponse
	if err := c.do(ctx, "POST", "/v1/sync/push", req, &resp); err != nil {
		return nil, err
	}

	results := make([]syncengine.Result, 0, len(resp.Results))
	for _, ack := range resp.Results {
		r := syncengine.Result{OperationID: ack.OperationID}
		switch ack.Status {
		case "ok":
			r.Status = syncengine.ResultOK
		case "conflict":
			r.Status = syncengine.ResultConflict
			r.RemotePayload = ack.RemotePayload
			if ack.RemoteTimestamp != "" {
				ts, err := time.Parse(time.RFC3339Nano, ack.RemoteTimestamp)
				if err != nil {
					return nil, fmt.Errorf("parse remote timestamp %q: %w", ack.RemoteTimestamp, err)
				}
				r.RemoteTimestamp = ts
			}
		case "failed":
			r.Status = syncengine.ResultFailed
			r.Err = fmt.Errorf("remote: %s", ack.Error)
		default:
			return nil, fmt.Errorf("unknown ack status %q for op %s", ack.Status, ack.OperationID)
		}
		results = append(results, r)
	}
	return results, nil
}

// do executes an authenticated JSON request.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Code != "" {
			switch resp.StatusCode {
			case http.StatusUnauthorized:
				return fmt.Errorf("%w: %s", ErrUnauthorized, apiErr.Message)
			case http.StatusForbidden:
				return fmt.Errorf("%w: %s", ErrForbidden, apiErr.Message)
			default:
				return &apiErr
			}
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
