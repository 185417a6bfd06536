// Package chatclient is the client side of a direct-message conversation:
// HTTP and live-channel transports plus the session state machine that
// merges optimistic local state with server-confirmed records.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pinchat/backend/internal/models"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("server returned status %d", e.Status)
}

type errorResponse struct {
	Error string `json:"error"`
}

// RESTClient talks to the messaging HTTP API on behalf of one user.
type RESTClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewRESTClient creates a client that authenticates with token.
func NewRESTClient(baseURL, token string) *RESTClient {
	return &RESTClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// ListMessages calls GET /messages/:peerId.
func (c *RESTClient) ListMessages(ctx context.Context, peerID string) ([]models.Message, error) {
	var history []models.Message
	if err := c.do(ctx, http.MethodGet, "/messages/"+url.PathEscape(peerID), nil, http.StatusOK, &history); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return history, nil
}

// SendMessage calls POST /messages with already-encoded content.
func (c *RESTClient) SendMessage(ctx context.Context, receiverID, ciphertext string) (*models.Message, error) {
	req := map[string]string{"receiverId": receiverID, "content": ciphertext}
	var msg models.Message
	if err := c.do(ctx, http.MethodPost, "/messages", req, http.StatusCreated, &msg); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return &msg, nil
}

// DeleteMessage calls DELETE /messages/:id.
func (c *RESTClient) DeleteMessage(ctx context.Context, messageID string) error {
	if err := c.do(ctx, http.MethodDelete, "/messages/"+url.PathEscape(messageID), nil, http.StatusNoContent, nil); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// Presence calls GET /presence/:userId.
func (c *RESTClient) Presence(ctx context.Context, userID string) (*models.UserProfile, error) {
	var profile models.UserProfile
	if err := c.do(ctx, http.MethodGet, "/presence/"+url.PathEscape(userID), nil, http.StatusOK, &profile); err != nil {
		return nil, fmt.Errorf("get presence: %w", err)
	}
	return &profile, nil
}

// BatchStatus calls POST /presence/status/batch.
func (c *RESTClient) BatchStatus(ctx context.Context, userIDs []string) (map[string]models.UserStatus, error) {
	req := map[string][]string{"userIds": userIDs}
	out := make(map[string]models.UserStatus)
	if err := c.do(ctx, http.MethodPost, "/presence/status/batch", req, http.StatusOK, &out); err != nil {
		return nil, fmt.Errorf("batch status: %w", err)
	}
	return out, nil
}

// Heartbeat calls PUT /presence/heartbeat.
func (c *RESTClient) Heartbeat(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPut, "/presence/heartbeat", nil, http.StatusNoContent, nil); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	return nil
}

func (c *RESTClient) do(ctx context.Context, method, path string, in any, want int, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		respBody, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{Status: resp.StatusCode}
		var errResp errorResponse
		if json.Unmarshal(respBody, &errResp) == nil {
			apiErr.Message = errResp.Error
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
