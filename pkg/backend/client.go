// Package backend implements the HTTP client for the marketplace chat API:
// the persist-message RPC and the authoritative room history query.
package backend

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

	"chatsync/internal/errors"
	"chatsync/pkg/backend/types"

	"github.com/sirupsen/logrus"
)

type BackendClient struct {
	baseURL      string
	sessionToken string
	client       *http.Client
	logger       *logrus.Logger
}

func NewClient(baseURL, sessionToken string, httpClient *http.Client) types.Client {
	return NewClientWithLogger(baseURL, sessionToken, httpClient, nil)
}

func NewClientWithLogger(baseURL, sessionToken string, httpClient *http.Client, logger *logrus.Logger) types.Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}

	baseURL = strings.TrimSuffix(baseURL, "/")

	return &BackendClient{
		baseURL:      baseURL,
		sessionToken: sessionToken,
		client:       httpClient,
		logger:       logger,
	}
}

// PersistMessage issues the durable write for a composed message. A
// successful return only means the backend accepted the write; visibility
// to other participants is confirmed separately through the room feed.
func (c *BackendClient) PersistMessage(ctx context.Context, req types.PersistMessageRequest) (*types.MessageRecord, error) {
	endpoint := fmt.Sprintf("%s/v1/rooms/%s/messages", c.baseURL, url.PathEscape(req.ChatRoomID))

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"endpoint":       endpoint,
		"correlation_id": req.CorrelationID,
		"message_type":   req.MessageType,
	}).Debug("Sending persist-message request")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, errors.NewBackendError(endpoint, "", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, c.decodeError(endpoint, resp)
	}

	var record types.MessageRecord
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	// Reconciliation depends on the backend echoing the correlation id
	// verbatim; a mismatch would degrade matching to "never", duplicating
	// messages in the rendered view.
	if req.CorrelationID != "" && record.CorrelationID != req.CorrelationID {
		c.logger.WithFields(logrus.Fields{
			"sent_correlation_id":   req.CorrelationID,
			"echoed_correlation_id": record.CorrelationID,
		}).Warn("Backend did not echo correlation id verbatim")
	}

	return &record, nil
}

// ListMessages fetches the authoritative history for a room, newest rows
// last. The feed does not replay rows inserted before subscription, so this
// is the only source for pre-subscription history.
func (c *BackendClient) ListMessages(ctx context.Context, chatRoomID string, limit int) ([]types.MessageRecord, error) {
	endpoint := fmt.Sprintf("%s/v1/rooms/%s/messages", c.baseURL, url.PathEscape(chatRoomID))
	if limit > 0 {
		endpoint += fmt.Sprintf("?limit=%d", limit)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, errors.NewBackendError(endpoint, "", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.decodeError(endpoint, resp)
	}

	var result types.ListMessagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return result.Messages, nil
}

// HealthCheck verifies the backend is reachable.
func (c *BackendClient) HealthCheck(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/health", c.baseURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend health check failed: status %d", resp.StatusCode)
	}
	return nil
}

func (c *BackendClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.sessionToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.sessionToken)
	}
}

func (c *BackendClient) decodeError(endpoint string, resp *http.Response) error {
	bodyBytes, _ := io.ReadAll(resp.Body)

	var errResp types.ErrorResponse
	if err := json.Unmarshal(bodyBytes, &errResp); err != nil || errResp.Code == "" {
		return errors.NewBackendError(endpoint, "", resp.StatusCode,
			fmt.Errorf("backend API error: status %d, body: %s", resp.StatusCode, string(bodyBytes)))
	}

	return errors.NewBackendError(endpoint, errResp.Code, resp.StatusCode,
		fmt.Errorf("backend API error: %s: %s", errResp.Code, errResp.Message))
}
