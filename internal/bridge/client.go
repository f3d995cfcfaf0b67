// Package bridge is the typed HTTP client over the WhatsApp Bridge API
// (C3). The Bridge is a separate process reached over the network, never
// embedded directly.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client wraps an *http.Client pointed at the Bridge's base URL. It is safe
// for concurrent use and is constructed once at startup.
type Client struct {
	baseURL string
	http    *http.Client
}

// New constructs a Client with the given default per-call timeout.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) (*http.Response, []byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal bridge payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, nil, fmt.Errorf("build bridge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 && out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp, respBody, fmt.Errorf("decode bridge response: %w", err)
		}
	}

	return resp, respBody, nil
}

// HealthCheck reports the Bridge's own health status.
func (c *Client) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	var status HealthStatus
	_, _, err := c.do(ctx, http.MethodGet, "/health", nil, &status)
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// CreateSession asks the Bridge to create a new session, which starts in
// qr_pending.
func (c *Client) CreateSession(ctx context.Context, sessionID, webhookURL string) (*SessionStatus, error) {
	var status SessionStatus
	resp, body, err := c.do(ctx, http.MethodPost, "/sessions",
		createSessionRequest{SessionID: sessionID, WebhookURL: webhookURL}, &status)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusConflict {
		return nil, fmt.Errorf("%w: session %s already exists", ErrSession, sessionID)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: failed to create session: %s", ErrSession, string(body))
	}
	return &status, nil
}

func (c *Client) GetSessionStatus(ctx context.Context, sessionID string) (*SessionStatus, error) {
	var status SessionStatus
	resp, body, err := c.do(ctx, http.MethodGet, "/sessions/"+sessionID, nil, &status)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: session %s not found", ErrSession, sessionID)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: failed to get session status: %s", ErrSession, string(body))
	}
	return &status, nil
}

func (c *Client) GetQRCode(ctx context.Context, sessionID string) (*QRCodeResponse, error) {
	var qr QRCodeResponse
	resp, body, err := c.do(ctx, http.MethodGet, "/sessions/"+sessionID+"/qr", nil, &qr)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: session %s not found", ErrSession, sessionID)
	case http.StatusBadRequest:
		return nil, fmt.Errorf("%w: session already connected", ErrSession)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: failed to get QR code: %s", ErrSession, string(body))
	}
	return &qr, nil
}

// SendMessage sends a text message. recipient is normalized to carry the
// @s.whatsapp.net suffix if missing.
func (c *Client) SendMessage(ctx context.Context, sessionID, recipient, content, quotedMessageID string) (*SendMessageResponse, error) {
	recipient = normalizeRecipient(recipient)

	var out SendMessageResponse
	resp, body, err := c.do(ctx, http.MethodPost, "/sessions/"+sessionID+"/messages",
		sendMessageRequest{
			SessionID:       sessionID,
			RecipientJID:    recipient,
			Content:         content,
			QuotedMessageID: quotedMessageID,
		}, &out)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: session %s not found", ErrSession, sessionID)
	case http.StatusBadRequest:
		return nil, fmt.Errorf("%w: session not connected", ErrSession)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: failed to send message: %s", ErrBridge, string(body))
	}
	return &out, nil
}

// DeleteSession deletes/disconnects a session. Returns false (not an error)
// when the session was already gone.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	resp, body, err := c.do(ctx, http.MethodDelete, "/sessions/"+sessionID, nil, nil)
	if err != nil {
		return false, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("%w: failed to delete session: %s", ErrSession, string(body))
	}
	return true, nil
}

func (c *Client) ListSessions(ctx context.Context) ([]SessionStatus, error) {
	var sessions []SessionStatus
	_, _, err := c.do(ctx, http.MethodGet, "/sessions", nil, &sessions)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func normalizeRecipient(recipient string) string {
	if strings.HasSuffix(recipient, "@s.whatsapp.net") {
		return recipient
	}
	return recipient + "@s.whatsapp.net"
}
