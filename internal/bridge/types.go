package bridge

import "time"

type SessionStatus struct {
	SessionID   string     `json:"session_id"`
	Status      string     `json:"status"`
	PhoneNumber string     `json:"phone_number,omitempty"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

type QRCodeResponse struct {
	QRCode  string `json:"qr_code"`
	Timeout int    `json:"timeout"`
}

type sendMessageRequest struct {
	SessionID        string `json:"session_id"`
	RecipientJID     string `json:"recipient_jid"`
	Content          string `json:"content"`
	QuotedMessageID  string `json:"quoted_message_id,omitempty"`
}

type SendMessageResponse struct {
	MessageID string    `json:"message_id"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
}

type createSessionRequest struct {
	SessionID  string `json:"session_id"`
	WebhookURL string `json:"webhook_url,omitempty"`
}

type HealthStatus struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
