package domain

import (
	"log/slog"
	"time"
)

// Credentials holds one platform's authentication material.
type Credentials struct {
	AccessToken   string     `json:"accessToken,omitempty"`
	RefreshToken  string     `json:"refreshToken,omitempty"`
	APIKey        string     `json:"apiKey,omitempty"`
	SecretKey     string     `json:"secretKey,omitempty"`
	WebhookSecret string     `json:"webhookSecret,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
}

// Usable reports whether exactly one of access token or API key is set.
func (c Credentials) Usable() bool {
	return (c.AccessToken != "") != (c.APIKey != "")
}

// BearerToken returns the value for the Authorization header.
func (c Credentials) BearerToken() string {
	if c.AccessToken != "" {
		return c.AccessToken
	}
	return c.APIKey
}

// LogValue redacts secret material from log output.
func (c Credentials) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Bool("access_token", c.AccessToken != ""),
		slog.Bool("refresh_token", c.RefreshToken != ""),
		slog.Bool("api_key", c.APIKey != ""),
		slog.Bool("webhook_secret", c.WebhookSecret != ""),
	}
	if c.ExpiresAt != nil {
		attrs = append(attrs, slog.Time("expires_at", *c.ExpiresAt))
	}
	return slog.GroupValue(attrs...)
}

// Clone returns a deep copy.
func (c Credentials) Clone() Credentials {
	if c.ExpiresAt != nil {
		expiresAt := *c.ExpiresAt
		c.ExpiresAt = &expiresAt
	}
	return c
}

// ConnectionStatus is derived from credential state only.
type ConnectionStatus string

const (
	// StatusConnected indicates usable, unexpired credentials.
	StatusConnected ConnectionStatus = "connected"
	// StatusExpired indicates stored credentials past their expiry.
	StatusExpired ConnectionStatus = "expired"
	// StatusDisconnected indicates no stored credentials.
	StatusDisconnected ConnectionStatus = "disconnected"
)

// SourceInternal identifies events emitted by the host application itself.
const SourceInternal = "internal"

// SourceUnknown is recorded for requests no platform header matched.
const SourceUnknown = "unknown"

// EventTypeUnknown is recorded when the event type header is empty.
const EventTypeUnknown = "unknown"

// Verification outcomes stored with each webhook event.
const (
	VerificationVerified     = "verified"
	VerificationUnsigned     = "unsigned"
	VerificationFailed       = "failed"
	VerificationUnidentified = "unidentified"
)

// WebhookEvent is one persisted inbound webhook.
type WebhookEvent struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Source        string    `json:"source"`
	Timestamp     time.Time `json:"timestamp"`
	Payload       string    `json:"payload"`
	Signature     string    `json:"signature,omitempty"`
	Processed     bool      `json:"processed"`
	RetryCount    int       `json:"retryCount"`
	ProcessingLog []string  `json:"processingLog"`
	Verification  string    `json:"verification"`
	DeliveryID    string    `json:"deliveryId,omitempty"`
}

// Log appends one processing log entry.
func (e *WebhookEvent) Log(entry string) {
	e.ProcessingLog = append(e.ProcessingLog, entry)
}

// ProcessingResult is returned to the webhook sender.
type ProcessingResult struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Actions []string `json:"actions"`
	Errors  []string `json:"errors,omitempty"`
}

// AppRecord is the canonical shape of a platform app or deployment.
type AppRecord struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Framework     string         `json:"framework"`
	DeploymentURL string         `json:"deploymentUrl,omitempty"`
	LastUpdate    time.Time      `json:"lastUpdate"`
	Status        string         `json:"status"`
	SourceRepoURL string         `json:"sourceRepositoryUrl,omitempty"`
	Platform      string         `json:"platform"`
	Raw           map[string]any `json:"raw,omitempty"`
}

// WebhookRegistration describes a webhook created on a platform.
type WebhookRegistration struct {
	Platform    string   `json:"platform"`
	ID          string   `json:"id,omitempty"`
	CallbackURL string   `json:"callbackUrl"`
	Events      []string `json:"events"`
	Dropped     []string `json:"dropped,omitempty"`
}
