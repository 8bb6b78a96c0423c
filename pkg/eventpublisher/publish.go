package eventpublisher

import (
	"bytes"
	"cmp"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout = 10 * time.Second
	ingestPath     = "/webhooks/cdevents"
)

// ErrNotConfigured is returned when endpoint, token or secret is missing.
var ErrNotConfigured = errors.New("eventpublisher: endpoint, token and secret are required")

// Publish builds and posts event, returning the resolved CDEvents type.
func (c Client) Publish(ctx context.Context, event Event) (string, error) {
	if !c.trimmed().Enabled() {
		return "", ErrNotConfigured
	}
	body, resolvedType, err := BuildEventBody(event)
	if err != nil {
		return "", err
	}
	req, err := c.trimmed().signedRequest(ctx, body)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &RejectedError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
	}
	return resolvedType, nil
}

func (c Client) trimmed() Client {
	c.Endpoint = strings.TrimRight(strings.TrimSpace(c.Endpoint), "/")
	c.Token = strings.TrimSpace(c.Token)
	c.Secret = strings.TrimSpace(c.Secret)
	return c
}

func (c Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: cmp.Or(max(c.Timeout, 0), defaultTimeout)}
}

func (c Client) signedRequest(ctx context.Context, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint+ingestPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("X-Webhook-Signature", Sign(body, c.Secret))
	return req, nil
}

// RejectedError is returned when the dashboard answers with a non-2xx status.
type RejectedError struct {
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("webhook rejected: status=%d body=%s", e.StatusCode, e.Body)
}

// Temporary reports whether resending may succeed.
func (e *RejectedError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
