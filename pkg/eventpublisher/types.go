// Package eventpublisher sends CDEvents delivery facts to a ddash compatible
// dashboard.
package eventpublisher

import (
	"net/http"
	"time"
)

// Client posts signed CDEvents bodies to Endpoint.
type Client struct {
	Endpoint   string
	Token      string
	Secret     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Event is a delivery fact. Type accepts the short form (service.deployed)
// or the full CDEvents type.
type Event struct {
	Type        string
	Source      string
	Service     string
	Environment string
	Artifact    string
	Platform    string
}

// Enabled reports whether the client has everything it needs to publish.
func (c Client) Enabled() bool {
	return c.Endpoint != "" && c.Token != "" && c.Secret != ""
}
