package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fr0stylo/integrationgw/internal/app/services"
	"github.com/fr0stylo/integrationgw/internal/webhooks/custom"
	"github.com/fr0stylo/integrationgw/pkg/eventpublisher"
)

type sendOptions struct {
	url       string
	eventType string
	secret    string
	data      string
	file      string
	timeout   time.Duration
}

func newWebhookCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Send internal webhook events",
	}

	var opts sendOptions
	send := &cobra.Command{
		Use:   "send",
		Short: "Sign and post an internal event to the gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if opts.url == "" {
				opts.url = cfg.Server.PublicURL
			}
			if opts.secret == "" {
				opts.secret = cfg.Webhooks.InternalSecret
			}
			body, err := opts.body()
			if err != nil {
				return err
			}
			return sendInternalEvent(cmd.OutOrStdout(), &http.Client{Timeout: opts.timeout}, opts, body)
		},
	}
	send.Flags().StringVar(&opts.url, "url", "", "gateway base URL (defaults to GATEWAY_PUBLIC_URL)")
	send.Flags().StringVar(&opts.eventType, "type", custom.ProjectUpdated, "internal event type")
	send.Flags().StringVar(&opts.secret, "secret", "", "signing secret (defaults to GATEWAY_INTERNAL_WEBHOOK_SECRET)")
	send.Flags().StringVar(&opts.data, "data", "", "inline JSON payload")
	send.Flags().StringVar(&opts.file, "file", "", "path to a JSON payload, - for stdin")
	send.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout")

	cmd.AddCommand(send)
	return cmd
}

func (o sendOptions) body() ([]byte, error) {
	var raw []byte
	switch {
	case o.data != "" && o.file != "":
		return nil, errors.New("use either --data or --file")
	case o.data != "":
		raw = []byte(o.data)
	case o.file == "-":
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		raw = b
	case o.file != "":
		b, err := os.ReadFile(o.file)
		if err != nil {
			return nil, fmt.Errorf("read payload: %w", err)
		}
		raw = b
	default:
		return nil, errors.New("a payload is required (--data or --file)")
	}
	if !json.Valid(raw) {
		return nil, errors.New("payload is not valid JSON")
	}
	return raw, nil
}

func sendInternalEvent(out io.Writer, client *http.Client, opts sendOptions, body []byte) error {
	if strings.TrimSpace(opts.url) == "" {
		return errors.New("gateway URL is required")
	}
	request, err := http.NewRequest(http.MethodPost, strings.TrimRight(opts.url, "/")+"/webhooks", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set(custom.EventHeader, opts.eventType)
	request.Header.Set(custom.DeliveryHeader, uuid.NewString())
	if opts.secret != "" {
		request.Header.Set(custom.SignatureHeader, custom.SignaturePrefix+services.Sign(opts.secret, body))
	}

	resp, err := client.Do(request)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	fmt.Fprintf(out, "Webhook status: %s (event %s)\n", resp.Status, resp.Header.Get("X-Webhook-Event-Id"))
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("webhook failed: %s", strings.TrimSpace(string(payload)))
	}
	fmt.Fprintln(out, strings.TrimSpace(string(payload)))
	return nil
}

func newDeliveryCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delivery",
		Short: "Publish delivery facts to the dashboard",
	}

	var (
		event   eventpublisher.Event
		timeout time.Duration
	)
	publish := &cobra.Command{
		Use:   "publish",
		Short: "Publish a CDEvents service event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			client := eventpublisher.Client{
				Endpoint: cfg.Delivery.Endpoint,
				Token:    cfg.Delivery.Token,
				Secret:   cfg.Delivery.Secret,
				Timeout:  timeout,
			}
			if !client.Enabled() {
				return errors.New("DDASH_ENDPOINT, DDASH_AUTH_TOKEN and DDASH_WEBHOOK_SECRET are required")
			}
			resolved, err := client.Publish(cmd.Context(), event)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Published %s for service=%s env=%s\n", resolved, event.Service, event.Environment)
			return nil
		},
	}
	publish.Flags().StringVar(&event.Type, "type", "service.deployed", "event type")
	publish.Flags().StringVar(&event.Service, "service", "", "service name")
	publish.Flags().StringVar(&event.Environment, "environment", "", "environment")
	publish.Flags().StringVar(&event.Artifact, "artifact", "", "artifact id (optional)")
	publish.Flags().StringVar(&event.Platform, "platform", "", "originating platform (optional)")
	publish.Flags().StringVar(&event.Source, "source", "", "event source (optional)")
	publish.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")

	cmd.AddCommand(publish)
	return cmd
}
