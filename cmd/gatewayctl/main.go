package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/fr0stylo/integrationgw/internal/config"
	"github.com/fr0stylo/integrationgw/internal/gateway"
	"github.com/fr0stylo/integrationgw/internal/observability"
)

type cli struct {
	out        io.Writer
	log        *slog.Logger
	loadConfig func() (config.Config, error)
}

func (c *cli) openGateway(ctx context.Context) (*gateway.Gateway, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return gateway.Build(ctx, cfg, c.log)
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "gatewayctl",
		Short:         "Operate the integration gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(c.out)
	root.AddCommand(
		newPlatformsCmd(c),
		newEventsCmd(c),
		newCredentialsCmd(c),
		newKeygenCmd(c),
		newWebhookCmd(c),
		newDeliveryCmd(c),
	)
	return root
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "error", err)
	}
	c := &cli{
		out:        os.Stdout,
		log:        observability.NewLogger(os.Stderr, slog.LevelWarn),
		loadConfig: config.LoadForTool,
	}
	if err := newRootCmd(c).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
