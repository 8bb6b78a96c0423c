package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fr0stylo/integrationgw/internal/app/ports"
	"github.com/fr0stylo/integrationgw/internal/credentials"
	"github.com/fr0stylo/integrationgw/internal/gateway"
)

func newPlatformsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "platforms",
		Short: "Inspect the platform catalog",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List enabled platforms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			registry, err := gateway.LoadRegistry(cfg.Platforms)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tAUTH\tEVENTS\tFORMATS")
			for _, p := range registry.List() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					p.ID, p.Name, p.AuthMode,
					strings.Join(p.WebhookEvents, ","),
					strings.Join(p.ExportFormats, ","),
				)
			}
			return w.Flush()
		},
	})
	return cmd
}

func newEventsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect and retry stored webhook events",
	}

	var filter ports.EventFilter
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			gw, err := c.openGateway(cmd.Context())
			if err != nil {
				return err
			}
			defer closeGateway(gw)

			events, err := gw.Ingest.Events(cmd.Context(), filter)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSOURCE\tTYPE\tRECEIVED\tPROCESSED\tRETRIES\tVERIFICATION")
			for _, e := range events {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%d\t%s\n",
					e.ID, e.Source, e.Type, e.Timestamp.Format(time.RFC3339), e.Processed, e.RetryCount, e.Verification)
			}
			return w.Flush()
		},
	}
	list.Flags().StringVar(&filter.Source, "source", "", "only events from this platform")
	list.Flags().StringVar(&filter.Type, "type", "", "only events of this type")
	list.Flags().BoolVar(&filter.UnprocessedOnly, "unprocessed", false, "only events not yet processed")
	list.Flags().IntVar(&filter.Limit, "limit", 50, "maximum number of events")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print one event as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, err := c.openGateway(cmd.Context())
			if err != nil {
				return err
			}
			defer closeGateway(gw)

			event, err := gw.Ingest.Event(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(event)
		},
	}

	var all bool
	var batch int
	retry := &cobra.Command{
		Use:   "retry [id]",
		Short: "Re-run handlers for one event or every retryable event",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return errors.New("pass an event id or --all")
			}
			gw, err := c.openGateway(cmd.Context())
			if err != nil {
				return err
			}
			defer closeGateway(gw)

			if all {
				summary, err := gw.Ingest.RetryPending(cmd.Context(), batch)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "attempted=%d succeeded=%d failed=%d\n", summary.Attempted, summary.Succeeded, summary.Failed)
				return nil
			}
			result, err := gw.Ingest.Retry(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "success=%t message=%q actions=%s\n", result.Success, result.Message, strings.Join(result.Actions, ","))
			if len(result.Errors) > 0 {
				return fmt.Errorf("handler errors: %s", strings.Join(result.Errors, "; "))
			}
			return nil
		},
	}
	retry.Flags().BoolVar(&all, "all", false, "retry every retryable event")
	retry.Flags().IntVar(&batch, "batch", 100, "maximum events retried with --all")

	cmd.AddCommand(list, show, retry)
	return cmd
}

func newCredentialsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Inspect stored platform credentials",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the connection status of every platform",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			gw, err := c.openGateway(cmd.Context())
			if err != nil {
				return err
			}
			defer closeGateway(gw)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PLATFORM\tSTATUS")
			for _, id := range gw.Registry.IDs() {
				status, err := gw.Auth.Status(id)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%s\n", id, status)
			}
			return w.Flush()
		},
	})
	return cmd
}

func newKeygenCmd(_ *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a GATEWAY_CREDENTIALS_KEY value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sealer, err := credentials.GenerateAgeSealer()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sealer.SecretKey())
			return nil
		},
	}
}

func closeGateway(gw *gateway.Gateway) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = gw.Close(ctx)
}
