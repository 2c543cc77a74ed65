package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fleetconf/shepherd/pkg/client"
)

var getCmd = &cobra.Command{
	Use:   "get [components|configurations|sessions|options]",
	Short: "List resources from a running service",
	Long: `List resources from a running Shepherd service.

Examples:
  # List components that failed configuration
  shepherd get components --filter status=failed

  # List sessions
  shepherd get sessions --server http://cfg.internal:8080`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

func init() {
	getCmd.Flags().String("server", "http://localhost:8080", "Service address")
	getCmd.Flags().StringArray("filter", nil, "Filter as key=value (repeatable)")
	getCmd.Flags().String("limit", "", "Page size")

	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	server, _ := cmd.Flags().GetString("server")
	filters, _ := cmd.Flags().GetStringArray("filter")
	limit, _ := cmd.Flags().GetString("limit")

	query := url.Values{}
	for _, f := range filters {
		k, v, ok := strings.Cut(f, "=")
		if !ok || k == "" {
			return fmt.Errorf("invalid filter %q, expected key=value", f)
		}
		query.Set(k, v)
	}
	if limit != "" {
		query.Set("limit", limit)
	}

	c := client.New(server)
	ctx := context.Background()
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	defer w.Flush()

	switch args[0] {
	case "components":
		page, err := c.ListComponents(ctx, query)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "ID\tDESIRED CONFIG\tSTATUS\tENABLED\tERRORS")
		for _, comp := range page.Components {
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%d\n",
				comp.ID, comp.DesiredConfig, comp.Status, comp.Enabled, comp.ErrorCount)
		}
		printNext(page.Next)
	case "configurations":
		page, err := c.ListConfigurations(ctx, query)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "NAME\tLAYERS\tLAST UPDATED")
		for _, cfg := range page.Configurations {
			fmt.Fprintf(w, "%s\t%d\t%s\n", cfg.Name, len(cfg.Layers), cfg.LastUpdated)
		}
		printNext(page.Next)
	case "sessions":
		page, err := c.ListSessions(ctx, query)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "NAME\tCONFIGURATION\tSTATUS\tSUCCEEDED")
		for _, sess := range page.Sessions {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				sess.Name, sess.Configuration, sess.Status.Status, sess.Status.Succeeded)
		}
		printNext(page.Next)
	case "options":
		opts, err := c.GetOptions(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "batch_size\t%d\n", opts.BatchSize)
		fmt.Fprintf(w, "batch_window\t%d\n", opts.BatchWindow)
		fmt.Fprintf(w, "batcher_check_interval\t%d\n", opts.BatcherCheckInterval)
		fmt.Fprintf(w, "default_batcher_retry_policy\t%d\n", opts.DefaultBatcherRetryPolicy)
		fmt.Fprintf(w, "default_playbook\t%s\n", opts.DefaultPlaybook)
		fmt.Fprintf(w, "default_page_size\t%d\n", opts.DefaultPageSize)
		fmt.Fprintf(w, "session_ttl\t%s\n", opts.SessionTTL)
		fmt.Fprintf(w, "logging_level\t%s\n", opts.LoggingLevel)
	default:
		return fmt.Errorf("unknown resource type: %s", args[0])
	}
	return nil
}

func printNext(next string) {
	if next != "" {
		fmt.Printf("\nmore results available: --filter after=%s\n", next)
	}
}
