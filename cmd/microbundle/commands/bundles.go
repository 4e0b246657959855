package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/dyluth/microbundle/internal/batch"
	"github.com/dyluth/microbundle/internal/printer"
	"github.com/dyluth/microbundle/internal/timespec"
	"github.com/dyluth/microbundle/pkg/gep"
	"github.com/dyluth/microbundle/pkg/hub"
	"github.com/spf13/cobra"
)

func newBundlesCmd() *cobra.Command {
	opts := &cliOptions{}
	var since, until string

	cmd := &cobra.Command{
		Use:   "bundles",
		Short: "List bundles published to a Redis hub",
		Long: `List the bundles this node has published to a Redis hub, oldest first.

Time Filters:
  --since  - Only bundles published after this time
  --until  - Only bundles published before this time
Both accept a duration counted back from now ("2h") or an RFC3339 timestamp.

Examples:
  # Everything published by node_local
  microbundle bundles --redis-addr localhost:6379

  # The last hour, as JSONL
  microbundle bundles --redis-addr localhost:6379 --since 1h --output jsonl`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBundles(cmd, opts, since, until)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "Path to microbundle.yml")
	f.StringVar(&opts.redisAddr, "redis-addr", "", "Redis hub address")
	f.StringVar(&opts.nodeID, "node-id", "", "Node whose bundles are listed")
	f.StringVar(&since, "since", "", "Show bundles published after time (duration or RFC3339)")
	f.StringVar(&until, "until", "", "Show bundles published before time (duration or RFC3339)")
	f.StringVar(&opts.output, "output", "default", "Output format: default or jsonl")

	return cmd
}

func runBundles(cmd *cobra.Command, opts *cliOptions, since, until string) error {
	p := printer.New(cmd.OutOrStdout(), cmd.ErrOrStderr())

	if opts.output != "default" && opts.output != "jsonl" {
		return p.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", opts.output),
			[]string{"Valid formats: default, jsonl"},
		)
	}

	window, err := timespec.ParseRange(since, until, time.Now())
	if err != nil {
		return p.Error("invalid time filter", err.Error(), nil)
	}

	cfg, err := resolveConfig(cmd, opts)
	if err != nil {
		return p.Error("invalid configuration", err.Error(), nil)
	}
	if !cfg.PublishEnabled() {
		return p.Error(
			"no Redis hub configured",
			"Listing bundles needs a hub address.",
			[]string{"Pass --redis-addr, or set redis.addr in microbundle.yml"},
		)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	client, err := connectHub(ctx, cfg)
	if err != nil {
		return p.ErrorWithContext("failed to connect to Redis hub", err.Error(),
			map[string]string{"Address": cfg.Redis.Addr}, nil)
	}
	defer client.Close()

	ids, err := client.ListBundlesBetween(ctx, window.SinceMs, window.UntilMs)
	if err != nil {
		return err
	}

	index := make([]gep.IndexEntry, 0, len(ids))
	for _, id := range ids {
		idx, err := client.GetBundleIndex(ctx, id)
		if hub.IsNotFound(err) {
			p.Warning("bundle %s is listed but has no index", id)
			continue
		}
		if err != nil {
			return err
		}
		index = append(index, idx.IndexEntry)
	}

	if opts.output == "jsonl" {
		return batch.FormatJSONL(cmd.OutOrStdout(), index)
	}
	batch.FormatTable(cmd.OutOrStdout(), index)
	return nil
}
