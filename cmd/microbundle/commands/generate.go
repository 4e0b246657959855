package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dyluth/microbundle/internal/batch"
	"github.com/dyluth/microbundle/internal/config"
	"github.com/dyluth/microbundle/internal/filter"
	"github.com/dyluth/microbundle/internal/library"
	"github.com/dyluth/microbundle/internal/observability"
	"github.com/dyluth/microbundle/internal/printer"
	"github.com/dyluth/microbundle/pkg/gep"
	"github.com/dyluth/microbundle/pkg/hub"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// cliOptions holds flag values shared by generate and bundles.
type cliOptions struct {
	configPath string
	library    string
	outDir     string
	taskTitle  string
	nodeID     string
	parallel   int
	lenient    bool
	redisAddr  string
	logLevel   string
	output     string
	only       string
	category   string
}

func newGenerateCmd() *cobra.Command {
	opts := &cliOptions{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Build bundles for every template in a library",
		Long: `Build a Gene, Capsule, EvolutionEvent and publish envelope for every template.

For each template <id> four files are written to the output directory:
  <id>.gene.json, <id>.capsule.json, <id>.event.json, <id>.publish.request.json
followed by index.json listing the content addresses of every bundle.

Settings are resolved in order: flags, then A2A_NODE_ID for the node id, then the
config file, then built-in defaults.

Output Formats:
  default - One summary line
  table   - Summary line followed by a table of addresses
  jsonl   - One index entry per line

Examples:
  # Generate from the default library
  microbundle generate

  # Custom library, output directory and task
  microbundle generate --library templates.yaml --out-dir out --task-title "harden api"

  # Also publish every bundle to a Redis hub
  microbundle generate --redis-addr localhost:6379

  # Only the repair templates whose id starts with retry_
  microbundle generate --only "retry_*" --category repair`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "Path to microbundle.yml")
	f.StringVarP(&opts.library, "library", "l", "", "Template library (JSON, or YAML by .yaml/.yml extension)")
	f.StringVarP(&opts.outDir, "out-dir", "o", "", "Output directory")
	f.StringVar(&opts.taskTitle, "task-title", "", "Task title appended to every summary")
	f.StringVar(&opts.nodeID, "node-id", "", "Node id recorded in env_fingerprint and the envelope sender")
	f.IntVarP(&opts.parallel, "parallel", "p", 0, "Number of templates built concurrently")
	f.BoolVar(&opts.lenient, "lenient", false, "Build templates with missing id or summaries instead of failing them")
	f.StringVar(&opts.redisAddr, "redis-addr", "", "Publish bundles to the Redis hub at this address")
	f.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	f.StringVar(&opts.output, "output", "default", "Output format: default, table or jsonl")
	f.StringVar(&opts.only, "only", "", "Only build templates whose id matches this glob")
	f.StringVar(&opts.category, "category", "", "Only build templates in this category")

	return cmd
}

// resolveConfig layers the config file, environment and changed flags.
// Flags a command does not register are never Changed, so commands share it.
func resolveConfig(cmd *cobra.Command, opts *cliOptions) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	cfg.ApplyEnv(os.LookupEnv)

	flags := cmd.Flags()
	if flags.Changed("library") {
		cfg.Library = opts.library
	}
	if flags.Changed("out-dir") {
		cfg.OutDir = opts.outDir
	}
	if flags.Changed("task-title") {
		cfg.TaskTitle = opts.taskTitle
	}
	if flags.Changed("node-id") {
		cfg.NodeID = opts.nodeID
	}
	if flags.Changed("parallel") {
		if opts.parallel < 1 {
			return nil, fmt.Errorf("--parallel must be >= 1, got %d", opts.parallel)
		}
		cfg.Parallelism = opts.parallel
	}
	if flags.Changed("lenient") {
		cfg.Lenient = opts.lenient
	}
	if flags.Changed("redis-addr") {
		if cfg.Redis == nil {
			cfg.Redis = &config.RedisConfig{}
		}
		cfg.Redis.Addr = opts.redisAddr
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runGenerate(cmd *cobra.Command, opts *cliOptions) error {
	p := printer.New(cmd.OutOrStdout(), cmd.ErrOrStderr())

	switch opts.output {
	case "default", "table", "jsonl":
	default:
		return p.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", opts.output),
			[]string{"Valid formats: default, table, jsonl"},
		)
	}

	criteria := &filter.Criteria{IDGlob: opts.only, Category: opts.category}
	if err := criteria.Validate(); err != nil {
		return p.Error("invalid filter", err.Error(), []string{"--only takes a glob such as \"retry_*\""})
	}

	cfg, err := resolveConfig(cmd, opts)
	if err != nil {
		return p.Error("invalid configuration", err.Error(), []string{"Check microbundle.yml and the flags passed to generate"})
	}

	logger, err := observability.NewLoggerTo(cfg.Logging.Level, cfg.Logging.Format, zapcore.AddSync(cmd.ErrOrStderr()))
	if err != nil {
		return p.Error("invalid logging configuration", err.Error(), nil)
	}
	defer logger.Sync()

	lib, err := library.Load(cfg.Library)
	if err != nil {
		return p.ErrorWithContext(
			"failed to load template library",
			err.Error(),
			map[string]string{"Library": cfg.Library},
			[]string{"Point --library at a JSON or YAML file with a top-level \"templates\" array"},
		)
	}
	logger.Debug("library loaded", zap.String("path", cfg.Library), zap.Int("templates", len(lib.Templates)))

	templates := criteria.Apply(lib.Templates)
	if criteria.HasFilters() {
		logger.Info("templates filtered",
			zap.String("only", opts.only),
			zap.String("category", opts.category),
			zap.Int("selected", len(templates)),
			zap.Int("total", len(lib.Templates)))
	}

	var builderOpts []gep.Option
	if cfg.Lenient {
		builderOpts = append(builderOpts, gep.Lenient())
	}
	builder, err := gep.NewBuilder(gep.RunParams{
		TaskTitle: cfg.TaskTitle,
		NodeID:    cfg.NodeID,
		Env:       gep.LocalEnvironment(),
	}, builderOpts...)
	if err != nil {
		return p.Error("invalid run parameters", err.Error(), nil)
	}

	fileSink, err := batch.NewFileSink(cfg.OutDir)
	if err != nil {
		return p.ErrorWithContext("cannot write output", err.Error(), map[string]string{"Output": cfg.OutDir}, nil)
	}
	var sinks []batch.Sink

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if cfg.PublishEnabled() {
		client, err := connectHub(ctx, cfg)
		if err != nil {
			return p.ErrorWithContext(
				"failed to connect to Redis hub",
				err.Error(),
				map[string]string{"Address": cfg.Redis.Addr},
				[]string{"Check the hub is running, or drop --redis-addr to write files only"},
			)
		}
		defer client.Close()
		sinks = append(sinks, batch.PublishSink{Publisher: client})
		logger.Info("publishing enabled", zap.String("addr", cfg.Redis.Addr), zap.String("node_id", cfg.NodeID))
	}

	// Publish before writing files so a bundle the hub rejects leaves nothing on disk.
	sinks = append(sinks, fileSink)

	runner := batch.NewRunner(builder,
		batch.WithSinks(sinks...),
		batch.WithParallelism(cfg.Parallelism),
		batch.WithLogger(logger))

	result, runErr := runner.Run(ctx, templates)
	if result == nil {
		return fmt.Errorf("batch produced no result: %w", runErr)
	}

	if err := batch.WriteIndex(cfg.OutDir, result.Index); err != nil {
		return p.Error("failed to write index", err.Error(), nil)
	}

	switch opts.output {
	case "jsonl":
		if err := batch.FormatJSONL(cmd.OutOrStdout(), result.Index); err != nil {
			return err
		}
	case "table":
		p.Printf("generated %d b3ehive micro bundles into %s\n\n", len(result.Index), cfg.OutDir)
		batch.FormatTable(cmd.OutOrStdout(), result.Index)
	default:
		p.Printf("generated %d b3ehive micro bundles into %s\n", len(result.Index), cfg.OutDir)
	}

	if runErr != nil {
		return p.Error("generation interrupted", runErr.Error(), nil)
	}

	if len(result.Failures) > 0 {
		for _, f := range result.Failures {
			p.Warning("%v", f)
		}
		var vErr *gep.ValidationError
		var suggestions []string
		for _, f := range result.Failures {
			if errors.As(f, &vErr) {
				suggestions = []string{"Fill in the missing fields, or pass --lenient to build incomplete templates"}
				break
			}
		}
		return p.Error(
			fmt.Sprintf("%d of %d templates failed", len(result.Failures), len(templates)),
			"The remaining bundles and index.json were written.",
			suggestions,
		)
	}

	return nil
}

func connectHub(ctx context.Context, cfg *config.Config) (*hub.Client, error) {
	client, err := hub.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, cfg.NodeID)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return client, nil
}
