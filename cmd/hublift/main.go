package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hublift/hublift/pkg/checkpoint"
	"github.com/hublift/hublift/pkg/config"
	"github.com/hublift/hublift/pkg/extract"
	"github.com/hublift/hublift/pkg/hubspot"
	"github.com/hublift/hublift/pkg/logger"
	"github.com/hublift/hublift/pkg/sink"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "hublift",
		Short: "Hublift - CRM API to object storage extraction",
		Long: `Hublift extracts CRM objects through cursor-paginated API walks,
normalizes nested records into relational groups, and writes them as
newline-delimited JSON blobs to object storage.`,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Hublift v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "objects",
		Short: "List the supported queryable objects",
		Run: func(cmd *cobra.Command, args []string) {
			for _, object := range hubspot.SupportedObjects() {
				fmt.Println(object)
			}
		},
	})

	root.AddCommand(newExtractCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newExtractCommand() *cobra.Command {
	var (
		configPath string
		resume     bool
	)

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Run one extraction from a YAML run configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if resume {
				cfg.Reliability.Resume = true
			}
			return runExtraction(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to run configuration file (required)")
	cmd.Flags().BoolVar(&resume, "resume", false, "Resume from the run's checkpointed cursor")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runExtraction(ctx context.Context, cfg *config.ExtractionConfig) error {
	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Encoding: "json"}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	caller, err := hubspot.NewClient(hubspot.ClientConfig{
		BaseURL:        cfg.Source.BaseURL,
		AuthMode:       hubspot.AuthMode(cfg.Source.AuthMode),
		AccessToken:    cfg.Source.AccessToken,
		APIKey:         cfg.Source.APIKey,
		RequestTimeout: cfg.RequestTimeout(),
		RequestsPerSec: cfg.Source.RequestsPerSec,
		RateLimitBurst: cfg.Source.RateLimitBurst,
	})
	if err != nil {
		return err
	}

	store, err := sink.NewS3Store(ctx, sink.S3Config{
		Region:         cfg.Output.Region,
		Endpoint:       cfg.Output.Endpoint,
		ForcePathStyle: cfg.Output.ForcePathStyle,
	})
	if err != nil {
		return err
	}
	writer := sink.NewWriter(store, cfg.Output.Bucket, cfg.Object, cfg.Output.Compress)

	var checkpoints checkpoint.Store = checkpoint.NewMemoryStore()
	if cfg.Reliability.CheckpointPath != "" {
		checkpoints = checkpoint.NewFileStore(cfg.Reliability.CheckpointPath)
	}

	extractor, err := extract.New(cfg, caller, writer, checkpoints, nil)
	if err != nil {
		return err
	}

	summary, err := extractor.Run(ctx)
	if err != nil {
		logger.Error("extraction failed", zap.Error(err))
		return err
	}

	if summary.Skipped {
		fmt.Printf("Run %s: skipped, upstream returned no data\n", summary.RunID)
		return nil
	}
	fmt.Printf("Run %s: %d pages, %d records, %d blobs\n",
		summary.RunID, summary.Pages, summary.Records, summary.Blobs)
	return nil
}
