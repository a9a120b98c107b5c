package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/romangod6/sitemap-clusters/config"
	"github.com/romangod6/sitemap-clusters/internal/analyzer"
	"github.com/romangod6/sitemap-clusters/internal/cluster"
	"github.com/romangod6/sitemap-clusters/internal/llm"
	"github.com/romangod6/sitemap-clusters/internal/sitemap"
	"github.com/romangod6/sitemap-clusters/internal/utils"
)

var Version = "dev"

var (
	configDir  string
	logLevel   string
	noDiscover bool
)

var (
	cfg    *config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "sitemap-clusters",
	Short: "Analyze sitemaps and group their URLs into content clusters",
	Long: `sitemap-clusters fetches a website's sitemap (following sitemap indexes),
computes structural statistics and groups the URLs into topical clusters,
either with a chat completions model or with a URL-pattern heuristic.

Examples:
  sitemap-clusters analyze example.com
  sitemap-clusters discover https://example.com
  sitemap-clusters serve`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var paths []string
		if configDir != "" {
			paths = append(paths, configDir)
		}
		loaded, err := config.LoadConfig(paths...)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if logLevel != "" {
			loaded.Log.Level = logLevel
		}
		cfg = loaded
		logger = utils.NewLogger(utils.LogConfig{
			Level: cfg.Log.Level,
			Dir:   cfg.Log.Dir,
			File:  cfg.Log.File,
		})
		return nil
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <url>",
	Short: "Run one analysis and print the report as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a := buildAnalyzer(cfg, logger, !noDiscover)
		report, err := a.Run(logger.WithContext(ctx), args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

var discoverCmd = &cobra.Command{
	Use:   "discover <site>",
	Short: "List the sitemap URLs that would be tried for a site",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d := sitemap.NewDiscoverer(newFetcher(cfg, logger), logger)
		candidates, err := d.Candidates(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, c := range candidates {
			fmt.Fprintln(cmd.OutOrStdout(), c)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configDir, "config-dir", "c", "", "directory containing config.yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	analyzeCmd.Flags().BoolVar(&noDiscover, "no-discover", false, "treat the input as a sitemap URL and skip discovery")

	rootCmd.AddCommand(analyzeCmd, discoverCmd, serveCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newFetcher(cfg *config.Config, logger zerolog.Logger) *sitemap.Fetcher {
	return sitemap.NewFetcher(sitemap.FetcherConfig{
		UserAgent:   cfg.Fetcher.UserAgent,
		Accept:      cfg.Fetcher.Accept,
		Timeout:     cfg.FetchTimeout(),
		MaxBodySize: cfg.Fetcher.MaxBodySize,
	}, logger)
}

func newGenerator(cfg *config.Config, logger zerolog.Logger) cluster.Generator {
	if cfg.UseFallbackGenerator() {
		if cfg.Clustering.Mode == config.ModeLive {
			logger.Warn().Msg("No generator API key configured, using heuristic clustering")
		}
		return cluster.FallbackGenerator{}
	}
	return llm.NewLiveGenerator(llm.Config{
		APIURL:      cfg.Generator.APIURL,
		APIKey:      cfg.Generator.APIKey,
		Model:       cfg.Generator.Model,
		Temperature: cfg.Generator.Temperature,
		MaxTokens:   cfg.Generator.MaxTokens,
		Timeout:     cfg.GeneratorTimeout(),
	}, logger)
}

// buildAnalyzer wires fetcher, parser, generator and aggregator from cfg.
func buildAnalyzer(cfg *config.Config, logger zerolog.Logger, discover bool) *analyzer.Analyzer {
	fetcher := newFetcher(cfg, logger)
	parser := sitemap.NewParser(fetcher, sitemap.ParserConfig{
		MaxIndexEntries: cfg.Parser.MaxIndexEntries,
		MaxDepth:        cfg.Parser.MaxDepth,
	}, logger)

	var discoverer *sitemap.Discoverer
	if discover {
		discoverer = sitemap.NewDiscoverer(fetcher, logger)
	}

	aggregator := cluster.NewAggregator(newGenerator(cfg, logger), cluster.Options{
		BatchSize:         cfg.Clustering.BatchSize,
		MaxRetries:        cfg.Clustering.MaxRetries,
		RetryDelay:        cfg.RetryDelay(),
		MergeThreshold:    cfg.Clustering.MergeThreshold,
		SmallerBatchRetry: cfg.Clustering.SmallerBatchRetry,
	}, logger)

	return analyzer.New(parser, discoverer, aggregator, analyzer.Policy(cfg.Clustering.Policy), logger)
}
