package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/screa/vanity-search/internal/config"
	logpkg "github.com/screa/vanity-search/internal/logger"
	"github.com/screa/vanity-search/internal/metrics"
	minerpkg "github.com/screa/vanity-search/pkg/miner"
	"github.com/screa/vanity-search/pkg/pattern"
	"github.com/screa/vanity-search/pkg/protocol"
	"github.com/screa/vanity-search/pkg/sink"
	"github.com/screa/vanity-search/pkg/types"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "vanity-search",
		Short: "Base-58 ed25519 vanity address searcher",
		Long: `A long-running subprocess that searches for ed25519 keypairs whose
base-58 address starts with a requested prefix.

Jobs are read from stdin, one per line: {"prefix":"abc"} starts a search and
"stop" cancels it and exits. Progress, found and rare events are written to
stdout as JSON lines. Logs go to stderr or --log-file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runSearch,
	}

	flags := rootCmd.Flags()
	flags.IntP("workers", "w", runtime.NumCPU(), "Number of worker goroutines")
	flags.StringP("config", "c", "", "Rarity pattern file (default: config.json or vanity_gen/config.json)")
	flags.StringP("rare-log", "r", config.DefaultRareLog, "File rare finds are appended to (empty disables)")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.StringP("log-file", "l", "", "Log file (default: stderr)")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9100")
	flags.Bool("per-worker-progress", false, "Emit one progress line per worker instead of a total")

	return rootCmd
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closeLog, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	met := metrics.New()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := met.Serve(ctx, cfg.MetricsAddr); err != nil {
				logger.Error("metrics server stopped", "addr", cfg.MetricsAddr, "err", err)
			}
		}()
		logger.Info("serving metrics", "addr", cfg.MetricsAddr)
	}

	rules := loadRules(cfg, logger)
	out := sink.NewJSONSink(os.Stdout, logger, met)
	miner := minerpkg.NewMiner(cfg, out, sink.NewRareLog(cfg.RareLog), logger, met)

	logger.Info("ready", "workers", cfg.Workers, "rules", len(rules), "rare_log", cfg.RareLog)
	srv := protocol.NewServer(cmd.InOrStdin(), miner, rules, logger)
	if err := srv.Serve(ctx); err != nil {
		return fmt.Errorf("search aborted: %w", err)
	}
	logger.Info("shutting down")
	return nil
}

// loadRules loads the rarity configuration once for the whole process. Any
// problem disables rarity checking rather than failing startup.
func loadRules(cfg *config.Config, logger *logpkg.Logger) []types.Rule {
	path, err := config.FindPatternFile(cfg.PatternFile)
	if errors.Is(err, config.ErrNoPatternFile) {
		logger.Info("no pattern config, rarity checking disabled")
		return nil
	}
	patterns, err := config.LoadPatterns(path)
	if err != nil {
		logger.Warn("pattern config unusable, rarity checking disabled", "err", err)
		return nil
	}
	rules := pattern.Compile(patterns)
	if len(rules) == 0 {
		logger.Info("pattern config has no usable patterns, rarity checking disabled", "path", path)
		return nil
	}
	logger.Info("loaded rarity patterns", "path", path, "rules", len(rules))
	return rules
}

func setupLogging(cfg *config.Config) (*logpkg.Logger, func(), error) {
	logger := logpkg.New()
	closeFn := func() {}
	if cfg.LogFile != "" {
		file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logger = logpkg.NewWriter(file)
		closeFn = func() { _ = file.Close() }
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		closeFn()
		return nil, nil, err
	}
	return logger, closeFn, nil
}
