// package main provides the entry point for the cognitoforge red-team backend:
// repository ingestion, attack plan synthesis, sandboxed simulation runs and
// the REST and GraphQL APIs over their results.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cognitoforge/redteam-backend/database"
	"github.com/cognitoforge/redteam-backend/internal/api"
	"github.com/cognitoforge/redteam-backend/internal/cache"
	"github.com/cognitoforge/redteam-backend/internal/config"
	"github.com/cognitoforge/redteam-backend/internal/depscan"
	"github.com/cognitoforge/redteam-backend/internal/fetcher"
	"github.com/cognitoforge/redteam-backend/internal/genai"
	"github.com/cognitoforge/redteam-backend/internal/objectstore"
	"github.com/cognitoforge/redteam-backend/internal/orchestrator"
	"github.com/cognitoforge/redteam-backend/internal/planner"
	"github.com/cognitoforge/redteam-backend/internal/runlog"
	"github.com/cognitoforge/redteam-backend/internal/scanner"
	"github.com/cognitoforge/redteam-backend/model"
	"github.com/cognitoforge/redteam-backend/restapi"
	"github.com/cognitoforge/redteam-backend/util"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var logger = util.InitLogger()

func main() {
	defer logger.Sync()

	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		logger.Error("Command failed", zap.Error(err))
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), config.Load())
		},
	}

	root := &cobra.Command{
		Use:           "redteam-backend",
		Short:         "Red-team attack simulation backend",
		Long:          "Ingests repositories, synthesizes attack plans and serves simulation reports.",
		Args:          cobra.NoArgs,
		RunE:          serveCmd.RunE,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.AddCommand(serveCmd, newScanCmd(), newPlanCmd())
	return root
}

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan <dir>",
		Short: "Print the risk manifest of a local source tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			sc, _, err := buildScanner(cfg)
			if err != nil {
				return err
			}
			manifest, err := localManifest(cmd.Context(), sc, args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), manifest)
		},
	}
}

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <dir>",
		Short: "Print a synthesized attack plan for a local source tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			sc, reg, err := buildScanner(cfg)
			if err != nil {
				return err
			}
			manifest, err := localManifest(cmd.Context(), sc, args[0])
			if err != nil {
				return err
			}
			synth := buildPlanner(cfg, reg)
			plan := synth.Synthesize(cmd.Context(), planner.Profile{
				RepoID:        manifest.RepoID,
				Manifest:      manifest,
				HighRiskFiles: scanner.SelectHighRisk(manifest, orchestrator.SelectLimit),
				RepoDir:       args[0],
			}, orchestrator.MaxSteps)
			return writeJSON(cmd.OutOrStdout(), plan)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	logger.Info("Starting with configuration", zap.String("config", cfg.String()))

	sc, reg, err := buildScanner(cfg)
	if err != nil {
		return err
	}

	var fetchOpts []fetcher.Option
	if cfg.GitHubToken != "" {
		fetchOpts = append(fetchOpts, fetcher.WithToken(cfg.GitHubToken))
	}
	if cfg.DependencyAudit {
		fetchOpts = append(fetchOpts, fetcher.WithAuditor(depscan.NewAuditor(cfg.OSVURL, logger)))
	}
	if cfg.ObjectStore.Enabled() {
		mirror, err := objectstore.New(cfg.ObjectStore, logger)
		if err != nil {
			logger.Warn("Archive mirroring disabled", zap.Error(err))
		} else {
			fetchOpts = append(fetchOpts, fetcher.WithMirror(mirror))
		}
	}
	repos := fetcher.New(cfg.ReposDir(), sc, logger, fetchOpts...)

	runs, err := runlog.Open(cfg.SimulationsDir(), logger)
	if err != nil {
		return err
	}

	store, err := database.New(cfg.Store, logger)
	if err != nil {
		logger.Error("Persistent store disabled", zap.String("driver", cfg.Store.Driver), zap.Error(err))
		store = database.Disabled{}
	}
	defer store.Close()

	synth := buildPlanner(cfg, reg)
	orch := orchestrator.New(repos, synth, runs, logger,
		orchestrator.WithStore(store),
		orchestrator.WithCache(cache.New(cache.WithTTL(cfg.CacheTTL))))

	app, err := api.NewFiberApp(api.Config{AllowedOrigins: cfg.AllowedOrigins, AccessLog: true},
		restapi.Services{
			Ingester:     repos,
			Dependencies: orch,
			Simulations:  orch,
			Generation:   synth,
		}, orch, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		logger.Info("Starting server", zap.String("port", cfg.Port))
		logger.Info("GraphQL endpoint available at /api/v1/graphql")
		errc <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		logger.Info("Shutting down server")
		return app.ShutdownWithTimeout(10 * time.Second)
	}
}

// buildScanner returns the file scanner and its rule registry, extended by
// RULES_FILE when set.
func buildScanner(cfg config.Config) (*scanner.Scanner, *scanner.Registry, error) {
	reg := scanner.DefaultRegistry()
	if cfg.RulesFile != "" {
		rules, err := scanner.LoadRules(cfg.RulesFile)
		if err != nil {
			return nil, nil, err
		}
		for _, r := range rules {
			if _, exists := reg.Rule(r.Class); exists {
				logger.Info("Replacing built-in scanner rule", zap.String("class", r.Class))
			}
			reg.Register(r)
		}
		logger.Info("Loaded extra scanner rules", zap.String("file", cfg.RulesFile), zap.Int("count", len(rules)))
	}
	logger.Debug("Scanner rules registered", zap.Strings("classes", reg.Classes()))
	return scanner.New(scanner.WithRegistry(reg), scanner.WithWorkers(cfg.Workers)), reg, nil
}

func buildPlanner(cfg config.Config, reg *scanner.Registry) *planner.Synthesizer {
	// enabled without a client, plans fall back and insights report unavailable
	opts := []planner.Option{planner.WithRegistry(reg), planner.WithGeneration(cfg.UseGemini)}

	client, err := genai.NewClient(cfg.Gemini, logger)
	switch {
	case err == nil:
		opts = append(opts, planner.WithGenerator(client))
	case cfg.UseGemini:
		logger.Warn("Generation requested but unavailable, using fallback plans", zap.Error(err))
	}
	return planner.New(logger, opts...)
}

// localManifest scans a local tree; the directory name becomes the repo id.
func localManifest(ctx context.Context, sc *scanner.Scanner, dir string) (*model.Manifest, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	return sc.BuildManifest(ctx, abs, scanner.RepoMeta{RepoID: filepath.Base(abs)})
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
