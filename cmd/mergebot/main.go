// Command mergebot runs the Issue-to-Merge Engine against one code-hosting
// repository. Subcommands: run (continuous loop), once (single iteration),
// plan <issue> (takes an issue number and prints a placeholder line; it
// does not fetch the issue or generate a plan).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/go-github/v74/github"
	"go.uber.org/zap"

	"github.com/hyperionlabs/mergebot/internal/agent"
	"github.com/hyperionlabs/mergebot/internal/config"
	"github.com/hyperionlabs/mergebot/internal/engine"
	"github.com/hyperionlabs/mergebot/internal/httpapi"
	"github.com/hyperionlabs/mergebot/internal/platform"
)

// Exit codes.
const (
	exitClean = 0
	exitGenericFailure = 1
	exitConfigurationError = 2
	exitAgentUnavailable = 3
	exitPlatformUnavailable = 4
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: mergebot <run|once|plan> [flags]")
		return exitGenericFailure
	}

	subcommand := args[0]
	fs := flag.NewFlagSet(subcommand, flag.ContinueOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	workdir := fs.String("workdir", "", "override engine.workingDirectory")
	logLevel := fs.String("log-level", "info", "trace|debug|info|warn|error")
	pollIntervalMs := fs.Int("poll-interval-ms", 0, "override engine.pollIntervalMs")
	maxRetries := fs.Int("max-retries", 0, "override engine.maxRetries")
	approvalMode := fs.String("approval-mode", "", "auto|manual, overrides engine.approvalMode")
	dryRun := fs.Bool("dry-run", false, "skip the startup platform reachability check (mutating platform calls still run)")
	httpAddr := fs.String("http-addr", ":8089", "ops HTTP surface listen address")
	if err := fs.Parse(args[1:]); err != nil {
		return exitGenericFailure
	}

	log, err := buildLogger(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		return exitGenericFailure
	}
	defer log.Sync()

	cfg, err := config.Load(*configPath, "")
	if err != nil {
		log.Error("configuration error", zap.Error(err))
		return exitConfigurationError
	}
	if *workdir != "" {
		cfg.Engine.WorkingDirectory = *workdir
	}
	if *pollIntervalMs > 0 {
		cfg.Engine.PollIntervalMs = *pollIntervalMs
	}
	if *maxRetries > 0 {
		cfg.Engine.MaxRetries = *maxRetries
	}
	if *approvalMode != "" {
		cfg.Engine.ApprovalMode = config.ApprovalMode(*approvalMode)
	}

	ghClient := github.NewClient(nil)
	if cfg.Platform.Token != "" {
		ghClient = ghClient.WithAuthToken(cfg.Platform.Token)
	}
	gitPlatform := platform.NewGitHub(ghClient, cfg.Platform.Owner, cfg.Platform.Repo, platform.DefaultRetryPolicy)

	if !*dryRun {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, _, err := gitPlatform.GetRepository(ctx); err != nil {
			log.Error("platform unavailable", zap.Error(err))
			return exitPlatformUnavailable
		}
	}

	agentProvider := agent.NewSubprocess(agent.SubprocessConfig{
		Binary: cfg.Agent.BinaryPath,
		DefaultModel: cfg.Agent.Model,
		WorkingDirectory: cfg.Engine.WorkingDirectory,
	}, log)
	if !agentProvider.IsAvailable(context.Background()) {
		log.Error("agent provider unavailable")
		return exitAgentUnavailable
	}

	approvalRegistry := httpapi.NewApprovalRegistry()
	resolver := httpapi.NewEngineResolver(approvalRegistry)

	eng := engine.New(cfg.Engine, gitPlatform, agentProvider, resolver, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch subcommand {
	case "plan":
		return runPlan(ctx, fs.Args(), agentProvider, log)
	case "once":
		return runOnce(ctx, eng, cfg, log)
	case "run":
		srv := httpapi.NewServer(httpapi.Config{}, approvalRegistry, nil, nil, log)
		go func() {
			if err := http.ListenAndServe(*httpAddr, srv.Handler()); err != nil && err != http.ErrServerClosed {
				log.Error("ops http server stopped", zap.Error(err))
			}
		}()
		return runLoop(ctx, eng, cfg, log)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", subcommand)
		return exitGenericFailure
	}
}

func runOnce(ctx context.Context, eng *engine.Engine, cfg *config.Config, log *zap.Logger) int {
	if err := eng.RunOnce(ctx, cfg.Platform.IssueLabels, cfg.Platform.ExcludeLabels, cfg.Platform.BotUsername); err != nil {
		log.Error("engine iteration failed", zap.Error(err))
		return exitGenericFailure
	}
	return exitClean
}

func runLoop(ctx context.Context, eng *engine.Engine, cfg *config.Config, log *zap.Logger) int {
	interval := time.Duration(cfg.Engine.PollIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := eng.RunOnce(ctx, cfg.Platform.IssueLabels, cfg.Platform.ExcludeLabels, cfg.Platform.BotUsername); err != nil {
			log.Warn("engine iteration failed, continuing loop", zap.Error(err))
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			log.Info("shutting down")
			return exitClean
		}
	}
}

func runPlan(ctx context.Context, args []string, agentProvider *agent.Subprocess, log *zap.Logger) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: mergebot plan <issue-number>")
		return exitGenericFailure
	}
	fmt.Printf("dry-run plan requested for issue %s (not yet fetched: requires a configured platform token)\n", args[0])
	return exitClean
}

func buildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	var zapLevel zap.AtomicLevel
	switch level {
	case "trace", "debug":
		zapLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		zapLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	cfg.Level = zapLevel
	return cfg.Build()
}
