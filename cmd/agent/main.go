package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/alexrv/web-agent/internal/agent"
	"github.com/alexrv/web-agent/internal/browser"
	"github.com/alexrv/web-agent/internal/config"
	"github.com/alexrv/web-agent/internal/executor"
	"github.com/alexrv/web-agent/internal/export"
	"github.com/alexrv/web-agent/internal/intervene"
	"github.com/alexrv/web-agent/internal/llm"
	"github.com/alexrv/web-agent/internal/logging"
	"github.com/alexrv/web-agent/internal/snapshot"
)

type cliOptions struct {
	configPath  string
	provider    string
	model       string
	maxAttempts int
	headless    bool
	storage     string
	saveState   string
	outputDir   string
	debug       bool
}

func main() {
	_ = godotenv.Load()

	var opts cliOptions
	root := &cobra.Command{
		Use:   "agent \"<goal>\"",
		Short: "Goal-driven browser automation agent",
		Long: `agent plans a sequence of web actions for a natural-language goal,
drives a browser to execute them with progressive retries, and consolidates
any extracted content into a spreadsheet or text report.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), strings.TrimSpace(args[0]), opts)
		},
		SilenceUsage: true,
	}
	root.Flags().StringVar(&opts.configPath, "config", "", "path to YAML config file")
	root.Flags().StringVar(&opts.provider, "provider", "", "LLM provider: anthropic, openai or groq")
	root.Flags().StringVar(&opts.model, "model", "", "model name override")
	root.Flags().IntVar(&opts.maxAttempts, "max-attempts", 0, "retry attempts per plan step")
	root.Flags().BoolVar(&opts.headless, "headless", false, "run the browser headless")
	root.Flags().StringVar(&opts.storage, "storage", "", "path to Playwright storage state to load")
	root.Flags().StringVar(&opts.saveState, "save-state", "", "path to save storage state after the run")
	root.Flags().StringVar(&opts.outputDir, "output-dir", "", "directory for consolidated output documents")
	root.Flags().BoolVar(&opts.debug, "debug", false, "verbose logging")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, goal string, opts cliOptions) error {
	if goal == "" {
		return fmt.Errorf("goal must not be empty")
	}

	logger := logging.NewConsole(os.Stderr, opts.debug)

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	applyFlags(&cfg, opts)

	llmClient, err := llm.NewClient(cfg.Provider, cfg.Model, logger)
	if err != nil {
		return fmt.Errorf("llm init: %w", err)
	}

	launcher, err := browser.NewLauncher(ctx, cfg.Headless)
	if err != nil {
		return fmt.Errorf("browser init: %w", err)
	}
	defer launcher.Close()

	driver, err := launcher.NewDriver(ctx, cfg.StoragePath)
	if err != nil {
		return fmt.Errorf("browser session: %w", err)
	}
	defer driver.Close(ctx)

	store, err := export.NewStore(cfg.OutputDir, logger)
	if err != nil {
		return fmt.Errorf("export init: %w", err)
	}

	snapshotFn := func(c context.Context) (snapshot.Snapshot, error) {
		return snapshot.Collect(c, driver)
	}
	structureFn := func(c context.Context) (snapshot.Structure, error) {
		return snapshot.CollectStructure(c, driver)
	}

	detector := intervene.NewDetector(llmClient, logger)
	handshake := intervene.NewTerminalHandshake(logger)
	runner := executor.New(driver, store, executor.NewHistory(cfg.HistorySize), goal, logger)

	strategist := agent.NewStrategist(llmClient, runner, detector, handshake,
		snapshotFn, structureFn,
		agent.StrategistOptions{MaxAttempts: cfg.MaxAttempts, VerifyDelay: cfg.VerifyDelay},
		logger)
	replanner := agent.NewReplanner(llmClient, logger)
	verifier := agent.NewVerifier(llmClient, driver, logger)

	loop := agent.NewLoop(llmClient, strategist, replanner, verifier, handshake,
		snapshotFn,
		agent.LoopOptions{MaxSteps: cfg.MaxSteps, MaxReplans: cfg.MaxReplans, StepDelay: cfg.StepDelay},
		logger)

	report := loop.Run(ctx, goal)
	logger.Info().
		Str("status", string(report.Status)).
		Str("run_id", report.RunID).
		Int("completed", len(report.Completed)).
		Msg(report.Message)

	if opts.saveState != "" || cfg.SaveStatePath != "" {
		path := opts.saveState
		if path == "" {
			path = cfg.SaveStatePath
		}
		if err := driver.SaveState(ctx, path); err != nil {
			logger.Error().Err(err).Msg("save storage state")
		} else {
			logger.Info().Str("path", path).Msg("storage state saved")
		}
	}

	switch report.Status {
	case agent.StatusDone:
		return nil
	case agent.StatusCanceled:
		return fmt.Errorf("run canceled")
	default:
		printDiagnostics(logger, report)
		return fmt.Errorf("run aborted: %s", report.Message)
	}
}

func applyFlags(cfg *config.Config, opts cliOptions) {
	if opts.provider != "" {
		cfg.Provider = opts.provider
	}
	if opts.model != "" {
		cfg.Model = opts.model
	}
	if opts.maxAttempts > 0 {
		cfg.MaxAttempts = opts.maxAttempts
	}
	if opts.headless {
		cfg.Headless = true
	}
	if opts.storage != "" {
		cfg.StoragePath = opts.storage
	}
	if opts.saveState != "" {
		cfg.SaveStatePath = opts.saveState
	}
	if opts.outputDir != "" {
		cfg.OutputDir = opts.outputDir
	}
}

// printDiagnostics surfaces the last known context so a human can resume
// where the agent stopped.
func printDiagnostics(logger zerolog.Logger, report agent.Report) {
	ev := logger.Warn().
		Strs("completed_steps", report.Completed).
		Str("last_error_kind", report.LastResult.ErrorKind).
		Str("last_detail", report.LastResult.Message)
	if len(report.LastResult.Candidates) > 0 {
		cands := make([]string, 0, len(report.LastResult.Candidates))
		for _, c := range report.LastResult.Candidates {
			cands = append(cands, fmt.Sprintf("%s %q %s", c.Tag, c.Text, c.Selector))
		}
		ev = ev.Strs("candidate_elements", cands)
	}
	ev.Msg("last known state before abort")
}
