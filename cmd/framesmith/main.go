// Package main is the entry point for framesmith.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vampirenirmal/framesmith/internal/app"
	"github.com/vampirenirmal/framesmith/internal/config"
	"github.com/vampirenirmal/framesmith/internal/script"
)

var version = "0.1.0"

// identitiesRunID keys the progress of identity image generation.
const identitiesRunID = "identities"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "framesmith",
	Short: "Turn a written script into consistent generated images and video clips",
	Long: `Framesmith reads a plain text or markdown script, extracts its characters
and locations, and drives an image and video generation API scene by scene,
keeping every character's look stable across the whole run.`,
	Version:           version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogging,
}

var (
	configPath string
	logLevel   string
	cfg        *config.Config
)

// setupLogging loads configuration and installs the default slog handler
// before any command runs.
func setupLogging(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg = loaded
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// session opens an app session bound to a context cancelled on SIGINT or
// SIGTERM. The returned cleanup closes both.
func session(cmd *cobra.Command) (*app.Session, context.Context, func(), error) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	s, done, err := openSession(ctx)
	if err != nil {
		stop()
		return nil, nil, nil, err
	}
	return s, ctx, func() {
		done()
		stop()
	}, nil
}

func openSession(ctx context.Context) (*app.Session, func(), error) {
	s, err := app.New(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize session: %w", err)
	}
	return s, func() {
		if err := s.Close(); err != nil {
			slog.Warn("closing session", "error", err)
		}
	}, nil
}

// generationSession opens a session for commands that submit generation
// requests. The first interrupt stops new requests and lets in-flight ones
// finish; the second cancels the returned context.
func generationSession(cmd *cobra.Command) (*app.Session, context.Context, func(func()), func(), error) {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(cmd.Context())
	s, done, err := openSession(ctx)
	if err != nil {
		signal.Stop(sigs)
		cancel()
		return nil, nil, nil, nil, err
	}
	watch := func(drain func()) {
		go drainOnSignal(ctx, sigs, drain, cancel)
	}
	return s, ctx, watch, func() {
		done()
		signal.Stop(sigs)
		cancel()
	}, nil
}

// drainOnSignal calls drain on the first signal and abort on the second.
func drainOnSignal(ctx context.Context, sigs <-chan os.Signal, drain, abort func()) {
	select {
	case <-ctx.Done():
		return
	case sig := <-sigs:
		slog.Warn("stopping after in-flight requests; interrupt again to abort", "signal", sig.String())
		drain()
	}
	select {
	case <-ctx.Done():
	case sig := <-sigs:
		slog.Warn("aborting in-flight requests", "signal", sig.String())
		abort()
	}
}

func readScript(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read script: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("script %s is empty", path)
	}
	return string(data), nil
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <script>",
	Short: "Extract characters and environments into the consistency profiles",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyzeCmd,
}

func runAnalyzeCmd(cmd *cobra.Command, args []string) error {
	src, err := readScript(args[0])
	if err != nil {
		return err
	}
	s, ctx, done, err := session(cmd)
	if err != nil {
		return err
	}
	defer done()

	discard, _ := cmd.Flags().GetBool("discard")
	if discard {
		if err := s.Profiles.Discard(ctx); err != nil {
			return err
		}
	}
	if _, err := s.Profiles.Analyze(ctx, src); err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}
	printProfiles(s.Profiles.Snapshot())
	return nil
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Show the stored consistency profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, _, done, err := session(cmd)
		if err != nil {
			return err
		}
		defer done()
		printProfiles(s.Profiles.Snapshot())
		return nil
	},
}

var identitiesCmd = &cobra.Command{
	Use:   "identities",
	Short: "Generate master images for every profile and lock the set",
	Args:  cobra.NoArgs,
	RunE:  runIdentitiesCmd,
}

func runIdentitiesCmd(cmd *cobra.Command, _ []string) error {
	s, ctx, watch, done, err := generationSession(cmd)
	if err != nil {
		return err
	}
	defer done()

	s.StartReceiver(ctx)
	sched, _, err := s.Scheduler(ctx, identitiesRunID, "identities")
	if err != nil {
		return err
	}
	watch(sched.Stop)
	report, err := sched.GenerateIdentities(ctx)
	printOutcomes(report.Outcomes)
	if err != nil {
		return err
	}
	if report.Locked {
		fmt.Println(okStyle.Render("profile set locked"))
	} else {
		fmt.Println(warnStyle.Render("some master images are missing; run identities again"))
	}
	return nil
}

var generateCmd = &cobra.Command{
	Use:   "generate <script>",
	Short: "Generate frames and clips for every scene of a script",
	Long: `Generate splits the script into paragraphs and scenes, then requests a start
frame, end frame, scene video and transition video for each scene. Progress is
saved after every request, so running the same script again resumes it.`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerateCmd,
}

func runGenerateCmd(cmd *cobra.Command, args []string) error {
	src, err := readScript(args[0])
	if err != nil {
		return err
	}
	paragraphs := script.Parse(src)
	if len(paragraphs) == 0 {
		return errors.New("script contains no prose paragraphs")
	}

	s, ctx, watch, done, err := generationSession(cmd)
	if err != nil {
		return err
	}
	defer done()

	runID, _ := cmd.Flags().GetString("run")
	if runID == "" {
		runID = app.RunID(src)
	}
	title := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))

	s.StartReceiver(ctx)
	sched, tracker, err := s.Scheduler(ctx, runID, title)
	if err != nil {
		return err
	}
	watch(sched.Stop)
	unsubscribe, err := reportProgress(s.Bus, os.Stdout)
	if err != nil {
		return err
	}
	defer unsubscribe()
	fmt.Println(titleStyle.Render("run " + runID))

	report, runErr := sched.Run(ctx, paragraphs)
	printReport(report)
	printStats(tracker.Stats())
	return runErr
}

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List stored runs, or the most recent completed requests of one run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, ctx, done, err := session(cmd)
		if err != nil {
			return err
		}
		defer done()

		if len(args) == 0 {
			runs, err := s.Runs(ctx)
			if err != nil {
				return err
			}
			printRuns(runs)
			return nil
		}

		limit, _ := cmd.Flags().GetInt("limit")
		tracker, err := s.Tracker(ctx, args[0], "")
		if err != nil {
			return err
		}
		printStats(tracker.Stats())
		printOutcomes(tracker.History(limit))
		return nil
	},
}

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Show or reset request quota usage",
}

var quotaShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show usage against every limit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, _, done, err := session(cmd)
		if err != nil {
			return err
		}
		defer done()
		printUsage(s.Limiter.Usage())
		return nil
	},
}

var quotaResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear every usage counter",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, ctx, done, err := session(cmd)
		if err != nil {
			return err
		}
		defer done()
		s.Limiter.Reset(ctx)
		fmt.Println(okStyle.Render("quota reset"))
		return nil
	},
}

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the stored API key",
}

var keySetCmd = &cobra.Command{
	Use:   "set <api-key>",
	Short: "Store the API key encrypted at rest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, ctx, done, err := session(cmd)
		if err != nil {
			return err
		}
		defer done()
		if err := s.SetAPIKey(ctx, strings.TrimSpace(args[0])); err != nil {
			return err
		}
		fmt.Println(okStyle.Render("API key stored"))
		return nil
	},
}

var keyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored API key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, ctx, done, err := session(cmd)
		if err != nil {
			return err
		}
		defer done()
		if err := s.ClearAPIKey(ctx); err != nil {
			return err
		}
		fmt.Println(okStyle.Render("API key removed"))
		return nil
	},
}

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Outbound and inbound webhook utilities",
}

var webhookTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a signed webhook.test event to notify.url",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, ctx, done, err := session(cmd)
		if err != nil {
			return err
		}
		defer done()
		if err := s.TestWebhook(ctx); err != nil {
			return err
		}
		fmt.Println(okStyle.Render("test event delivered to " + cfg.Notify.URL))
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run only the inbound completion webhook receiver",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, ctx, done, err := session(cmd)
		if err != nil {
			return err
		}
		defer done()

		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = cfg.Completion.ListenAddr
		}
		fmt.Println(titleStyle.Render("listening on " + addr))
		return s.Receiver.ListenAndServe(ctx, addr)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Args:  cobra.NoArgs,
	// Overrides the root hook so a broken config file can be replaced.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := configPath
		if path == "" {
			path = config.Path()
		}
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		def := config.Default()
		if err := config.Save(&def, path); err != nil {
			return err
		}
		fmt.Println(okStyle.Render("wrote " + path))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default $XDG_CONFIG_HOME/framesmith/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level (debug, info, warn, error)")

	analyzeCmd.Flags().Bool("discard", false, "Discard existing profiles, even a locked set, before analyzing")
	generateCmd.Flags().String("run", "", "Run ID to resume (default derived from the script)")
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum entries to show")
	serveCmd.Flags().String("addr", "", "Listen address (default completion.listen_addr)")
	initCmd.Flags().BoolP("force", "f", false, "Overwrite an existing config file")

	quotaCmd.AddCommand(quotaShowCmd, quotaResetCmd)
	keyCmd.AddCommand(keySetCmd, keyClearCmd)
	webhookCmd.AddCommand(webhookTestCmd)

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(profilesCmd)
	rootCmd.AddCommand(identitiesCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(quotaCmd)
	rootCmd.AddCommand(keyCmd)
	rootCmd.AddCommand(webhookCmd)
	rootCmd.AddCommand(serveCmd)
}
