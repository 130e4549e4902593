// Package cli provides the command-line interface for fieldwork.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"fieldwork/internal/client"
	"fieldwork/internal/config"
	"fieldwork/internal/metrics"
	"fieldwork/internal/models"
	"fieldwork/internal/session"
	"fieldwork/internal/store"
	"fieldwork/internal/syncer"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool
	offline bool

	// Shared runtime, wired in PersistentPreRunE
	cfg       config.Config
	collector *metrics.Collector
	st        *store.Store
	api       *client.Client
	orch      *syncer.Orchestrator
	mgr       *session.Manager

	closeLogs func() error
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "fieldwork",
	Short: "Local-first customer discovery interviews",
	Long: `Fieldwork manages customer discovery interview sessions from the terminal.

Sessions live in a local store first and sync to the backend in the
background whenever it is reachable, so interviews keep working on a
train or in a basement. Transcripts import from and export to plain
Markdown.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip setup for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()

		// The watch view owns the terminal; keep logs out of stderr there.
		var logger *slog.Logger
		if cmd.Name() == "watch" {
			logger, closeLogs = config.SetupFileLogger(cfg.LogFile, cfg.LogLevel)
		} else {
			stderrLevel := slog.LevelWarn
			if verbose {
				stderrLevel = slog.LevelDebug
			}
			logger, closeLogs = config.SetupLogger(cfg.LogFile, stderrLevel, cfg.LogLevel)
		}
		slog.SetDefault(logger)

		collector = metrics.NewCollector()

		var err error
		st, err = store.Open(cfg.DBPath(), collector)
		if err != nil {
			return fmt.Errorf("open local store: %w", err)
		}

		api = client.New(cfg.APIURL)
		if cfg.APIToken != "" {
			api.SetToken(cfg.APIToken)
		}
		api.SetMetrics(collector)

		orch = syncer.New(st, api, collector, syncer.Options{
			ReconnectDebounce: cfg.ReconnectDebounce,
			ProbeInterval:     cfg.ProbeInterval,
		})
		mgr = session.NewManager(st, orch, session.Options{SaveDebounce: cfg.SaveDebounce})

		if !offline {
			probeCtx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
			orch.Probe(probeCtx)
			cancel()
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		if mgr != nil {
			mgr.Close(ctx)
		}
		if orch != nil {
			orch.Close()
		}
		if st != nil {
			if err := st.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close store: %v\n", err)
			}
		}
		if closeLogs != nil {
			_ = closeLogs()
		}
	},
}

// currentSession loads the session the CLI last had open.
func currentSession(ctx context.Context) (*models.Session, error) {
	sess, err := mgr.Resume(ctx)
	if err != nil {
		return nil, fmt.Errorf("resume session: %w", err)
	}
	if sess == nil {
		return nil, fmt.Errorf("no active session (start one with 'fieldwork new')")
	}
	return sess, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "skip the backend connectivity probe")

	// Add subcommands
	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(useCmd)
	rootCmd.AddCommand(sayCmd)
	rootCmd.AddCommand(contextCmd)
	rootCmd.AddCommand(questionsCmd)
	rootCmd.AddCommand(personasCmd)
	rootCmd.AddCommand(completeCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
}
