package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vanpelt/codexlens/internal/config"
	"github.com/vanpelt/codexlens/internal/ingest"
	"github.com/vanpelt/codexlens/internal/logger"
	"github.com/vanpelt/codexlens/internal/watch"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "👀 Re-run ingestion whenever sources change",
	Long: `# 👀 Watch

**Runs ingestion once, then again every time the sources settle after a change.**

Changes are debounced so a burst of writes causes a single run. Runs never overlap.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if cmd.Flags().Changed("debounce") {
			a.cfg.WatchDebounce = watchDebounce
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		run := func() {
			sum := a.runner.Run(ctx, ingest.Options{})
			if isTerminal(os.Stdout) {
				fmt.Print(renderSummary(sum))
			}
		}

		w, err := watch.New(watchOptions(a.cfg, run))
		if err != nil {
			return err
		}

		run()
		logger.Infof("watching %d directories (debounce %s)", len(w.WatchList()), a.cfg.WatchDebounce)
		return w.Run(ctx)
	},
}

// watchOptions derives watched directories and the relevance filter from cfg
func watchOptions(cfg *config.Config, trigger func()) watch.Options {
	sessionsDir := cfg.SessionsDir()
	cliLog := filepath.Clean(cfg.CLILogPath)

	recursive := []string{sessionsDir}
	if _, err := os.Stat(sessionsDir); err != nil {
		// pick up the sessions tree when it is first created
		recursive = nil
	}
	flat := []string{cfg.SourceRoot, filepath.Dir(cliLog)}
	flat = append(flat, cfg.DesktopLogDirs...)

	return watch.Options{
		Recursive: recursive,
		Flat:      flat,
		Debounce:  cfg.WatchDebounce,
		Trigger:   trigger,
		Relevant: func(path string) bool {
			path = filepath.Clean(path)
			switch {
			case path == cliLog:
				return true
			case path == sessionsDir:
				return true
			case strings.HasPrefix(path, sessionsDir+string(filepath.Separator)):
				return strings.HasSuffix(path, ".jsonl")
			default:
				return ingest.IsDesktopLogName(filepath.Base(path))
			}
		},
	}
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 2*time.Second, "Quiet period before a run starts")
	rootCmd.AddCommand(watchCmd)
}
