package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/vanpelt/codexlens/internal/config"
	"github.com/vanpelt/codexlens/internal/logger"
)

// global flags shared by every command
var (
	configPath   string
	logLevel     string
	devMode      bool
	sourceRoot   string
	databasePath string
	retainBodies bool
)

var rootCmd = &cobra.Command{
	Use:   "codexlens",
	Short: "🔎 Codexlens - incremental Codex telemetry ingestion",
	Long: `# 🔎 Codexlens

**Turns local Codex session transcripts, the CLI log and desktop app logs into deduplicated records.**

## ✨ Features

- 📥 **Incremental ingestion** that resumes from per-file watermarks
- 🔧 **Tool-call reconstruction** from scattered CLI log markers
- 🔒 **Privacy filtering** and redaction of desktop logs
- 👀 **Watch mode** that re-runs when sources change
- 🌐 **HTTP trigger** for other local tools

## 🚀 Getting Started

Run **codexlens ingest** once, or **codexlens watch** to keep the database current.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Path to config file (default ~/.codexlens/config.yaml)")
	flags.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.BoolVar(&devMode, "dev", false, "Pretty console logging")
	flags.StringVar(&sourceRoot, "source-root", "", "Codex home to ingest from (default $CODEX_HOME or ~/.codex)")
	flags.StringVar(&databasePath, "db", "", "SQLite database path")
	flags.BoolVar(&retainBodies, "retain-bodies", false, "Store raw message bodies (off by default for privacy)")

	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		renderMarkdownHelp(cmd)
	})
}

// loadConfig builds the effective configuration: file and environment, then
// flags, and configures logging from it
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("source-root") {
		cfg.SetSourceRoot(sourceRoot)
	}
	if flags.Changed("db") {
		cfg.DatabasePath = databasePath
	}
	if flags.Changed("retain-bodies") {
		cfg.RetainMessageBodies = retainBodies
	}

	level := logger.LevelFromEnv(cfg.LogLevel)
	if flags.Changed("log-level") {
		level = logger.ParseLevel(logLevel)
	}
	logger.Configure(level, devMode || isTerminal(os.Stderr))
	return cfg, nil
}

// renderMarkdownHelp renders command help using glamour for beautiful markdown display
func renderMarkdownHelp(cmd *cobra.Command) {
	var helpContent strings.Builder

	if cmd.Long != "" {
		helpContent.WriteString(cmd.Long)
		helpContent.WriteString("\n\n")
	} else if cmd.Short != "" {
		helpContent.WriteString("# " + cmd.Short)
		helpContent.WriteString("\n\n")
	}

	helpContent.WriteString("## 📖 Usage\n\n")
	helpContent.WriteString("```bash\n")
	helpContent.WriteString(cmd.UseLine())
	helpContent.WriteString("\n```\n\n")

	if cmd.HasAvailableSubCommands() {
		helpContent.WriteString("## 🔧 Available Commands\n\n")
		for _, subCmd := range cmd.Commands() {
			if subCmd.IsAvailableCommand() {
				helpContent.WriteString(fmt.Sprintf("- **%s** - %s\n", subCmd.Name(), subCmd.Short))
			}
		}
		helpContent.WriteString("\n")
	}

	if cmd.HasAvailableLocalFlags() {
		helpContent.WriteString("## ⚙️  Flags\n\n")
		helpContent.WriteString("```\n")
		helpContent.WriteString(cmd.LocalFlags().FlagUsages())
		helpContent.WriteString("```\n\n")
	}

	if cmd.HasParent() && cmd.InheritedFlags().HasFlags() {
		helpContent.WriteString("## 🌐 Global Flags\n\n")
		helpContent.WriteString("```\n")
		helpContent.WriteString(cmd.InheritedFlags().FlagUsages())
		helpContent.WriteString("```\n\n")
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		// Fallback to default help if glamour fails
		_ = cmd.Usage()
		return
	}

	rendered, err := renderer.Render(helpContent.String())
	if err != nil {
		_ = cmd.Usage()
		return
	}

	fmt.Print(rendered)
}
