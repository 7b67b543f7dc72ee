package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vanpelt/codexlens/internal/ingest"
)

var (
	ingestFull bool
	ingestJSON bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "📥 Run one ingestion pass",
	Long: `# 📥 Ingest

**Reads everything appended to the Codex sources since the last run and stores it.**

## 📁 Sources

- **sessions/**/*.jsonl** - session transcripts under the source root
- **log/codex-tui.log** - the CLI's own log, for tool calls
- **codex-desktop-*.log** - desktop app logs, privacy filtered

## 💡 Examples

Incremental run:
` + "```bash\ncodexlens ingest\n```" + `

Reprocess everything, printing the summary as JSON:
` + "```bash\ncodexlens ingest --full --json\n```",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sum := a.runner.Run(ctx, ingest.Options{Full: ingestFull})
		if ingestJSON {
			return writeJSON(os.Stdout, sum)
		}
		fmt.Print(renderSummary(sum))
		if sum.Rejected {
			return ingest.ErrRunInProgress
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestFull, "full", false, "Ignore watermarks and reprocess every file")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "Print the run summary as JSON")
	rootCmd.AddCommand(ingestCmd)
}
