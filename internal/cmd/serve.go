package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"

	"github.com/vanpelt/codexlens/internal/handlers"
	"github.com/vanpelt/codexlens/internal/logger"
	"github.com/vanpelt/codexlens/internal/middleware"
	"github.com/vanpelt/codexlens/internal/recovery"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "🌐 Serve the HTTP ingestion trigger",
	Long: `# 🌐 Serve

**Exposes ingestion over HTTP for other local tools.**

## 🔗 Endpoints

- **POST /v1/ingest** - run now (` + "`?full=true`, `?wait=false`" + `)
- **GET /v1/ingest/status** - whether a run is active, and the last summary
- **GET /v1/ingest/watermarks** - per-file read cursors

Set **CODEXLENS_TOKEN** to require a bearer token.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		addr := a.cfg.ListenAddr
		if cmd.Flags().Changed("addr") {
			addr = serveAddr
		}

		app := newServer(a)
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		recovery.SafeGo("http-shutdown", func() {
			<-ctx.Done()
			if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
				logger.Warnf("shutdown: %v", err)
			}
		})

		logger.Infof("listening on %s", addr)
		return app.Listen(addr)
	},
}

func newServer(a *app) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "codexlens",
		DisableStartupMessage: true,
	})
	app.Use(handlers.SamplingLogger(10, "/v1/ingest/status"))
	app.Use(middleware.NewAuthMiddlewareFromEnv().RequireAuth)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	handlers.NewIngestHandler(a.runner, a.store).Register(app.Group("/v1"))
	return app
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default 127.0.0.1:7788)")
	rootCmd.AddCommand(serveCmd)
}
