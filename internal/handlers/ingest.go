package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/vanpelt/codexlens/internal/ingest"
	"github.com/vanpelt/codexlens/internal/logger"
	"github.com/vanpelt/codexlens/internal/models"
	"github.com/vanpelt/codexlens/internal/recovery"
)

// Runner is the part of the ingestion runner the HTTP surface needs
type Runner interface {
	Run(ctx context.Context, opts ingest.Options) *ingest.Summary
	LastSummary() *ingest.Summary
	Running() bool
}

// WatermarkLister lists persisted read cursors
type WatermarkLister interface {
	ListWatermarks(ctx context.Context) ([]models.Watermark, error)
}

// IngestStatus is the response of the status endpoint
type IngestStatus struct {
	Running bool            `json:"running"`
	Last    *ingest.Summary `json:"last"`
}

// IngestHandler triggers ingestion runs and reports on them
type IngestHandler struct {
	runner     Runner
	watermarks WatermarkLister
	timeout    time.Duration
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(runner Runner, watermarks WatermarkLister) *IngestHandler {
	return &IngestHandler{
		runner:     runner,
		watermarks: watermarks,
		timeout:    10 * time.Minute,
	}
}

// Register mounts the ingest routes on router
func (h *IngestHandler) Register(router fiber.Router) {
	router.Post("/ingest", h.TriggerRun)
	router.Get("/ingest/status", h.GetStatus)
	router.Get("/ingest/watermarks", h.GetWatermarks)
}

// TriggerRun runs ingestion once
// @Summary Trigger an ingestion run
// @Description Runs ingestion now. By default the request waits for the run and returns its summary; with wait=false the run starts in the background.
// @Tags ingest
// @Produce json
// @Param full query bool false "Ignore watermarks and reprocess every file"
// @Param wait query bool false "Wait for the run to finish (default true)"
// @Success 200 {object} ingest.Summary
// @Success 202 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /v1/ingest [post]
func (h *IngestHandler) TriggerRun(c *fiber.Ctx) error {
	opts := ingest.Options{Full: c.QueryBool("full", false)}

	if !c.QueryBool("wait", true) {
		if h.runner.Running() {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": ingest.ErrRunInProgress.Error(),
			})
		}
		recovery.SafeGo("ingest-run", func() {
			ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
			defer cancel()
			h.runner.Run(ctx, opts)
		})
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "started"})
	}

	summary := h.runner.Run(c.UserContext(), opts)
	if summary.Rejected {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": ingest.ErrRunInProgress.Error(),
		})
	}
	return c.JSON(summary)
}

// GetStatus reports whether a run is active and the last run's summary
// @Summary Get ingestion status
// @Tags ingest
// @Produce json
// @Success 200 {object} IngestStatus
// @Router /v1/ingest/status [get]
func (h *IngestHandler) GetStatus(c *fiber.Ctx) error {
	return c.JSON(IngestStatus{
		Running: h.runner.Running(),
		Last:    h.runner.LastSummary(),
	})
}

// GetWatermarks lists the read cursor of every tracked file
// @Summary List watermarks
// @Tags ingest
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 500 {object} map[string]string
// @Router /v1/ingest/watermarks [get]
func (h *IngestHandler) GetWatermarks(c *fiber.Ctx) error {
	marks, err := h.watermarks.ListWatermarks(c.UserContext())
	if err != nil {
		logger.Errorf("failed to list watermarks: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if marks == nil {
		marks = []models.Watermark{}
	}
	return c.JSON(fiber.Map{
		"count":      len(marks),
		"watermarks": marks,
	})
}
