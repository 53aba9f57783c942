package comparison

import (
	"errors"
	"strconv"
	"time"

	"data-reconciler/core/datasets"
	"data-reconciler/core/logger"
	"data-reconciler/core/pipeline"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for comparisons.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the comparison routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/comparisons")
	group.Get("/", h.HandleList)
	group.Post("/run", h.HandleRun)
	group.Get("/last", h.HandleLast)
}

// HandleList returns the configured comparisons.
func (h *Handler) HandleList(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"comparisons": h.service.Comparisons(),
	})
}

// HandleRun runs the pipeline, optionally for one pair and with a cutoff override.
func (h *Handler) HandleRun(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	opts := pipeline.Options{Pair: c.Query("pair")}
	if raw := c.Query("cutoff"); raw != "" {
		cutoff, err := datasets.ParseCutoff(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		opts.Cutoff = &cutoff
	}
	if raw := c.Query("force"); raw != "" {
		force, err := strconv.ParseBool(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "force must be a boolean"})
		}
		opts.ForceRestage = force
	}

	l.Info("Triggering reconciliation run", zap.String("pair", opts.Pair), zap.Bool("force", opts.ForceRestage))
	started := time.Now()
	res, err := h.service.Run(c.Context(), opts)
	switch {
	case errors.Is(err, ErrRunInProgress):
		l.Warn("Run rejected", zap.Error(err))
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, pipeline.ErrPairNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		l.Error("Run failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	l.Info("Reconciliation run completed",
		zap.String("run_id", res.RunID),
		zap.Bool("failed", res.Failed()),
		zap.Duration("took", time.Since(started)))
	return c.JSON(res)
}

// HandleLast returns the most recent run result.
func (h *Handler) HandleLast(c *fiber.Ctx) error {
	res, ok := h.service.Last()
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no run has completed yet"})
	}
	return c.JSON(res)
}
