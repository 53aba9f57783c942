package integrity

import (
	"data-reconciler/core/logger"
	"data-reconciler/core/staging"
	"data-reconciler/feature/integrity/checks"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for integrity checks.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the integrity routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/integrity")
	group.Get("/", h.HandleIntegrityCheck)
	group.Get("/structure", h.HandleStructureCheck)
	group.Get("/datasets", h.HandleDatasetsCheck)
	group.Get("/sources", h.HandleSourcesCheck)
	group.Get("/cache", h.HandleCacheCheck)
}

// HandleIntegrityCheck triggers all integrity checks.
func (h *Handler) HandleIntegrityCheck(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)
	l.Info("Triggering all integrity checks")

	ctx := c.Context()
	report := make(map[string]interface{})

	// Structure
	if missing, err := h.service.CheckStructure(ctx); err != nil {
		report["structure"] = map[string]interface{}{"status": "error", "error": err.Error()}
	} else {
		report["structure"] = map[string]interface{}{"status": "ok", "missing": missing}
	}

	// Datasets
	datasets := h.service.CheckDatasets(ctx)
	report["datasets"] = map[string]interface{}{"status": "ok", "missing": missingDatasets(datasets), "datasets": datasets}

	// Sources
	if srcReport, err := h.service.CheckSources(); err != nil {
		report["sources"] = map[string]interface{}{"status": "error", "error": err.Error()}
	} else {
		report["sources"] = srcReport
	}

	// Cache (stats every source)
	if statuses, err := h.service.CheckCache(ctx); err != nil {
		report["cache"] = map[string]interface{}{"status": "error", "error": err.Error()}
	} else {
		report["cache"] = map[string]interface{}{"status": "ok", "stale": staleDatasets(statuses), "datasets": statuses}
	}

	return c.JSON(report)
}

// HandleStructureCheck checks and optionally fixes the working directories and report bucket.
func (h *Handler) HandleStructureCheck(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)
	fix := c.Query("fix") == "true"

	missing, err := h.service.CheckStructure(c.Context())
	if err != nil {
		l.Error("Structure check failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	if len(missing) > 0 {
		l.Warn("Missing structure detected", zap.Strings("missing", missing))

		if fix {
			l.Info("Attempting to fix missing structure")
			if err := h.service.FixStructure(c.Context(), missing); err != nil {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error":   "Failed to fix structure",
					"details": err.Error(),
					"missing": missing,
				})
			}
			return c.JSON(fiber.Map{
				"status": "fixed",
				"fixed":  missing,
			})
		}
	}

	return c.JSON(fiber.Map{
		"status":  "checked",
		"missing": missing,
	})
}

// HandleDatasetsCheck reports which dataset sources exist.
func (h *Handler) HandleDatasetsCheck(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	reports := h.service.CheckDatasets(c.Context())
	missing := missingDatasets(reports)
	if len(missing) > 0 {
		l.Warn("Missing dataset sources detected", zap.Strings("missing", missing))
	}

	return c.JSON(fiber.Map{
		"status":   "checked",
		"missing":  missing,
		"datasets": reports,
	})
}

// HandleSourcesCheck checks that database tables carry the configured columns.
func (h *Handler) HandleSourcesCheck(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)
	l.Info("Starting database source check")

	report, err := h.service.CheckSources()
	if err != nil {
		l.Error("Database source check failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(report)
}

// HandleCacheCheck reports staging cache freshness and drift per dataset.
func (h *Handler) HandleCacheCheck(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	statuses, err := h.service.CheckCache(c.Context())
	if err != nil {
		l.Error("Cache check failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"status":   "checked",
		"stale":    staleDatasets(statuses),
		"datasets": statuses,
	})
}

func missingDatasets(reports []checks.DatasetReport) []string {
	missing := []string{}
	for _, r := range reports {
		if r.Status == checks.StatusMissing {
			missing = append(missing, r.Dataset)
		}
	}
	return missing
}

// staleDatasets lists cached datasets that would be restaged.
func staleDatasets(statuses []*staging.CacheStatus) []string {
	stale := []string{}
	for _, st := range statuses {
		if st.Cached && !st.Fresh {
			stale = append(stale, st.Dataset)
		}
	}
	return stale
}
