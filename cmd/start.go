package cmd

import (
	"fmt"

	"data-reconciler/core/loader"
	"data-reconciler/core/logger"
	"data-reconciler/core/middleware/auth"
	"data-reconciler/core/middleware/rayid"
	"data-reconciler/feature/comparison"
	"data-reconciler/feature/integrity"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the reconciliation server",
	Long:  `Starts the HTTP server, initializes all enabled features and, when SERVER_SCHEDULE is set, runs every comparison on that cron schedule.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. Configuration, logger, datasets, storage and database
		env, err := setup()
		if err != nil {
			return err
		}
		logg := env.log
		defer logg.Sync()
		zap.ReplaceGlobals(logg)

		if !env.cfg.Server.IsValidSchedule() {
			return fmt.Errorf("invalid server schedule %q", env.cfg.Server.Schedule)
		}

		// 2. Initialize Fiber App
		app := fiber.New(fiber.Config{
			DisableStartupMessage: true, // We will log our own startup message
		})

		// 3. Initialize Feature Loader
		svc := comparison.NewService(env.runner, logg)
		mgr := loader.NewManager()
		mgr.Register(comparison.NewFeature(svc))
		mgr.Register(integrity.NewFeature(env.runner, env.store, env.bucket(),
			[]string{env.cfg.Staging.Dir, env.cfg.Report.Dir}, env.db, logg))

		// Middleware Registration
		// 1. RayID (Must be first to trace everything)
		app.Use(rayid.New())

		// 2. Logging Middleware (Custom to use Zap + RayID)
		app.Use(func(c *fiber.Ctx) error {
			l := logger.WithRayID(logg, c)
			l.Info("Request started",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
			)
			err := c.Next()
			if err != nil {
				l.Error("Request error", zap.Error(err))
			}
			return err
		})

		// 3. Auth (Protect API)
		app.Use(auth.New(auth.Config{ApiKey: env.cfg.Server.ApiKey}))

		// 4. Load Features
		if err := mgr.LoadAll(app); err != nil {
			return fmt.Errorf("failed to load features: %w", err)
		}

		// 5. Scheduled runs
		if env.cfg.Server.HasSchedule() {
			scheduler, err := comparison.NewScheduler(svc, env.cfg.Server.Schedule, logg)
			if err != nil {
				return err
			}
			scheduler.Start()
			defer scheduler.Stop()
		}

		// 6. Start Server
		serveErr := make(chan error, 1)
		go func() {
			logg.Info("Starting server", zap.String("port", env.cfg.Server.Port))
			serveErr <- app.Listen(":" + env.cfg.Server.Port)
		}()

		// 7. Graceful Shutdown
		select {
		case err := <-serveErr:
			return fmt.Errorf("server failed to start: %w", err)
		case <-cmd.Context().Done():
		}
		logg.Info("Shutting down server...")
		return app.Shutdown()
	},
}

func init() {
	RootCmd.AddCommand(startCmd)
}
