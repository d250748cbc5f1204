package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nivaasika/nivaasika-engine/pkg/classifier"
	"github.com/nivaasika/nivaasika-engine/pkg/config"
	"github.com/nivaasika/nivaasika-engine/pkg/database"
	"github.com/nivaasika/nivaasika-engine/pkg/handlers"
	"github.com/nivaasika/nivaasika-engine/pkg/llm"
	"github.com/nivaasika/nivaasika-engine/pkg/logging"
	"github.com/nivaasika/nivaasika-engine/pkg/middleware"
	"github.com/nivaasika/nivaasika-engine/pkg/ratelimit"
	"github.com/nivaasika/nivaasika-engine/pkg/repositories"
	"github.com/nivaasika/nivaasika-engine/pkg/services"
)

const shutdownTimeout = 15 * time.Second

var skipMigrations bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServer(ctx)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply pending migrations at startup")
	rootCmd.AddCommand(serveCmd)
}

func runServer(ctx context.Context) error {
	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("database", fmt.Sprintf("%s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)),
		zap.Bool("redis", cfg.Redis.Enabled()),
		zap.String("provider", cfg.Classifier.Provider),
		zap.Bool("mock_mode", cfg.Classifier.MockMode))

	db, err := connectDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if !skipMigrations {
		if err := migrateUp(); err != nil {
			return err
		}
	}

	limiter, closeLimiter, err := newLimiter(ctx)
	if err != nil {
		return err
	}
	defer closeLimiter()

	defects := classifier.New(newVisionClient(), limiter, classifier.Config{
		MockMode:            cfg.Classifier.MockMode,
		MaxConcurrentImages: cfg.Classifier.MaxConcurrentImages,
		CircuitBreaker: llm.CircuitBreakerConfig{
			Threshold:  cfg.Classifier.BreakerThreshold,
			ResetAfter: cfg.Classifier.BreakerResetAfter,
		},
	}, logger)

	propertyRepo := repositories.NewPropertyRepository()
	findingRepo := repositories.NewFindingRepository()
	improvementRepo := repositories.NewImprovementRepository()
	summaryRepo := repositories.NewSummaryRepository()
	ruleRepo := repositories.NewRuleRepository()
	queryRepo := repositories.NewQueryRepository()

	ruleService := services.NewRuleService(ruleRepo, db, logger)
	propertyService := services.NewPropertyService(propertyRepo, findingRepo, improvementRepo, summaryRepo, queryRepo, logger)
	inspectionService := services.NewInspectionService(
		propertyRepo, findingRepo, improvementRepo, summaryRepo,
		ruleService, defects, limiter, db, logger,
	)

	scope := database.WithScope(db, logger)
	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, db, logger).RegisterRoutes(mux)
	handlers.NewPropertyHandler(propertyService, logger).RegisterRoutes(mux, scope)
	handlers.NewInspectionHandler(inspectionService, logger).RegisterRoutes(mux, scope)

	handler := middleware.Recoverer(logger)(middleware.RequestLogger(logger)(mux))

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// Room analysis waits on the rate limiter and the provider.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting nivaasika-engine", zap.String("addr", server.Addr), zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func databaseConfig(c *config.DatabaseConfig) *database.Config {
	return &database.Config{
		URL:             c.ConnectionString(),
		MaxConnections:  c.MaxConnections,
		MaxConnLifetime: c.MaxConnLifetime,
		MaxConnIdleTime: c.MaxConnIdleTime,
	}
}

func connectDatabase(ctx context.Context) (*database.DB, error) {
	db, err := database.NewConnection(ctx, databaseConfig(&cfg.Database), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %s", logging.SanitizeError(err))
	}
	logger.Info("Connected to database", zap.String("host", cfg.Database.Host), zap.String("database", cfg.Database.Database))
	return db, nil
}

// newLimiter shares the request log through Redis when one is configured.
func newLimiter(ctx context.Context) (ratelimit.RequestLimiter, func(), error) {
	rlCfg := ratelimit.Config{
		MaxRequests:  cfg.RateLimit.MaxRequests,
		Window:       cfg.RateLimit.Window,
		SafetyBuffer: cfg.RateLimit.SafetyBuffer,
	}

	client, err := database.NewRedisClient(ctx, &cfg.Redis, logger)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		return ratelimit.New(rlCfg, ratelimit.RealClock{}, logger), func() {}, nil
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Warn("Failed to close Redis client", zap.Error(err))
		}
	}
	return ratelimit.NewRedisLimiter(client, cfg.Redis.Key, rlCfg, ratelimit.RealClock{}, logger), closeFn, nil
}

// newVisionClient returns nil when the provider cannot be set up; the
// classifier then serves sample data instead of failing requests.
func newVisionClient() llm.VisionClient {
	if cfg.Classifier.MockMode {
		return nil
	}
	client, err := llm.NewVisionClient(&llm.Config{
		Provider:  cfg.Classifier.Provider,
		Endpoint:  cfg.Classifier.BaseURL,
		Model:     cfg.Classifier.Model,
		APIKey:    cfg.Classifier.APIKey,
		MaxTokens: cfg.Classifier.MaxTokens,
		Timeout:   cfg.Classifier.Timeout,
	}, logger)
	if err != nil {
		logger.Warn("Vision provider unavailable, classifier will degrade",
			zap.String("provider", cfg.Classifier.Provider),
			zap.String("error", logging.SanitizeError(err)))
		return nil
	}
	return client
}
