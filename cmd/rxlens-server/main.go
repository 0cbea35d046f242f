package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rxlens/rxlens/internal/config"
	"github.com/rxlens/rxlens/internal/exposure"
	"github.com/rxlens/rxlens/internal/platform/auth"
	"github.com/rxlens/rxlens/internal/platform/db"
	"github.com/rxlens/rxlens/internal/platform/middleware"
	"github.com/rxlens/rxlens/internal/platform/vocabfetch"
	"github.com/rxlens/rxlens/internal/timeline"
	"github.com/rxlens/rxlens/internal/vocab"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rxlens-server",
		Short: "Drug exposure analysis API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(vocabCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func vocabCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vocab",
		Short: "Manage reference vocabularies",
	}

	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download vocabulary files from the configured index page",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.VocabBaseURL == "" {
				return fmt.Errorf("VOCAB_BASE_URL is required for vocab fetch")
			}
			if dir == "" {
				dir = cfg.VocabDir
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create vocab dir: %w", err)
			}

			fetched, err := vocabfetch.New(cfg.VocabBaseURL, logger).FetchAll(cmd.Context(), dir)
			if err != nil {
				return err
			}
			fmt.Printf("Downloaded %d vocabulary file(s) into %s\n", len(fetched), dir)
			return nil
		},
	}
	fetchCmd.Flags().String("dir", "", "Target directory (defaults to VOCAB_DIR)")
	cmd.AddCommand(fetchCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Load the vocabularies and report their state",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			svc, closer, err := loadVocabulary(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closer()

			fmt.Printf("Vocabulary OK: %d concepts, %d resolved strength rows\n",
				svc.ConceptCount(), svc.StrengthCount())
			return nil
		},
	})

	return cmd
}

func newLogger() zerolog.Logger {
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// loadVocabulary builds the reference data service from the configured
// source and returns a closer for any underlying pool.
func loadVocabulary(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*vocab.Service, func(), error) {
	opts := vocab.Options{KeepOnlyValidUnits: cfg.KeepOnlyValidUnits}

	switch cfg.VocabSource {
	case "postgres":
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to vocabulary database: %w", err)
		}
		svc, err := vocab.New(ctx, vocab.NewPGRepository(pool, cfg.VocabSchema), opts, logger)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return svc, pool.Close, nil
	default:
		svc, err := vocab.New(ctx, vocab.NewCSVRepository(cfg.VocabDir), opts, logger)
		if err != nil {
			return nil, nil, err
		}
		return svc, func() {}, nil
	}
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	vocabSvc, closeVocab, err := loadVocabulary(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load vocabularies")
	}
	defer closeVocab()
	logger.Info().
		Str("source", cfg.VocabSource).
		Int("concepts", vocabSvc.ConceptCount()).
		Int("strengths", vocabSvc.StrengthCount()).
		Msg("vocabularies loaded")

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.BodyLimit("1M", cfg.UploadBodyLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))

	// Auth middleware
	if cfg.ResolvedAuthMode() == "development" {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			SigningKey: []byte(cfg.AuthSigningKey),
		}))
	}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"version":   "0.1.0",
			"concepts":  vocabSvc.ConceptCount(),
			"strengths": vocabSvc.StrengthCount(),
		})
	})

	// API routes
	apiV1 := e.Group("/api/v1")

	exposureSvc := exposure.NewService(vocabSvc, logger)
	exposure.NewHandler(exposureSvc, logger).RegisterRoutes(apiV1)
	timeline.NewHandler(exposureSvc, logger).RegisterRoutes(apiV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
