package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	validate "github.com/go-playground/validator/v10"
	_ "github.com/ledgerdesk/backoffice/docs/swagger"
	"github.com/ledgerdesk/backoffice/internal/api"
	v1 "github.com/ledgerdesk/backoffice/internal/api/v1"
	"github.com/ledgerdesk/backoffice/internal/artifact"
	"github.com/ledgerdesk/backoffice/internal/browser"
	"github.com/ledgerdesk/backoffice/internal/cache"
	"github.com/ledgerdesk/backoffice/internal/compose"
	"github.com/ledgerdesk/backoffice/internal/config"
	"github.com/ledgerdesk/backoffice/internal/domain/record"
	"github.com/ledgerdesk/backoffice/internal/logger"
	"github.com/ledgerdesk/backoffice/internal/pdf"
	"github.com/ledgerdesk/backoffice/internal/raster"
	"github.com/ledgerdesk/backoffice/internal/render"
	"github.com/ledgerdesk/backoffice/internal/s3"
	"github.com/ledgerdesk/backoffice/internal/service"
	"github.com/ledgerdesk/backoffice/internal/store"
	"github.com/ledgerdesk/backoffice/internal/typst"
	"github.com/ledgerdesk/backoffice/internal/validator"
	"go.uber.org/fx"
)

// @title Back Office Documents API
// @version 1.0
// @description Numbered business documents and their printable PDF artifacts
// @BasePath /v1
// @schemes http https

func init() {
	// Document dates and artifact names are computed in UTC
	time.Local = time.UTC
}

func main() {
	var opts []fx.Option

	// Core dependencies
	opts = append(opts,
		fx.Provide(
			// Validator
			validator.NewValidator,

			// Config
			config.NewConfig,

			// Logger
			logger.NewLogger,

			// Cache
			provideCache,

			// Storage
			provideStore,
			provideRecordRepository,
			s3.NewService,
			provideArtifactStore,
		),
	)

	// Document pipeline
	opts = append(opts,
		fx.Provide(
			typst.NewCompilerFromConfig,
			browser.NewPrinter,
			render.NewRenderer,
			raster.NewRasterizer,
			compose.NewComposer,
			pdf.NewGenerator,
		),
	)

	// Services
	opts = append(opts,
		fx.Provide(
			provideArtifactReader,
			service.NewServiceParams,
			service.NewDocumentServices,
		),
	)

	// API
	opts = append(opts,
		fx.Provide(
			provideHandlers,
			api.NewRouter,
		),
		fx.Invoke(
			// Request DTOs validate through the package level validator
			func(*validate.Validate) {},
			startAPIServer,
		),
	)

	app := fx.New(opts...)
	app.Run()
}

func provideCache(cfg *config.Configuration) cache.Cache {
	return cache.NewInMemoryCache(cfg)
}

func provideStore(lc fx.Lifecycle, cfg *config.Configuration, log *logger.Logger) (*store.Store, error) {
	s, err := store.NewStore(cfg, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("Closing record store...")
			return s.Close()
		},
	})
	return s, nil
}

func provideRecordRepository(s *store.Store) record.Repository {
	return s
}

func provideArtifactStore(cfg *config.Configuration, log *logger.Logger, mirror *s3.Service) (*artifact.Store, error) {
	return artifact.NewStore(cfg, log, s3.MirrorOrNil(mirror))
}

func provideArtifactReader(s *artifact.Store) service.ArtifactReader {
	return s
}

func provideHandlers(
	services service.DocumentServices,
	s *store.Store,
	cfg *config.Configuration,
	logger *logger.Logger,
) api.Handlers {
	return api.Handlers{
		Health:   v1.NewHealthHandler(s, logger),
		Document: v1.NewDocumentHandler(services, cfg, logger),
	}
}

func startAPIServer(
	lc fx.Lifecycle,
	r *gin.Engine,
	cfg *config.Configuration,
	log *logger.Logger,
) {
	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: r,
		// Artifacts are generated inside the request, so the write timeout
		// must outlast the render, raster and compose budgets together.
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Render.Timeout + cfg.Raster.Timeout + time.Minute,
	}

	log.Info("Registering API server start hook")
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("Starting API server...", "address", cfg.Server.Address, "mode", cfg.Deployment.Mode)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatalf("Failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down server...")
			return srv.Shutdown(ctx)
		},
	})
}
