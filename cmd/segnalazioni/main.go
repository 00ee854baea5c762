package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/vbonduro/segnalazioni/internal/auth"
	"github.com/vbonduro/segnalazioni/internal/config"
	"github.com/vbonduro/segnalazioni/internal/db"
	"github.com/vbonduro/segnalazioni/internal/dispatch"
	"github.com/vbonduro/segnalazioni/internal/logging"
	"github.com/vbonduro/segnalazioni/internal/metrics"
	"github.com/vbonduro/segnalazioni/internal/photostore"
	"github.com/vbonduro/segnalazioni/internal/photostore/local"
	s3store "github.com/vbonduro/segnalazioni/internal/photostore/s3"
	"github.com/vbonduro/segnalazioni/internal/service"
	"github.com/vbonduro/segnalazioni/internal/store"
	"github.com/vbonduro/segnalazioni/internal/upload"
	"github.com/vbonduro/segnalazioni/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer cleanup()

	if cfg.DefaultCredentials() {
		logger.Warn("using built-in operator credentials; set ADMIN_USER and ADMIN_PASS_HASH")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		logger.Error("failed to create data directory", "error", err)
		return
	}
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	photos, err := newPhotoStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize photo store", "error", err)
		return
	}

	verifier, err := newVerifier(cfg)
	if err != nil {
		logger.Error("failed to initialize operator credentials", "error", err)
		return
	}

	formatter, err := dispatch.NewFormatter(cfg.MessageTitle, cfg.MessageTimezone)
	if err != nil {
		logger.Error("failed to initialize message formatter", "error", err)
		return
	}

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	reportService := service.NewReportService(
		store.NewReportStore(database),
		upload.NewImageAcceptor(photos),
		photos,
		formatter,
		m,
		logger,
		cfg.MaxUploadBytes,
	)
	server := web.NewServer(reportService, photos, web.Options{
		Verifier:       verifier,
		Metrics:        m,
		AllowedOrigins: cfg.ClientOrigins,
		MaxUploadBytes: cfg.MaxUploadBytes,
		PublicBaseURL:  cfg.PublicBaseURL,
		ClientDist:     cfg.ClientDist,
	}, logger)

	if err := server.ListenAndServe(ctx, cfg.ListenAddr); err != nil {
		logger.Error("server error", "error", err)
	}
}

func newPhotoStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (photostore.PhotoStore, error) {
	switch cfg.PhotoBackend {
	case "s3":
		logger.Info("using S3 photo store", "bucket", cfg.S3.Bucket, "endpoint", cfg.S3.Endpoint)
		return s3store.NewS3PhotoStore(ctx, s3store.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			Prefix:          cfg.S3.Prefix,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
	default:
		logger.Info("using local photo store", "path", cfg.PhotoPath)
		return local.NewLocalPhotoStore(cfg.PhotoPath)
	}
}

func newVerifier(cfg *config.Config) (auth.Verifier, error) {
	if cfg.AdminPassHash != "" {
		return auth.NewBcrypt(cfg.AdminUser, cfg.AdminPassHash)
	}
	return auth.Static{User: cfg.AdminUser, Pass: cfg.AdminPass}, nil
}
