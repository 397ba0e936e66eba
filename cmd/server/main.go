// Command tim-server serves the content API used by the admin client.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/and161185/tim-admin/internal/config"
	"github.com/and161185/tim-admin/internal/limiter"
	"github.com/and161185/tim-admin/internal/migrate"
	"github.com/and161185/tim-admin/internal/model"
	"github.com/and161185/tim-admin/internal/repository/postgres"
	"github.com/and161185/tim-admin/internal/server/httpapi"
	"github.com/and161185/tim-admin/internal/service"
	"github.com/and161185/tim-admin/internal/storage/images"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const (
	shutdownTimeout = 10 * time.Second
	sweepEvery      = time.Hour
)

func main() {
	cfgPath := flag.String("config", "", "path to YAML config (optional)")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.LoadServer(*cfgPath)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Server, logger *zap.Logger) error {
	if err := migrate.Up(ctx, cfg.DatabaseURL); err != nil {
		return err
	}

	db, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	users := postgres.NewUserRepo(db)
	tokens := postgres.NewTokenRepo(db)
	lim := limiter.NewPG(db.Pool, cfg.Login.Window, cfg.Login.MaxFails, cfg.Login.Block)

	authSvc := service.NewAuthService(users, tokens, lim, service.AuthConfig{
		SignKey:    []byte(cfg.JWTSecret),
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	}, logger)
	if cfg.AdminPassword != "" {
		if err := authSvc.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
			return err
		}
	}

	store, imagesDir, err := imageStore(ctx, cfg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	router := httpapi.NewRouter(httpapi.Options{
		Log:  logger,
		Auth: authSvc,
		Content: httpapi.Content{
			Services: service.NewContent(service.Services, postgres.NewTable(db, postgres.Services), store,
				func(v model.Service) string { return v.Image }, logger),
			Reviews: service.NewContent(service.Reviews, postgres.NewTable(db, postgres.Reviews), store,
				func(v model.Review) string { return v.UserImg }, logger),
			Distributors: service.NewContent(service.Distributors, postgres.NewTable(db, postgres.Distributors), store,
				func(v model.Distributor) string { return v.Image }, logger),
			Projects: service.NewContent(service.Projects, postgres.NewTable(db, postgres.Projects), store,
				func(v model.Project) string { return v.Image }, logger),
			Translations: service.NewContent(service.Translations, postgres.NewTable(db, postgres.Translations), store,
				nil, logger),
		},
		ImagesDir:      imagesDir,
		MaxUploadBytes: cfg.MaxUploadBytes,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Registry:       reg,
		Health:         db.Ping,
	})

	go sweepTokens(ctx, tokens, logger)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// imageStore picks MinIO when configured; otherwise images live on disk and
// are served by the API itself.
func imageStore(ctx context.Context, cfg *config.Server) (images.Store, string, error) {
	if cfg.S3.Enabled() {
		s, err := images.NewMinIO(ctx, cfg.S3)
		return s, "", err
	}
	d, err := images.NewDisk(cfg.ImagesDir, cfg.PublicBaseURL)
	if err != nil {
		return nil, "", err
	}
	return d, d.Dir(), nil
}

type expiredTokens interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

func sweepTokens(ctx context.Context, tokens expiredTokens, logger *zap.Logger) {
	t := time.NewTicker(sweepEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := tokens.DeleteExpired(ctx)
			if err != nil {
				logger.Warn("sweep refresh tokens", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("swept refresh tokens", zap.Int64("count", n))
			}
		}
	}
}
