// Package app wires the client SDK into one process-wide instance.
package app

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/and161185/tim-admin/internal/client/api"
	"github.com/and161185/tim-admin/internal/client/gateway"
	"github.com/and161185/tim-admin/internal/client/guard"
	"github.com/and161185/tim-admin/internal/client/idle"
	"github.com/and161185/tim-admin/internal/client/notify"
	"github.com/and161185/tim-admin/internal/client/session"
	"github.com/and161185/tim-admin/internal/client/token"
	"github.com/and161185/tim-admin/internal/client/tokenstore"
	"github.com/and161185/tim-admin/internal/config"
)

// Options override collaborators; zero values select the defaults.
type Options struct {
	Store      tokenstore.Store
	Notifier   notify.Notifier
	Navigator  session.Navigator
	Scheduler  idle.Scheduler
	HTTPClient *http.Client
	Registerer prometheus.Registerer
}

// App is the wired client. It owns exactly one Gateway.
type App struct {
	Config    *config.Client
	Log       *zap.Logger
	Store     tokenstore.Store
	Notifier  notify.Notifier
	Inspector *token.Inspector
	Auth      *api.Auth
	Session   *session.Controller
	Gateway   *gateway.Gateway
	API       *api.Client
	Idle      *idle.Monitor
	Guard     *guard.Guard
}

// New builds the client in dependency order.
func New(cfg *config.Client, log *zap.Logger, opts Options) *App {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Store == nil {
		configDir, runtimeDir := cfg.ConfigDir, cfg.RuntimeDir
		if configDir == "" {
			configDir = tokenstore.DefaultConfigDir()
		}
		if runtimeDir == "" {
			runtimeDir = tokenstore.DefaultRuntimeDir()
		}
		opts.Store = tokenstore.NewFile(configDir, runtimeDir)
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Discard
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: cfg.RequestTimeout}
	}

	a := &App{Config: cfg, Log: log, Store: opts.Store, Notifier: opts.Notifier}
	a.Inspector = token.NewInspector(token.WithRefreshBuffer(cfg.RefreshBuffer))
	a.Auth = api.NewAuth(cfg.APIBaseURL, opts.HTTPClient)
	a.Session = session.NewController(a.Store, a.Inspector, a.Auth, a.Notifier, opts.Navigator, log.Named("session"))
	a.Gateway = gateway.New(gateway.Config{
		BaseURL:        cfg.APIBaseURL,
		Client:         opts.HTTPClient,
		RefreshTimeout: cfg.RefreshTimeout,
		OnExpired:      a.Session.Expire,
		Metrics:        gateway.NewMetrics(opts.Registerer),
	}, a.Store, a.Auth, log.Named("gateway"))
	a.API = api.NewClient(a.Gateway)
	a.Idle = idle.NewMonitor(a.Session, opts.Scheduler, a.Notifier, cfg.IdleThreshold, cfg.IdleWarning, log.Named("idle"))
	a.Guard = guard.New(a.Session)
	return a
}

// NewLogger returns a console logger on stderr at the given level.
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	zc.DisableStacktrace = true
	return zc.Build()
}
