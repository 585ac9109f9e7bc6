package web

import (
	"context"
	"flag"
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/louisbranch/reqflash/internal/platform/config"
	"github.com/louisbranch/reqflash/internal/platform/otel"
	"github.com/louisbranch/reqflash/internal/platform/timeouts"
	"github.com/louisbranch/reqflash/internal/services/web"
)

const serviceName = "reqflash-web"

// Config holds the web command configuration.
type Config struct {
	HTTPAddr            string        `env:"REQFLASH_WEB_HTTP_ADDR"             envDefault:"localhost:8086"`
	StorageBackend      string        `env:"REQFLASH_WEB_STORAGE"               envDefault:"memory"`
	StoragePath         string        `env:"REQFLASH_WEB_STORAGE_PATH"`
	SessionKey          string        `env:"REQFLASH_WEB_SESSION_KEY"`
	CookieName          string        `env:"REQFLASH_WEB_COOKIE_NAME"`
	CookieMaxAge        time.Duration `env:"REQFLASH_WEB_COOKIE_MAX_AGE"`
	TrustForwardedProto bool          `env:"REQFLASH_WEB_TRUST_FORWARDED_PROTO"`
	SlotTTL             time.Duration `env:"REQFLASH_WEB_SLOT_TTL"              envDefault:"24h"`
	DisableHook         bool          `env:"REQFLASH_WEB_DISABLE_HOOK"`
	LogLevel            zapcore.Level `env:"REQFLASH_LOG_LEVEL"                 envDefault:"info"`
}

// ParseConfig parses flags into a Config. Environment values seed the
// defaults so flags always win.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.StorageBackend, "storage", cfg.StorageBackend, "Session storage backend (memory, sqlite, pebble)")
	fs.StringVar(&cfg.StoragePath, "storage-path", cfg.StoragePath, "SQLite file or Pebble directory")
	fs.StringVar(&cfg.SessionKey, "session-key", cfg.SessionKey, "Session slot that holds pending messages")
	fs.StringVar(&cfg.CookieName, "cookie-name", cfg.CookieName, "Session cookie name")
	fs.DurationVar(&cfg.CookieMaxAge, "cookie-max-age", cfg.CookieMaxAge, "Session cookie lifetime (0 for browser session)")
	fs.BoolVar(&cfg.TrustForwardedProto, "trust-forwarded-proto", cfg.TrustForwardedProto, "Honor X-Forwarded-Proto for secure cookies")
	fs.DurationVar(&cfg.SlotTTL, "slot-ttl", cfg.SlotTTL, "Drop unread message slots older than this (0 keeps them)")
	fs.BoolVar(&cfg.DisableHook, "disable-hook", cfg.DisableHook, "Turn off envelope and persist handling")
	fs.TextVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the web server and blocks until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	otelOpts, err := otel.OptionsFromEnv()
	if err != nil {
		return fmt.Errorf("parse otel options: %w", err)
	}
	shutdownTracing, err := otel.Setup(ctx, serviceName, otelOpts)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("otel_shutdown_failed", zap.Error(err))
		}
	}()

	server, err := web.NewServer(web.Config{
		HTTPAddr:            cfg.HTTPAddr,
		StorageBackend:      cfg.StorageBackend,
		StoragePath:         cfg.StoragePath,
		SessionKey:          cfg.SessionKey,
		CookieName:          cfg.CookieName,
		CookieMaxAge:        cfg.CookieMaxAge,
		TrustForwardedProto: cfg.TrustForwardedProto,
		SlotTTL:             cfg.SlotTTL,
		DisableHook:         cfg.DisableHook,
	}, logger)
	if err != nil {
		return fmt.Errorf("init web server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve web: %w", err)
	}
	return nil
}

func newLogger(level zapcore.Level) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	logger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger.Named("web"), nil
}
