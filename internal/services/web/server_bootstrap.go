package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/louisbranch/reqflash/internal/platform/timeouts"
	webstorage "github.com/louisbranch/reqflash/internal/services/web/storage"
	"github.com/louisbranch/reqflash/internal/services/web/storage/memory"
	webpebble "github.com/louisbranch/reqflash/internal/services/web/storage/pebble"
	websqlite "github.com/louisbranch/reqflash/internal/services/web/storage/sqlite"
)

// Server hosts the web HTTP server.
type Server struct {
	httpAddr   string
	httpServer *http.Server
	sessions   webstorage.SessionStore
	logger     *zap.Logger
	sweepStop  context.CancelFunc
	sweepDone  chan struct{}
}

// NewServer opens the session store and builds the HTTP server.
func NewServer(config Config, logger *zap.Logger) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sessions, err := openSessionStore(config)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	handler, err := NewHandler(config, Dependencies{
		Sessions: sessions,
		Logger:   logger,
		Registry: registry,
	})
	if err != nil {
		_ = sessions.Close()
		return nil, fmt.Errorf("build handler: %w", err)
	}

	sweepStop, sweepDone := startSessionSweeper(sessions, config.SlotTTL, config.SweepInterval, logger)

	return &Server{
		httpAddr: httpAddr,
		httpServer: &http.Server{
			Addr:              httpAddr,
			Handler:           handler,
			ReadHeaderTimeout: timeouts.ReadHeader,
		},
		sessions:  sessions,
		logger:    logger,
		sweepStop: sweepStop,
		sweepDone: sweepDone,
	}, nil
}

func openSessionStore(config Config) (webstorage.SessionStore, error) {
	backend := strings.ToLower(strings.TrimSpace(config.StorageBackend))
	switch backend {
	case "", BackendMemory:
		return memory.New(), nil
	case BackendSQLite:
		store, err := websqlite.Open(config.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite session store: %w", err)
		}
		return store, nil
	case BackendPebble:
		store, err := webpebble.Open(config.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("open pebble session store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", config.StorageBackend)
	}
}

// startSessionSweeper periodically drops slots older than ttl. It does
// nothing when ttl is zero or the store cannot sweep.
func startSessionSweeper(store webstorage.SessionStore, ttl, interval time.Duration, logger *zap.Logger) (context.CancelFunc, chan struct{}) {
	sweeper, ok := store.(webstorage.Sweeper)
	if !ok || ttl <= 0 {
		return nil, nil
	}
	if interval <= 0 {
		interval = timeouts.SessionSweep
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		runSessionSweeper(ctx, sweeper, ttl, interval, time.Now, logger)
	}()
	return cancel, done
}

func runSessionSweeper(ctx context.Context, sweeper webstorage.Sweeper, ttl, interval time.Duration, now func() time.Time, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := sweeper.DeleteStale(ctx, now().Add(-ttl))
			if err != nil {
				logger.Warn("session_sweep_failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Info("session_sweep", zap.Int64("removed", removed))
			}
		}
	}
}

// ListenAndServe runs the HTTP server until the context ends.
//
// On cancellation, it performs a bounded shutdown so in-flight requests
// are drained before hard close.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("web server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	s.logger.Info("web_listening", zap.String("addr", s.httpAddr))
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close stops the sweeper and releases the session store.
func (s *Server) Close() error {
	if s == nil {
		return nil
	}
	if s.sweepStop != nil {
		s.sweepStop()
	}
	if s.sweepDone != nil {
		<-s.sweepDone
	}
	if s.sessions == nil {
		return nil
	}
	if err := s.sessions.Close(); err != nil {
		return fmt.Errorf("close session store: %w", err)
	}
	return nil
}
