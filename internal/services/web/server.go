package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/louisbranch/reqflash/internal/services/web/platform/flash"
	"github.com/louisbranch/reqflash/internal/services/web/platform/httpx"
	webi18n "github.com/louisbranch/reqflash/internal/services/web/platform/i18n"
	"github.com/louisbranch/reqflash/internal/services/web/platform/observability"
	"github.com/louisbranch/reqflash/internal/services/web/platform/reqhook"
	"github.com/louisbranch/reqflash/internal/services/web/platform/requestmeta"
	"github.com/louisbranch/reqflash/internal/services/web/platform/session"
	"github.com/louisbranch/reqflash/internal/services/web/platform/sessioncookie"
	"github.com/louisbranch/reqflash/internal/services/web/routepath"
	"github.com/louisbranch/reqflash/internal/services/web/static"
	webstorage "github.com/louisbranch/reqflash/internal/services/web/storage"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendPebble = "pebble"
)

// Config defines the inputs for the web server.
type Config struct {
	HTTPAddr string
	// StorageBackend is memory, sqlite or pebble. Empty means memory.
	StorageBackend string
	// StoragePath is the sqlite file or pebble directory.
	StoragePath string
	// SessionKey is the session slot that holds pending messages.
	SessionKey string
	CookieName string
	// CookieMaxAge bounds the session cookie lifetime; zero keeps a
	// browser-session cookie.
	CookieMaxAge        time.Duration
	TrustForwardedProto bool
	// SlotTTL drops unread slots older than this; zero keeps them forever.
	SlotTTL       time.Duration
	SweepInterval time.Duration
	// DisableHook turns off envelope and persist handling.
	DisableHook bool
}

// Dependencies are the collaborators NewHandler wires into routes.
type Dependencies struct {
	Sessions webstorage.SessionStore
	Logger   *zap.Logger
	Registry *prometheus.Registry
}

// NewHandler builds the HTTP handler.
func NewHandler(config Config, deps Dependencies) (http.Handler, error) {
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := deps.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	metrics := observability.NewMetrics(registry)

	catalog := webi18n.NewCatalog()
	h := &handler{logger: logger, metrics: metrics}

	app := http.NewServeMux()
	app.HandleFunc("GET "+routepath.Root+"{$}", h.handleHome)
	app.HandleFunc("POST "+routepath.Notify, h.handleNotify)
	app.HandleFunc("POST "+routepath.APINotify, h.handleAPINotify)
	app.HandleFunc("GET "+routepath.APIMessages, h.handleAPIMessages)
	app.HandleFunc(routepath.Root, h.handleNotFound)

	appHandler := httpx.Chain(app,
		session.Middleware(session.Options{
			Jar: sessioncookie.Jar{
				Name:   config.CookieName,
				Policy: requestmeta.SchemePolicy{TrustForwardedProto: config.TrustForwardedProto},
				MaxAge: config.CookieMaxAge,
			},
			Logger: logger,
		}),
		reqhook.Middleware(reqhook.Options{
			Enabled:  !config.DisableHook,
			Key:      config.SessionKey,
			Sessions: deps.Sessions,
			Interpolator: func(r *http.Request) flash.Interpolator {
				return webi18n.FromRequest(catalog, r)
			},
			Logger:  logger,
			Metrics: metrics,
		}),
	)

	mux := http.NewServeMux()
	mux.Handle(routepath.StaticPrefix, http.StripPrefix(routepath.StaticPrefix, http.FileServer(http.FS(static.FS))))
	mux.Handle("GET "+routepath.Metrics, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET "+routepath.Health, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.Handle(routepath.Root, appHandler)

	return httpx.Chain(mux,
		httpx.RequestID(),
		observability.RequestLogger(logger),
		httpx.RecoverPanic(logger),
	), nil
}
