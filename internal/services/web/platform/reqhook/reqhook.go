// Package reqhook finalizes flash messages at the end of each request.
//
// AJAX requests get their handler output replaced by a JSON envelope built
// from the messages added during the request. Standard requests persist
// those messages into the session so the next page can render them.
package reqhook

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/louisbranch/reqflash/internal/services/web/platform/flash"
	"github.com/louisbranch/reqflash/internal/services/web/platform/httpx"
	"github.com/louisbranch/reqflash/internal/services/web/platform/observability"
	"github.com/louisbranch/reqflash/internal/services/web/platform/requestmeta"
	"github.com/louisbranch/reqflash/internal/services/web/platform/session"
	webstorage "github.com/louisbranch/reqflash/internal/services/web/storage"
)

var tracer = otel.Tracer("github.com/louisbranch/reqflash/internal/services/web/platform/reqhook")

// Options configures Middleware.
type Options struct {
	// Enabled turns on envelope and persist handling. When false handlers
	// still get a store, but its messages are dropped unless they persist
	// them themselves.
	Enabled bool
	// Key is the session slot key. Empty means flash.DefaultKey.
	Key string
	// Sessions backs the per-request session handle resolved by the
	// session middleware.
	Sessions webstorage.SessionStore
	// Interpolator picks the text interpolator for a request.
	Interpolator func(*http.Request) flash.Interpolator
	Logger       *zap.Logger
	Metrics      *observability.Metrics
}

type state struct {
	disabled atomic.Bool
	logger   *zap.Logger
	metrics  *observability.Metrics
}

type stateContextKey struct{}

// Middleware installs a request store and bridge, then finalizes them after
// the handler returns.
func Middleware(opts Options) httpx.Middleware {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.NotFoundHandler()
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			st := &state{logger: logger, metrics: opts.Metrics}
			st.disabled.Store(!opts.Enabled)

			var interp flash.Interpolator
			if opts.Interpolator != nil {
				interp = opts.Interpolator(r)
			}
			store := flash.NewStore(interp)
			store.OnAdd(func(msg flash.Message) {
				st.metrics.MessageAdded(string(msg.Type))
			})

			var sess flash.Session
			if handle, ok := session.FromRequest(r, opts.Sessions); ok && opts.Sessions != nil {
				sess = handle
			}
			bridge := flash.NewBridge(store, sess, opts.Key)

			ctx := context.WithValue(r.Context(), stateContextKey{}, st)
			ctx = flash.WithBridge(ctx, bridge)
			r = r.WithContext(ctx)

			if !opts.Enabled {
				next.ServeHTTP(w, r)
				return
			}
			if requestmeta.IsAJAX(r) {
				serveAJAX(w, r, next, st, store)
				return
			}

			next.ServeHTTP(w, r)
			if st.disabled.Load() || !store.HasMessages() {
				return
			}
			st.persist(ctx, bridge)
		})
	}
}

func serveAJAX(w http.ResponseWriter, r *http.Request, next http.Handler, st *state, store *flash.Store) {
	capture := newResponseBuffer()
	next.ServeHTTP(capture, r)

	if st.disabled.Load() || capture.isRedirect() {
		capture.flush(w)
		return
	}

	_, span := tracer.Start(r.Context(), "reqhook.envelope")
	defer span.End()

	envelope := BuildEnvelope(store)
	span.SetAttributes(
		attribute.String("reqflash.envelope.status", envelope.Status),
		attribute.Int("reqflash.envelope.errors", len(envelope.Errors)),
	)
	body, err := json.Marshal(envelope)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		st.logger.Error("envelope_encode_failed", zap.Error(err), zap.String("request_id", httpx.RequestIDOf(r)))
		httpx.WriteError(w, err)
		return
	}

	copyHeaders(w.Header(), capture.Header())
	w.Header().Del("Content-Length")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(capture.statusCode)
	_, _ = w.Write(body)
	st.metrics.EnvelopeWritten(envelope.Status)
}

// persist merges the request messages into the session slot. Failures are
// logged and the response is left alone.
func (st *state) persist(ctx context.Context, bridge *flash.Bridge) {
	ctx, span := tracer.Start(ctx, "reqhook.persist")
	defer span.End()

	count := len(bridge.Store().Messages())
	span.SetAttributes(attribute.Int("reqflash.messages", count))
	if err := bridge.Persist(ctx, true); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		st.logger.Warn("flash_persist_failed", zap.Error(err), zap.String("slot", bridge.Key()), zap.Int("messages", count))
		st.metrics.SessionFailure("persist")
		return
	}
	st.metrics.MessagesPersisted(count)
}

func stateFrom(ctx context.Context) (*state, bool) {
	if ctx == nil {
		return nil, false
	}
	st, ok := ctx.Value(stateContextKey{}).(*state)
	return st, ok && st != nil
}

// Disable turns off finalization for the current request. It reports
// whether the request was running under Middleware.
func Disable(r *http.Request) bool {
	if r == nil {
		return false
	}
	st, ok := stateFrom(r.Context())
	if !ok {
		return false
	}
	st.disabled.Store(true)
	return true
}

// RedirectOptions configures Redirect.
type RedirectOptions struct {
	// Code is the redirect status. Zero means 302 Found.
	Code int
	// IfAJAX also redirects AJAX requests. Without it Redirect does nothing
	// for them and their messages go into the envelope.
	IfAJAX bool
}

// Redirect persists the request messages and redirects to location.
func Redirect(w http.ResponseWriter, r *http.Request, location string, opts RedirectOptions) {
	if r != nil && requestmeta.IsAJAX(r) && !opts.IfAJAX {
		return
	}
	ctx := httpx.RequestContext(r)
	if bridge, ok := flash.BridgeFromContext(ctx); ok {
		st, ok := stateFrom(ctx)
		if !ok {
			st = &state{logger: zap.NewNop()}
		}
		st.persist(ctx, bridge)
	}
	httpx.WriteRedirect(w, r, location, opts.Code)
}
