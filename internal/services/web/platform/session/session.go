// Package session binds browser requests to server-side session slots.
//
// The middleware resolves (or issues) the session cookie before the handler
// runs so later writes never race the response headers. Handles expose one
// session's slots through the flash.Session contract.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/louisbranch/reqflash/internal/services/web/platform/flash"
	"github.com/louisbranch/reqflash/internal/services/web/platform/httpx"
	"github.com/louisbranch/reqflash/internal/services/web/platform/sessioncookie"
	webstorage "github.com/louisbranch/reqflash/internal/services/web/storage"
)

const idBytes = 16

var tracer = otel.Tracer("github.com/louisbranch/reqflash/internal/services/web/platform/session")

// Handle exposes the slots of one session.
type Handle struct {
	store webstorage.SessionStore
	id    string
}

// NewHandle binds store to a session ID.
func NewHandle(store webstorage.SessionStore, sessionID string) *Handle {
	return &Handle{store: store, id: strings.TrimSpace(sessionID)}
}

// ID returns the bound session ID.
func (h *Handle) ID() string {
	return h.id
}

// Get loads one slot.
func (h *Handle) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, span := startSpan(ctx, "session.get", key)
	defer span.End()
	if h.store == nil {
		return nil, false, endWithError(span, fmt.Errorf("session store is not configured"))
	}
	value, ok, err := h.store.Get(ctx, h.id, key)
	if err != nil {
		return nil, false, endWithError(span, err)
	}
	span.SetAttributes(attribute.Bool("session.slot.found", ok))
	return value, ok, nil
}

// Set writes one slot.
func (h *Handle) Set(ctx context.Context, key string, value []byte) error {
	ctx, span := startSpan(ctx, "session.set", key)
	defer span.End()
	if h.store == nil {
		return endWithError(span, fmt.Errorf("session store is not configured"))
	}
	span.SetAttributes(attribute.Int("session.slot.bytes", len(value)))
	return endWithError(span, h.store.Set(ctx, h.id, key, value))
}

// Delete removes one slot.
func (h *Handle) Delete(ctx context.Context, key string) error {
	ctx, span := startSpan(ctx, "session.delete", key)
	defer span.End()
	if h.store == nil {
		return endWithError(span, fmt.Errorf("session store is not configured"))
	}
	return endWithError(span, h.store.Delete(ctx, h.id, key))
}

func startSpan(ctx context.Context, name, key string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.String("session.slot.key", key)))
}

func endWithError(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

var _ flash.Session = (*Handle)(nil)

// NewID returns a random opaque session ID.
func NewID() (string, error) {
	buf := make([]byte, idBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func validID(value string) bool {
	if len(value) != idBytes*2 {
		return false
	}
	_, err := hex.DecodeString(value)
	return err == nil
}

type idContextKey struct{}

// WithID returns ctx carrying the session ID.
func WithID(ctx context.Context, sessionID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, idContextKey{}, sessionID)
}

// IDFromContext returns the session ID resolved by Middleware.
func IDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(idContextKey{}).(string)
	return id, ok && id != ""
}

// FromRequest returns a handle for the request's session.
func FromRequest(r *http.Request, store webstorage.SessionStore) (*Handle, bool) {
	if r == nil {
		return nil, false
	}
	id, ok := IDFromContext(r.Context())
	if !ok {
		return nil, false
	}
	return NewHandle(store, id), true
}

// Options configures Middleware.
type Options struct {
	Jar    sessioncookie.Jar
	Logger *zap.Logger
}

// Middleware resolves the session cookie, issuing a fresh ID when it is
// missing or malformed.
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
			id, ok := opts.Jar.Read(r)
			if !ok || !validID(id) {
				fresh, err := NewID()
				if err != nil {
					logger.Error("session_id_failed", zap.Error(err))
					httpx.WriteError(w, err)
					return
				}
				id = fresh
				opts.Jar.Write(w, r, id)
			}
			next.ServeHTTP(w, r.WithContext(WithID(r.Context(), id)))
		})
	}
}
