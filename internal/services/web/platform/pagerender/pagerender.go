// Package pagerender centralizes page rendering with flash alerts.
package pagerender

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/a-h/templ"
	"go.uber.org/zap"

	"github.com/louisbranch/reqflash/internal/services/web/platform/alerts"
	"github.com/louisbranch/reqflash/internal/services/web/platform/flash"
	"github.com/louisbranch/reqflash/internal/services/web/platform/httpx"
	"github.com/louisbranch/reqflash/internal/services/web/platform/requestmeta"
	"github.com/louisbranch/reqflash/internal/services/web/templates"
)

// Page describes a page response for both full-page and HTMX flows.
type Page struct {
	Title      string
	Lang       string
	StatusCode int
	Body       templ.Component
	// KeepCurrent leaves messages added during this request in the store
	// after they are shown, so they are also flashed on the next page.
	KeepCurrent bool
}

// WritePage renders page with pending alerts above the body. HTMX requests
// get the alerts and body without the document shell.
func WritePage(w http.ResponseWriter, r *http.Request, logger *zap.Logger, page Page) error {
	if w == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	statusCode := page.StatusCode
	if statusCode <= 0 {
		statusCode = http.StatusOK
	}
	body := page.Body
	if body == nil {
		body = templ.NopComponent
	}

	ctx := httpx.RequestContext(r)
	notices := resolveAlerts(ctx, logger, !page.KeepCurrent)

	var buf bytes.Buffer
	var component templ.Component
	if requestmeta.IsHTMX(r) {
		component = templates.AlertsFragment(notices)
	} else {
		lang := strings.TrimSpace(page.Lang)
		if lang == "" {
			lang = "en"
		}
		component = templates.Layout(strings.TrimSpace(page.Title), lang, notices)
	}
	if err := component.Render(templ.WithChildren(ctx, body), &buf); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
	return nil
}

func resolveAlerts(ctx context.Context, logger *zap.Logger, dumpAll bool) templ.Component {
	bridge, ok := flash.BridgeFromContext(ctx)
	if !ok {
		return templ.NopComponent
	}
	component, err := alerts.ViewAlerts(ctx, bridge, dumpAll)
	if err != nil {
		logger.Warn("flash_alerts_unavailable", zap.Error(err))
		return templ.NopComponent
	}
	return component
}
