package web

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/language"

	apperrors "github.com/louisbranch/reqflash/internal/services/web/platform/errors"
	"github.com/louisbranch/reqflash/internal/services/web/platform/flash"
	"github.com/louisbranch/reqflash/internal/services/web/platform/httpx"
	webi18n "github.com/louisbranch/reqflash/internal/services/web/platform/i18n"
	"github.com/louisbranch/reqflash/internal/services/web/platform/observability"
	"github.com/louisbranch/reqflash/internal/services/web/platform/pagerender"
	"github.com/louisbranch/reqflash/internal/services/web/platform/reqhook"
	"github.com/louisbranch/reqflash/internal/services/web/platform/requestmeta"
	"github.com/louisbranch/reqflash/internal/services/web/routepath"
	"github.com/louisbranch/reqflash/internal/services/web/templates"
)

type handler struct {
	logger  *zap.Logger
	metrics *observability.Metrics
}

func (h *handler) handleHome(w http.ResponseWriter, r *http.Request) {
	tag := language.AmericanEnglish
	if tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language")); err == nil {
		tag = webi18n.Match(tags...)
	}
	err := pagerender.WritePage(w, r, h.logger, pagerender.Page{
		Title: "Flash messages",
		Lang:  tag.String(),
		Body:  templates.NotifyForm(),
	})
	if err != nil {
		h.logger.Error("render_home_failed", zap.Error(err), zap.String("request_id", httpx.RequestIDOf(r)))
		httpx.WriteError(w, err)
	}
}

func (h *handler) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteError(w, apperrors.E(apperrors.KindNotFound, "page not found"))
}

// handleNotify queues the submitted message and sends the browser back to
// the home page, where it is shown once.
func (h *handler) handleNotify(w http.ResponseWriter, r *http.Request) {
	h.addFromForm(r)
	reqhook.Redirect(w, r, routepath.Root, reqhook.RedirectOptions{Code: http.StatusSeeOther})
}

// handleAPINotify queues the submitted message. The response body is the
// envelope written by the hook.
func (h *handler) handleAPINotify(w http.ResponseWriter, r *http.Request) {
	h.addFromForm(r)
	if !requestmeta.IsAJAX(r) {
		reqhook.Redirect(w, r, routepath.Root, reqhook.RedirectOptions{Code: http.StatusSeeOther})
	}
}

// handleAPIMessages returns and consumes pending messages as JSON.
// ?type= limits the result to the given types, ?exclude= skips them.
func (h *handler) handleAPIMessages(w http.ResponseWriter, r *http.Request) {
	reqhook.Disable(r)
	bridge, ok := flash.BridgeFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, apperrors.E(apperrors.KindUnavailable, "flash bridge missing"))
		return
	}
	filter, err := filterFromQuery(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	messages, err := bridge.GetOnce(r.Context(), filter, []flash.Message{}, true)
	if err != nil {
		h.logger.Warn("flash_read_failed", zap.Error(err), zap.String("request_id", httpx.RequestIDOf(r)))
		h.metrics.SessionFailure("get_once")
		httpx.WriteError(w, apperrors.Wrap(apperrors.KindUnavailable, "messages unavailable", err))
		return
	}
	h.metrics.MessagesConsumed(len(messages))
	if err := httpx.WriteJSON(w, http.StatusOK, messages); err != nil {
		h.logger.Warn("write_messages_failed", zap.Error(err))
	}
}

// addFromForm reads type, message, title and block form fields and queues
// one message, or validation errors when the form is incomplete.
func (h *handler) addFromForm(r *http.Request) {
	store, ok := flash.FromContext(r.Context())
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		store.Translate(flash.TypeError, "Message is required.")
		return
	}

	rawType := strings.TrimSpace(r.PostForm.Get("type"))
	if rawType == "" {
		rawType = string(flash.TypeInfo)
	}
	t, ok := flash.ParseType(rawType)
	if !ok {
		store.Error("Unknown message type :type.", map[string]any{":type": rawType})
		return
	}
	text := strings.TrimSpace(r.PostForm.Get("message"))
	if text == "" {
		store.Translate(flash.TypeError, "Message is required.")
		store.AddBatch(flash.TypeError, map[string]any{"message": "required"})
		return
	}

	var data any
	if title := strings.TrimSpace(r.PostForm.Get("title")); title != "" {
		data = map[string]any{
			"title": title,
			"block": r.PostForm.Get("block") != "",
		}
	}
	store.Add(t, text, nil, data)
}

func filterFromQuery(r *http.Request) (flash.Filter, error) {
	query := r.URL.Query()
	only, err := parseTypes(query["type"])
	if err != nil {
		return flash.Filter{}, err
	}
	exclude, err := parseTypes(query["exclude"])
	if err != nil {
		return flash.Filter{}, err
	}
	switch {
	case len(only) > 0 && len(exclude) > 0:
		return flash.Filter{}, apperrors.E(apperrors.KindInvalidInput, "type and exclude cannot be combined")
	case len(only) > 0:
		return flash.OneOf(only...), nil
	case len(exclude) > 0:
		return flash.NoneOf(exclude...), nil
	default:
		return flash.Any(), nil
	}
}

func parseTypes(values []string) ([]flash.Type, error) {
	var out []flash.Type
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			t, ok := flash.ParseType(part)
			if !ok {
				return nil, apperrors.E(apperrors.KindInvalidInput, "unknown message type "+strings.TrimSpace(part))
			}
			out = append(out, t)
		}
	}
	return out, nil
}
