package reqhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/louisbranch/reqflash/internal/services/web/platform/flash"
	"github.com/louisbranch/reqflash/internal/services/web/platform/httpx"
	"github.com/louisbranch/reqflash/internal/services/web/platform/session"
	"github.com/louisbranch/reqflash/internal/services/web/platform/sessioncookie"
	"github.com/louisbranch/reqflash/internal/services/web/storage/memory"
)

type harness struct {
	store   *memory.Store
	handler http.Handler
}

func newHarness(t *testing.T, opts Options, h http.HandlerFunc) *harness {
	t.Helper()

	store := memory.New()
	opts.Sessions = store
	return &harness{
		store:   store,
		handler: httpx.Chain(h, session.Middleware(session.Options{}), Middleware(opts)),
	}
}

func (h *harness) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.handler.ServeHTTP(rr, req)
	return rr
}

func (h *harness) slot(t *testing.T, sessionID string) []flash.Message {
	t.Helper()

	bridge := flash.NewBridge(nil, session.NewHandle(h.store, sessionID), "")
	got, err := bridge.Get(context.Background(), flash.GetOptions{IncludeStructured: true})
	if err != nil {
		t.Fatalf("read slot: %v", err)
	}
	return got
}

func ajaxRequest(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	return req
}

func sessionIDOf(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()

	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == sessioncookie.DefaultName {
			return cookie.Value
		}
	}
	t.Fatalf("response has no session cookie")
	return ""
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var got map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode envelope %q: %v", rr.Body.String(), err)
	}
	return got
}

func storeFrom(t *testing.T, r *http.Request) *flash.Store {
	t.Helper()

	store, ok := flash.FromContext(r.Context())
	if !ok {
		t.Fatalf("request has no flash store")
	}
	return store
}

func TestAJAXEmptyStoreReturnsBlankSuccess(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{Enabled: true}, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<p>ignored</p>"))
	})
	rr := h.do(ajaxRequest(http.MethodPost, "/api"))

	if got := rr.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("Content-Type = %q", got)
	}
	want := map[string]any{"status": "success", "response": []any{""}}
	if diff := cmp.Diff(want, decodeEnvelope(t, rr)); diff != "" {
		t.Fatalf("envelope mismatch (-want +got):\n%s", diff)
	}
}

func TestAJAXErrorTakesPrecedence(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{Enabled: true}, func(_ http.ResponseWriter, r *http.Request) {
		store := storeFrom(t, r)
		store.Success("saved", nil)
		store.Error("broken", nil)
	})
	rr := h.do(ajaxRequest(http.MethodPost, "/api"))

	want := map[string]any{
		"status": "error",
		"errors": []any{map[string]any{"type": "error", "value": "broken", "data": nil}},
	}
	if diff := cmp.Diff(want, decodeEnvelope(t, rr)); diff != "" {
		t.Fatalf("envelope mismatch (-want +got):\n%s", diff)
	}
}

func TestAJAXSuccessIncludesInfoAndWarning(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{Enabled: true}, func(_ http.ResponseWriter, r *http.Request) {
		store := storeFrom(t, r)
		store.Warning("careful", nil)
		store.Info("fyi", nil)
		store.Success("done", nil)
	})
	rr := h.do(ajaxRequest(http.MethodPost, "/api"))

	got := decodeEnvelope(t, rr)
	if got["status"] != "success" {
		t.Fatalf("status = %v", got["status"])
	}
	response, _ := got["response"].([]any)
	var values []string
	for _, item := range response {
		values = append(values, item.(map[string]any)["value"].(string))
	}
	if diff := cmp.Diff([]string{"careful", "fyi", "done"}, values); diff != "" {
		t.Fatalf("response mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildEnvelopeWarningOnlyReturnsEverything(t *testing.T) {
	t.Parallel()

	store := flash.NewStore(nil)
	store.Warning("only warning", nil)
	store.AddBatch(flash.TypeWarning, map[string]any{"field": "name"})

	env := BuildEnvelope(store)
	if env.Status != StatusSuccess || len(env.Response) != 2 || env.Errors != nil {
		t.Fatalf("BuildEnvelope() = %+v", env)
	}
}

func TestAJAXKeepsHandlerStatusAndCookies(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{Enabled: true}, func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "pref", Value: "dark"})
		storeFrom(t, r).Error("invalid", nil)
		w.WriteHeader(http.StatusUnprocessableEntity)
	})
	rr := h.do(ajaxRequest(http.MethodPost, "/api"))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rr.Code)
	}
	names := map[string]bool{}
	for _, cookie := range rr.Result().Cookies() {
		names[cookie.Name] = true
	}
	if !names["pref"] || !names[sessioncookie.DefaultName] {
		t.Fatalf("cookies = %v, want handler and session cookies", names)
	}
}

func TestAJAXDoesNotPersist(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{Enabled: true}, func(_ http.ResponseWriter, r *http.Request) {
		storeFrom(t, r).Success("inline", nil)
	})
	rr := h.do(ajaxRequest(http.MethodPost, "/api"))

	if got := h.slot(t, sessionIDOf(t, rr)); got != nil {
		t.Fatalf("slot = %+v, want empty", got)
	}
}

func TestStandardRequestPersistsForNextPage(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{Enabled: true}, func(w http.ResponseWriter, r *http.Request) {
		storeFrom(t, r).Success("saved", nil)
		w.WriteHeader(http.StatusOK)
	})
	rr := h.do(httptest.NewRequest(http.MethodPost, "/form", nil))

	want := []flash.Message{flash.Text(flash.TypeSuccess, "saved")}
	if diff := cmp.Diff(want, h.slot(t, sessionIDOf(t, rr))); diff != "" {
		t.Fatalf("slot mismatch (-want +got):\n%s", diff)
	}
}

func TestStandardRequestKeepsEarlierMessagesFirst(t *testing.T) {
	t.Parallel()

	text := "first"
	h := newHarness(t, Options{Enabled: true}, func(_ http.ResponseWriter, r *http.Request) {
		storeFrom(t, r).Info(text, nil)
	})
	rr := h.do(httptest.NewRequest(http.MethodPost, "/form", nil))
	id := sessionIDOf(t, rr)

	text = "second"
	req := httptest.NewRequest(http.MethodPost, "/form", nil)
	req.AddCookie(&http.Cookie{Name: sessioncookie.DefaultName, Value: id})
	h.do(req)

	want := []flash.Message{flash.Text(flash.TypeInfo, "first"), flash.Text(flash.TypeInfo, "second")}
	if diff := cmp.Diff(want, h.slot(t, id)); diff != "" {
		t.Fatalf("slot mismatch (-want +got):\n%s", diff)
	}
}

func TestDisabledHookDropsMessages(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{Enabled: false}, func(w http.ResponseWriter, r *http.Request) {
		storeFrom(t, r).Error("dropped", nil)
		_, _ = w.Write([]byte("plain"))
	})

	rr := h.do(httptest.NewRequest(http.MethodPost, "/form", nil))
	if got := h.slot(t, sessionIDOf(t, rr)); got != nil {
		t.Fatalf("slot = %+v, want empty", got)
	}

	rr = h.do(ajaxRequest(http.MethodPost, "/api"))
	if rr.Body.String() != "plain" {
		t.Fatalf("body = %q, want handler output", rr.Body.String())
	}
}

func TestDisablePerRequest(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{Enabled: true}, func(w http.ResponseWriter, r *http.Request) {
		if !Disable(r) {
			t.Errorf("Disable() = false under middleware")
		}
		storeFrom(t, r).Success("ignored", nil)
		_, _ = w.Write([]byte(`{"custom":true}`))
	})

	rr := h.do(ajaxRequest(http.MethodGet, "/api"))
	if rr.Body.String() != `{"custom":true}` {
		t.Fatalf("body = %q", rr.Body.String())
	}
	rr = h.do(httptest.NewRequest(http.MethodGet, "/page", nil))
	if got := h.slot(t, sessionIDOf(t, rr)); got != nil {
		t.Fatalf("slot = %+v, want empty", got)
	}
	if Disable(httptest.NewRequest(http.MethodGet, "/", nil)) {
		t.Fatalf("Disable() = true outside middleware")
	}
}

func TestRedirectPersistsOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{Enabled: true}, func(w http.ResponseWriter, r *http.Request) {
		storeFrom(t, r).Success("moved", nil)
		Redirect(w, r, "/next", RedirectOptions{})
	})
	rr := h.do(httptest.NewRequest(http.MethodPost, "/form", nil))

	if rr.Code != http.StatusFound || rr.Header().Get("Location") != "/next" {
		t.Fatalf("response = %d %q", rr.Code, rr.Header().Get("Location"))
	}
	want := []flash.Message{flash.Text(flash.TypeSuccess, "moved")}
	if diff := cmp.Diff(want, h.slot(t, sessionIDOf(t, rr))); diff != "" {
		t.Fatalf("slot mismatch (-want +got):\n%s", diff)
	}
}

func TestRedirectCustomCode(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{Enabled: true}, func(w http.ResponseWriter, r *http.Request) {
		Redirect(w, r, "/elsewhere", RedirectOptions{Code: http.StatusSeeOther})
	})
	rr := h.do(httptest.NewRequest(http.MethodPost, "/form", nil))
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestRedirectDuringAJAXIsNoop(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{Enabled: true}, func(w http.ResponseWriter, r *http.Request) {
		storeFrom(t, r).Success("stay", nil)
		Redirect(w, r, "/next", RedirectOptions{})
	})
	rr := h.do(ajaxRequest(http.MethodPost, "/api"))

	if rr.Code != http.StatusOK || rr.Header().Get("Location") != "" {
		t.Fatalf("response = %d %q, want envelope", rr.Code, rr.Header().Get("Location"))
	}
	got := decodeEnvelope(t, rr)
	response, _ := got["response"].([]any)
	if len(response) != 1 || response[0].(map[string]any)["value"] != "stay" {
		t.Fatalf("envelope = %v", got)
	}
	if slot := h.slot(t, sessionIDOf(t, rr)); slot != nil {
		t.Fatalf("slot = %+v, want empty", slot)
	}
}

func TestRedirectDuringAJAXWhenAllowed(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{Enabled: true}, func(w http.ResponseWriter, r *http.Request) {
		storeFrom(t, r).Success("moved", nil)
		Redirect(w, r, "/next", RedirectOptions{IfAJAX: true})
	})
	rr := h.do(ajaxRequest(http.MethodPost, "/api"))

	if rr.Code != http.StatusFound || rr.Header().Get("Location") != "/next" {
		t.Fatalf("response = %d %q", rr.Code, rr.Header().Get("Location"))
	}
	if slot := h.slot(t, sessionIDOf(t, rr)); len(slot) != 1 {
		t.Fatalf("slot = %+v, want one message", slot)
	}
}

type failingStore struct {
	*memory.Store
}

func (failingStore) Set(context.Context, string, string, []byte) error {
	return errors.New("disk full")
}

func TestPersistFailureIsLogged(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	store := failingStore{Store: memory.New()}
	handler := httpx.Chain(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			storeFrom(t, r).Error("lost", nil)
			w.WriteHeader(http.StatusAccepted)
		}),
		session.Middleware(session.Options{}),
		Middleware(Options{Enabled: true, Sessions: store, Logger: zap.New(core)}),
	)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/form", nil))

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rr.Code)
	}
	failures := logs.FilterMessage("flash_persist_failed").All()
	if len(failures) != 1 {
		t.Fatalf("expected persist failure log, got %v", logs.All())
	}
	if got := failures[0].ContextMap()["slot"]; got != flash.DefaultKey {
		t.Fatalf("slot field = %v, want %q", got, flash.DefaultKey)
	}
}

type upper struct{}

func (upper) Interpolate(text string, values map[string]any) string {
	return text + "!"
}

func TestInterpolatorIsPerRequest(t *testing.T) {
	t.Parallel()

	opts := Options{
		Enabled: true,
		Interpolator: func(*http.Request) flash.Interpolator {
			return upper{}
		},
	}
	h := newHarness(t, opts, func(_ http.ResponseWriter, r *http.Request) {
		storeFrom(t, r).Translate(flash.TypeInfo, "hi")
	})
	rr := h.do(ajaxRequest(http.MethodGet, "/api"))

	response, _ := decodeEnvelope(t, rr)["response"].([]any)
	if len(response) != 1 || response[0].(map[string]any)["value"] != "hi!" {
		t.Fatalf("response = %v", response)
	}
}
