package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/louisbranch/reqflash/internal/services/web/platform/flash"
	"github.com/louisbranch/reqflash/internal/services/web/platform/reqclient"
	"github.com/louisbranch/reqflash/internal/services/web/platform/reqhook"
)

func TestReqClientAgainstServer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(newTestHandler(t, Config{}))
	t.Cleanup(srv.Close)

	var successes, failures []flash.Message
	client := &reqclient.Client{
		HTTP: srv.Client(),
		OnSuccess: []reqclient.Handler{func(_ context.Context, res reqclient.Result) {
			successes = append(successes, res.Messages...)
		}},
		OnError: []reqclient.Handler{func(_ context.Context, res reqclient.Result) {
			failures = append(failures, res.Messages...)
		}},
	}

	res, err := client.Do(context.Background(), http.MethodPost, srv.URL+"/api/notify", url.Values{"type": {"success"}, "message": {"Saved"}})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if res.Status != reqhook.StatusSuccess || len(successes) != 1 || successes[0].Text() != "Saved" {
		t.Fatalf("success result = %+v, handled = %+v", res, successes)
	}

	res, err = client.Do(context.Background(), http.MethodPost, srv.URL+"/api/notify", url.Values{"type": {"error"}})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if res.Status != reqhook.StatusError || len(failures) != 2 || failures[0].Text() != "Message is required." {
		t.Fatalf("error result = %+v, handled = %+v", res, failures)
	}

	var notFound int
	client.StatusHandlers = map[int]reqclient.StatusHandler{
		http.StatusNotFound: func(context.Context, *http.Response) { notFound++ },
	}
	if _, err := client.Do(context.Background(), http.MethodGet, srv.URL+"/missing", nil); err == nil {
		t.Fatalf("Do(/missing) error = nil")
	}
	if notFound != 1 {
		t.Fatalf("404 handler calls = %d", notFound)
	}
}
