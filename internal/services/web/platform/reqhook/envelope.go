package reqhook

import (
	"github.com/louisbranch/reqflash/internal/services/web/platform/flash"
)

// Envelope statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Envelope is the JSON body written for AJAX requests.
type Envelope struct {
	Status   string          `json:"status"`
	Errors   []flash.Message `json:"errors,omitempty"`
	Response []any           `json:"response,omitempty"`
}

// BuildEnvelope summarizes the request's messages.
//
// Errors take precedence over everything else. When any success or info
// message exists the response carries success, info and warning messages.
// Otherwise every message is returned. An empty store yields a single
// empty string so clients always receive a non-empty response.
func BuildEnvelope(store *flash.Store) Envelope {
	if !store.HasMessages() {
		return Envelope{Status: StatusSuccess, Response: []any{""}}
	}
	if errs := store.Current(flash.Only(flash.TypeError)); errs != nil {
		return Envelope{Status: StatusError, Errors: errs}
	}
	if store.Current(flash.OneOf(flash.TypeSuccess, flash.TypeInfo)) != nil {
		return Envelope{
			Status:   StatusSuccess,
			Response: asResponse(store.Current(flash.OneOf(flash.TypeSuccess, flash.TypeInfo, flash.TypeWarning))),
		}
	}
	return Envelope{Status: StatusSuccess, Response: asResponse(store.Current(flash.Any()))}
}

func asResponse(messages []flash.Message) []any {
	out := make([]any, 0, len(messages))
	for _, msg := range messages {
		out = append(out, msg)
	}
	return out
}
