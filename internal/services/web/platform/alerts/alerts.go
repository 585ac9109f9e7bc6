// Package alerts renders flash messages as dismissible HTML alerts.
package alerts

import (
	"context"

	"github.com/a-h/templ"

	"github.com/louisbranch/reqflash/internal/services/web/platform/flash"
	"github.com/louisbranch/reqflash/internal/services/web/templates"
)

// Alerts renders one alert block per message.
//
// Data keys: "title" adds a heading, a truthy "block" adds the
// alert-block class. Text and title are escaped.
func Alerts(messages []flash.Message) templ.Component {
	return templates.Alerts(messages)
}

// ViewAlerts consumes the persisted messages and renders them. When none
// are pending it falls back to the messages added during this request,
// which covers pages rendered without a redirect. With dumpAll those
// messages are removed from the request store once rendered.
func ViewAlerts(ctx context.Context, bridge *flash.Bridge, dumpAll bool) (templ.Component, error) {
	if bridge == nil {
		return templ.NopComponent, nil
	}
	persisted, err := bridge.GetOnce(ctx, flash.Any(), nil, false)
	if err != nil {
		return nil, err
	}
	if len(persisted) > 0 {
		return Alerts(persisted), nil
	}
	store := bridge.Store()
	if !store.HasMessages() {
		return templ.NopComponent, nil
	}
	if dumpAll {
		return Alerts(store.Take(flash.Any())), nil
	}
	return Alerts(store.Current(flash.Any())), nil
}
