// Package routepath stores canonical HTTP paths for the web service.
package routepath

const (
	Root         = "/"
	Health       = "/up"
	Notify       = "/notify"
	APIPrefix    = "/api/"
	APINotify    = "/api/notify"
	APIMessages  = "/api/messages"
	Metrics      = "/metrics"
	StaticPrefix = "/static/"
)
