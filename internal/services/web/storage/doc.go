// Package storage declares persistence interfaces for web session data.
//
// Session values are opaque bytes keyed by session ID and slot key. Flash
// messages are the main tenant: one slot per session holds the pending
// notices for the next page render.
package storage
