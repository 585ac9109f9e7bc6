// Package sqlite provides the web session persistence adapter backed by SQLite.
package sqlite
