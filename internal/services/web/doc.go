// Package web hosts the browser-facing flash message service.
//
// Every page and API request runs inside the session and reqhook
// middleware, so handlers only add messages to the request store: AJAX
// callers receive them in a JSON envelope and page requests see them as
// alerts after the next redirect.
package web
