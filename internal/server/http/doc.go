// Package httpserver exposes the tube lifecycle operations over an
// HTTP/JSON API under /v1.
package httpserver
