// Package shield holds the HTTP middleware vedit puts in front of every
// route: security headers, request body limits and HEAD handling.
//
//	r := chi.NewRouter()
//	for _, mw := range shield.Stack(shield.DefaultHeaders(), 8<<20) {
//	    r.Use(mw)
//	}
package shield

import "net/http"

// Stack returns the default middleware chain, outermost first.
func Stack(headers HeaderConfig, maxBody int64) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		SecurityHeaders(headers),
		MaxBody(maxBody),
		HeadToGet,
	}
}
