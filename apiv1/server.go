// Package apiv1 provides an `http.Handler` that exposes a user's stored
// preferences over HTTP.
//
// Every endpoint requires an access token issued by the lockbox sessions
// service, passed as a bearer token in the Authorization header. The
// profile the token was issued for is the user whose preferences are read
// and written; there is no way to address another user's preferences.
//
// Use this package by creating an `API` struct and calling its `Server`
// method to get the `http.Handler`. The `http.Handler` should be served
// through a muxer using the same path as the `prefix` passed to `Server`.
package apiv1

import (
	"net/http"
	"strings"

	"darlinggo.co/trout/v2"
	uuid "github.com/hashicorp/go-uuid"
	yall "yall.in"

	"lockbox.dev/preferences"
	"lockbox.dev/sessions"
)

// API holds all the dependencies for the preferences HTTP API.
type API struct {
	Preferences preferences.Dependencies
	Sessions    sessions.Dependencies
	Log         *yall.Logger
}

func (a API) logEndpoint(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := a.Log
		if log == nil {
			log = yall.FromContext(r.Context())
		}
		log = log.WithField("endpoint", r.Header.Get("Trout-Pattern")).
			WithField("method", r.Method).
			WithField("ip", clientIP(r))
		for k, v := range trout.RequestVars(r) {
			log = log.WithField("url."+strings.ToLower(k), v)
		}
		reqID, err := uuid.GenerateUUID()
		if err != nil {
			log.WithError(err).Error("error generating request ID")
		} else {
			log = log.WithField("request_id", reqID)
		}
		r = r.WithContext(yall.InContext(r.Context(), log))
		log.Debug("serving request")
		h.ServeHTTP(w, r)
		log.Debug("served request")
	})
}

// Server returns an http.Handler serving the API under `prefix`.
func (a API) Server(prefix string) http.Handler {
	var router trout.Router
	router.SetPrefix(prefix)

	router.Endpoint("/preferences").Methods("GET").
		Handler(a.logEndpoint(a.authenticate(http.HandlerFunc(
			a.handleGetPreferences))))
	router.Endpoint("/preferences").Methods("PUT").
		Handler(a.logEndpoint(a.authenticate(http.HandlerFunc(
			a.handleUpdatePreferences))))
	router.Endpoint("/preferences").Methods("DELETE").
		Handler(a.logEndpoint(a.authenticate(http.HandlerFunc(
			a.handleClearPreferences))))

	return router
}
