package apiv1

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	yall "yall.in"

	"lockbox.dev/preferences"
)

// maxBodyBytes caps how large a document a client can store in one
// request.
const maxBodyBytes = 1 << 20

var (
	serverError                 = APIError{Error: "server_error", Code: http.StatusInternalServerError}
	invalidRequestError         = APIError{Error: "invalid_request", Code: http.StatusBadRequest}
	invalidTokenError           = APIError{Error: "invalid_token", Code: http.StatusUnauthorized}
	unsupportedContentTypeError = APIError{Error: "unsupported_content_type", Code: http.StatusUnsupportedMediaType}
)

// APIError is the body returned when a request can't be served.
type APIError struct {
	Error string `json:"error"`
	Code  int    `json:"-"`
}

// IsZero returns true if `a` doesn't describe an error.
func (a APIError) IsZero() bool {
	return a.Error == ""
}

// return an error as JSON output.
func (a API) returnError(w http.ResponseWriter, r *http.Request, apiErr APIError) {
	if apiErr.Code == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer error="`+apiErr.Error+`"`)
	}
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(apiErr.Code)
	enc := json.NewEncoder(w)
	err := enc.Encode(apiErr)
	if err != nil {
		yall.FromContext(r.Context()).WithError(err).Error("Error writing response")
	}
}

// handle requests for the authenticated user's preferences, optionally
// narrowed by the filter query param.
func (a API) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	log := yall.FromContext(r.Context())
	filter := r.URL.Query().Get("filter")

	jsonStr, err := a.Preferences.LookupJSON(r.Context(), UserIDFromContext(r.Context()), filter)
	if err != nil {
		if errors.Is(err, preferences.ErrMissingUserID) {
			log.Debug("No user in request context")
			a.returnError(w, r, invalidTokenError)
			return
		}
		log.WithError(err).WithField("filter", filter).Error("Error retrieving preferences")
		a.returnError(w, r, serverError)
		return
	}

	w.Header().Set("content-type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, err = io.WriteString(w, jsonStr)
	if err != nil {
		log.WithError(err).Error("Error writing response")
	}
}

// handle requests to store a JSON object as part of the authenticated
// user's preferences. Keys already stored and not in the object are left
// alone.
func (a API) handleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	log := yall.FromContext(r.Context())

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		log.WithField("content_type", r.Header.Get("Content-Type")).Debug("Unsupported content type")
		a.returnError(w, r, unsupportedContentTypeError)
		return
	}

	var doc preferences.Document
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	err = dec.Decode(&doc)
	if err != nil {
		log.WithError(err).Debug("Error decoding request body")
		a.returnError(w, r, invalidRequestError)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		log.Debug("Request body has data after the JSON object")
		a.returnError(w, r, invalidRequestError)
		return
	}
	if doc == nil {
		log.Debug("Request body was null")
		a.returnError(w, r, invalidRequestError)
		return
	}

	err = a.Preferences.Update(r.Context(), UserIDFromContext(r.Context()), doc)
	switch {
	case errors.Is(err, preferences.ErrInvalidKey):
		log.WithError(err).Debug("Invalid preference key")
		a.returnError(w, r, invalidRequestError)
		return
	case errors.Is(err, preferences.ErrMissingUserID):
		log.Debug("No user in request context")
		a.returnError(w, r, invalidTokenError)
		return
	case err != nil:
		log.WithError(err).Error("Error storing preferences")
		a.returnError(w, r, serverError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handle requests to remove the authenticated user's preferences,
// optionally narrowed by the filter query param.
func (a API) handleClearPreferences(w http.ResponseWriter, r *http.Request) {
	log := yall.FromContext(r.Context())
	filter := r.URL.Query().Get("filter")

	err := a.Preferences.Clear(r.Context(), UserIDFromContext(r.Context()), filter)
	switch {
	case errors.Is(err, preferences.ErrMissingUserID):
		log.Debug("No user in request context")
		a.returnError(w, r, invalidTokenError)
		return
	case err != nil:
		log.WithError(err).WithField("filter", filter).Error("Error clearing preferences")
		a.returnError(w, r, serverError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
