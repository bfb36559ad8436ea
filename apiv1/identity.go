package apiv1

import (
	"context"
	"net/http"
	"strings"

	yall "yall.in"
)

type userIDKey struct{}

// WithUserID returns a copy of `ctx` that identifies the user making the
// request as `userID`.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFromContext returns the ID of the user making the request, or an
// empty string if the request hasn't been authenticated.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}

// pull the bearer token out of the request's Authorization header.
func bearerToken(r *http.Request) string {
	const scheme = "bearer "
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) <= len(scheme) || !strings.EqualFold(header[:len(scheme)], scheme) {
		return ""
	}
	return strings.TrimSpace(header[len(scheme):])
}

// authenticate validates the request's access token and stores the
// profile it was issued for as the user making the request. Requests
// without a valid access token are rejected before reaching `h`.
func (a API) authenticate(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := yall.FromContext(r.Context())
		token := bearerToken(r)
		if token == "" {
			log.Debug("No access token in request")
			a.returnError(w, r, invalidTokenError)
			return
		}
		session, err := a.Sessions.Validate(r.Context(), token)
		if err != nil {
			log.WithError(err).Debug("Error validating access token")
			a.returnError(w, r, invalidTokenError)
			return
		}
		if session.ProfileID == "" {
			log.WithField("token_id", session.ID).Debug("Access token has no profile")
			a.returnError(w, r, invalidTokenError)
			return
		}
		log = log.WithField("profile_id", session.ProfileID).
			WithField("client_id", session.ClientID)
		ctx := WithUserID(r.Context(), session.ProfileID)
		ctx = yall.InContext(ctx, log)
		h.ServeHTTP(w, r.WithContext(ctx))
	})
}
