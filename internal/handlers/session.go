package handlers

import (
	"net/http"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/bridal-dreams/storefront/internal/platform/requestctx"
)

const (
	sessionCookieName = "storefront_session"
	sessionHeaderName = "X-Session-ID"

	maxSessionIDLength = 64
)

// SessionMiddleware resolves the browsing session identifier for the
// request, minting one when the visitor has none yet. The identifier is
// carried in a cookie for browsers and can be supplied via X-Session-ID by
// non-browser clients.
func SessionMiddleware(newID func() string) func(http.Handler) http.Handler {
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := sessionIDFromRequest(r)
			if id == "" {
				id = newID()
				http.SetCookie(w, &http.Cookie{
					Name:     sessionCookieName,
					Value:    id,
					Path:     "/",
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}
			ctx := requestctx.WithSessionID(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionIDFromRequest(r *http.Request) string {
	if header := strings.TrimSpace(r.Header.Get(sessionHeaderName)); header != "" {
		return clampSessionID(header)
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		return clampSessionID(cookie.Value)
	}
	return ""
}

func clampSessionID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) > maxSessionIDLength {
		return id[:maxSessionIDLength]
	}
	return id
}
