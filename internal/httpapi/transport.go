package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/carsonmellblom/IncidentCommander/internal/auth"
)

const (
	accessTokenCookie  = "accessToken"
	refreshTokenCookie = "refreshToken"

	// accessTokenQuery is honored only under hubPathPrefix. EventSource
	// cannot set request headers, so streaming clients pass the token in
	// the URL instead.
	accessTokenQuery = "access_token"
	hubPathPrefix    = "/hubs/"
)

// setTokenCookies attaches both credentials to the response. The browser is
// the only intended holder: scripts never see the values, and cookie
// lifetimes track the token lifetimes so the browser drops them when the
// server would reject them anyway.
func (a *API) setTokenCookies(w http.ResponseWriter, pair auth.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessTokenCookie,
		Value:    pair.AccessToken,
		Path:     "/",
		Expires:  pair.AccessExpiresAt,
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshTokenCookie,
		Value:    pair.RefreshToken,
		Path:     "/",
		Expires:  pair.RefreshExpiresAt,
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (a *API) clearTokenCookies(w http.ResponseWriter) {
	for _, name := range []string{accessTokenCookie, refreshTokenCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   a.cookieSecure,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

// extractToken selects the access token for a request. Hub paths may carry
// it as a query parameter, which wins when present; otherwise the cookie is
// preferred over a bearer header so a stale Authorization header cannot
// shadow a freshly rotated cookie.
func extractToken(path, authorizationHeader, cookieValue, queryValue string) string {
	if queryValue != "" && strings.HasPrefix(path, hubPathPrefix) {
		return queryValue
	}
	if cookieValue != "" {
		return cookieValue
	}
	const prefix = "Bearer "
	if len(authorizationHeader) > len(prefix) && strings.EqualFold(authorizationHeader[:len(prefix)], prefix) {
		return strings.TrimSpace(authorizationHeader[len(prefix):])
	}
	return ""
}

func requestAccessToken(r *http.Request) string {
	var cookieValue string
	if c, err := r.Cookie(accessTokenCookie); err == nil {
		cookieValue = c.Value
	}
	return extractToken(r.URL.Path, r.Header.Get("Authorization"), cookieValue, r.URL.Query().Get(accessTokenQuery))
}

func requestRefreshToken(r *http.Request) string {
	c, err := r.Cookie(refreshTokenCookie)
	if err != nil {
		return ""
	}
	return c.Value
}
