package httpapi

import (
	"errors"
	"net/http"

	"github.com/carsonmellblom/IncidentCommander/internal/audit"
	"github.com/carsonmellblom/IncidentCommander/internal/auth"
	"github.com/carsonmellblom/IncidentCommander/internal/obs"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// POST /api/auth/login
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	pair, user, err := a.auth.Login(r.Context(), req.Email, req.Password, clientIP(r))
	if err != nil {
		obs.ObserveLogin("failure")
		if errors.Is(err, auth.ErrInvalidCredentials) {
			// One message for every failure cause, so responses do not
			// reveal which accounts exist.
			writeError(w, r, http.StatusUnauthorized, "invalid email or password")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "login failed")
		return
	}

	obs.ObserveLogin("success")
	audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"user_id": user.ID,
		"ip":      clientIP(r),
	})
	a.setTokenCookies(w, pair)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "login successful",
		"email":    user.Email,
		"username": user.Username,
		"roles":    user.Roles,
	})
}

// POST /api/auth/refresh
func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	token := requestRefreshToken(r)
	if token == "" {
		obs.ObserveRefresh("failure")
		writeError(w, r, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	pair, _, err := a.auth.Refresh(r.Context(), token, clientIP(r))
	if err != nil {
		if errors.Is(err, auth.ErrReuseDetected) {
			// The session family is already revoked. The response is
			// indistinguishable from any other rejected refresh.
			obs.ObserveReuseDetected()
			audit.LogEvent(r.Context(), "auth.refresh.reuse_detected", map[string]any{
				"ip": clientIP(r),
			})
		}
		if errors.Is(err, auth.ErrInvalidToken) {
			obs.ObserveRefresh("failure")
			a.clearTokenCookies(w)
			writeError(w, r, http.StatusUnauthorized, "invalid refresh token")
			return
		}
		obs.ObserveRefresh("failure")
		writeError(w, r, http.StatusInternalServerError, "refresh failed")
		return
	}

	obs.ObserveRefresh("success")
	a.setTokenCookies(w, pair)
	writeJSON(w, http.StatusOK, map[string]string{"message": "token refreshed"})
}

// POST /api/auth/logout
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	// Logout always succeeds: a missing or already revoked refresh token
	// leaves nothing to do.
	if token := requestRefreshToken(r); token != "" {
		if err := a.auth.Revoke(r.Context(), token, clientIP(r)); err != nil {
			writeError(w, r, http.StatusInternalServerError, "logout failed")
			return
		}
	}
	audit.LogEvent(r.Context(), "auth.logout", map[string]any{"ip": clientIP(r)})
	a.clearTokenCookies(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// GET /api/auth/me
func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	roles := claims.Roles
	if roles == nil {
		roles = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":       claims.Subject,
		"email":    claims.Email,
		"username": claims.Username,
		"roles":    roles,
	})
}
