package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"shelterhub.org/internal/audit"
	"shelterhub.org/internal/auth"
	"shelterhub.org/internal/shelter"
)

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

const tokenTTL = 15 * time.Minute

// handleAuthToken exchanges email and password for a bearer token. Login
// failures are indistinguishable on purpose.
func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := a.svc.Store().Users().FindByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, shelter.ErrNotFound) {
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if user.Status != "active" {
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := auth.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}

	roles := []string{auth.RoleVolunteer}
	if user.SiteAdmin {
		roles = append(roles, auth.RoleAdmin)
	}
	token, err := auth.GenerateToken(user.ID, roles, tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	expiresAt := time.Now().UTC().Add(tokenTTL)
	_ = audit.LogEvent(r.Context(), audit.EventLogin, map[string]any{
		"user_id":    user.ID,
		"roles":      roles,
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// handleMe returns the caller's own account.
func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	user, err := a.svc.Self(r.Context(), caller(r))
	if err != nil {
		handleShelterError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type createUserRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	SiteAdmin   bool   `json:"site_admin"`
}

// handleUsers registers accounts. Site admins only.
func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "password is required")
		return
	}
	user := &shelter.User{
		Email:        req.Email,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		PasswordHash: hash,
		SiteAdmin:    req.SiteAdmin,
	}
	if err := a.svc.CreateUser(r.Context(), caller(r), user); err != nil {
		handleShelterError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), audit.EventUserCreate, map[string]any{
		"new_user_id": user.ID,
		"site_admin":  user.SiteAdmin,
	})
	w.Header().Set("Location", "/v1/users/"+user.ID)
	writeJSON(w, http.StatusCreated, user)
}
