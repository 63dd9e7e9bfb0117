package httpapi

import (
	"errors"
	"net/http"
	"time"

	"conselho.org/internal/audit"
	"conselho.org/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
}

type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

const tokenTTL = 15 * time.Minute

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.users == nil {
		writeError(w, r, http.StatusServiceUnavailable, "authentication disabled")
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user, err := a.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "authentication error")
		return
	}

	token, err := auth.GenerateToken(user.ID, user.Role, tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	expiresAt := time.Now().UTC().Add(tokenTTL)
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"user_id":    user.ID,
		"role":       user.Role,
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		UserID:    user.ID,
		Role:      user.Role,
	})
}

// handleUsers provisions accounts; restricted to administrators.
func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.users == nil {
		writeError(w, r, http.StatusServiceUnavailable, "authentication disabled")
		return
	}
	role, ok := auth.RoleFromContext(r.Context())
	if !ok || role != "admin" {
		writeError(w, r, http.StatusForbidden, "admin role required")
		return
	}

	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user, err := a.users.Register(r.Context(), req.Email, req.Password, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, err.Error())
		case errors.Is(err, auth.ErrAlreadyExists):
			writeError(w, r, http.StatusConflict, err.Error())
		default:
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.user.create", map[string]any{
		"user_id": user.ID,
		"role":    user.Role,
	})

	w.Header().Set("Location", "/v1/auth/users/"+user.ID)
	writeJSON(w, http.StatusCreated, user)
}
