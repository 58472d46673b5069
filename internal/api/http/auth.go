package apihttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"soilwatch/internal/auth"
)

const maxSignInBody = 4 << 10

// AuthHandler serves sign-in, sign-out and session status.
type AuthHandler struct {
	gate *auth.Gate
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(gate *auth.Gate) (*AuthHandler, error) {
	if gate == nil {
		return nil, errors.New("auth handler: nil gate")
	}
	return &AuthHandler{gate: gate}, nil
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	SignedIn  bool      `json:"signed_in"`
	Token     string    `json:"token,omitempty"`
	Email     string    `json:"email,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// ServeHTTP handles /api/v1/auth/*.
func (h *AuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/v1/auth/sign-in":
		h.handleSignIn(w, r)
	case "/api/v1/auth/sign-out":
		h.handleSignOut(w, r)
	case "/api/v1/auth/session":
		h.handleSession(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *AuthHandler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req signInRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSignInBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	signed, err := h.gate.SignIn(r.Context(), req.Email, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "sign-in unavailable")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		SignedIn:  true,
		Token:     signed.Token,
		Email:     signed.Claims.Email,
		ExpiresAt: signed.Claims.Expiry(),
	})
}

func (h *AuthHandler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.gate.SignOut(r.Context(), claims); err != nil {
		writeError(w, http.StatusInternalServerError, "sign-out failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSession reports whether the presented token is still valid. It is
// exempt from the middleware so clients can probe without a 401.
func (h *AuthHandler) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	claims, err := h.gate.Check(r.Context(), auth.ExtractToken(r))
	if err != nil {
		writeJSON(w, http.StatusOK, sessionResponse{SignedIn: false})
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		SignedIn:  true,
		Email:     claims.Email,
		ExpiresAt: claims.Expiry(),
	})
}
