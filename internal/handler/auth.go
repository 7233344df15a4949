package handler

import (
	"errors"
	"net/http"

	"github.com/kkkkikiki/coupon-verify/internal/service"
)

type loginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type loginUser struct {
	ID    int64  `json:"id"`
	Phone string `json:"phone"`
}

type loginResponse struct {
	Token string    `json:"token"`
	User  loginUser `json:"user"`
}

type verifyResponse struct {
	User *service.Identity `json:"user"`
}

// Login handles POST /api/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.auth.Login(r.Context(), req.Phone, req.Password)
	if err != nil {
		// Unknown operators get the same status as wrong passwords
		if errors.Is(err, service.ErrNotFound) {
			writeFailure(w, http.StatusUnauthorized, err.Error())
			return
		}
		h.writeError(w, r, err)
		return
	}

	writeSuccess(w, "login successful", loginResponse{
		Token: result.Token,
		User:  loginUser{ID: result.OperatorID, Phone: result.Phone},
	})
}

// Verify handles GET /api/auth/verify
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())
	writeSuccess(w, "token valid", verifyResponse{User: identity})
}

// Logout handles POST /api/auth/logout. Tokens are stateless, so the client
// just drops its copy.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, "logout successful", nil)
}
