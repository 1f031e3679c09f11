package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	domuser "example.com/pod-fulfillment/internal/domain/user"
	authuc "example.com/pod-fulfillment/internal/usecase/auth"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type loginResponse struct {
	Token     string         `json:"token"`
	TokenType string         `json:"token_type"`
	User      map[string]any `json:"user"`
}

// handleLogin answers 400 BadRequest for an unreadable body, 422
// InvalidCredential for credentials that cannot be valid and 401 for a
// wrong email or password. The two 401 cases are indistinguishable.
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, kindBadRequest, err)
		return
	}
	if err := a.validator.Struct(&req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, kindInvalidCredential, domuser.ErrInvalidCredential)
		return
	}

	result, err := a.authSvc.Login(r.Context(), authuc.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		a.handleDomainError(w, r, err)
		return
	}

	a.logger.InfoContext(r.Context(), "login succeeded",
		slog.Int64("user_id", result.User.ID),
		slog.String("role", string(result.User.RoleCode)),
	)
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     result.Token,
		TokenType: "Bearer",
		User:      mapUser(result.User),
	})
}
