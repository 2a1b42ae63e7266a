package handlers

import (
	"net/http"

	"memo/internal/handlers/dto"
	"memo/internal/logger"

	"go.uber.org/zap"
)

type AuthHandler struct {
	AuthService AuthService
}

func NewAuthHandler(authService AuthService) AuthHandler {
	return AuthHandler{AuthService: authService}
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var request dto.SignUpRequest
	if !decodeJSON(w, r, &request) {
		return
	}

	session, err := h.AuthService.SignUp(r.Context(), request.Email, request.Password, request.DisplayName)
	if err != nil {
		handleError(w, r, err, "sign_up")
		return
	}

	logger.Info("HTTP_OUT: Пользователь зарегистрирован", zap.String("user_id", session.User.ID))
	responseWithJSON(w, http.StatusCreated, toPayload("session", dto.FromSession(session)))
}

func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var request dto.SignInRequest
	if !decodeJSON(w, r, &request) {
		return
	}

	session, err := h.AuthService.SignIn(r.Context(), request.Email, request.Password)
	if err != nil {
		handleError(w, r, err, "sign_in")
		return
	}
	responseWithJSON(w, http.StatusOK, toPayload("session", dto.FromSession(session)))
}

func (h *AuthHandler) SignInFederated(w http.ResponseWriter, r *http.Request) {
	var request dto.FederatedSignInRequest
	if !decodeJSON(w, r, &request) {
		return
	}

	session, err := h.AuthService.SignInWithIDToken(r.Context(), request.IDToken)
	if err != nil {
		handleError(w, r, err, "sign_in_federated")
		return
	}
	responseWithJSON(w, http.StatusOK, toPayload("session", dto.FromSession(session)))
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	u, err := h.AuthService.Profile(r.Context(), userID)
	if err != nil {
		handleError(w, r, err, "profile")
		return
	}
	responseWithJSON(w, http.StatusOK, toPayload("user", dto.FromUser(u)))
}

func (h *AuthHandler) LinkTelegram(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var request dto.LinkTelegramRequest
	if !decodeJSON(w, r, &request) {
		return
	}

	if err := h.AuthService.LinkTelegram(r.Context(), userID, request.ChatID); err != nil {
		handleError(w, r, err, "link_telegram")
		return
	}

	u, err := h.AuthService.Profile(r.Context(), userID)
	if err != nil {
		handleError(w, r, err, "profile")
		return
	}
	responseWithJSON(w, http.StatusOK, toPayload("user", dto.FromUser(u)))
}
