package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	AccountID string `json:"accountId"`
	Token     string `json:"token"`
}

// Register обрабатывает регистрацию нового покупателя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	accountID, err := h.service.RegisterAccount(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeServiceError(w, r, "register account", err)
		return
	}

	token := h.authMiddleware.IssueToken(w, accountID)
	writeJSON(w, http.StatusOK, authResponse{AccountID: accountID, Token: token})
}

// Login выполняет аутентификацию пользователя и выдаёт токен.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	accountID, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeServiceError(w, r, "login", err)
		return
	}

	token := h.authMiddleware.IssueToken(w, accountID)
	writeJSON(w, http.StatusOK, authResponse{AccountID: accountID, Token: token})
}

type balanceResponse struct {
	Balance string `json:"balance"`
}

// GetBalance возвращает кредитный баланс текущего пользователя.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	balance, err := h.service.GetBalance(r.Context(), p)
	if err != nil {
		h.writeServiceError(w, r, "get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Balance: money(balance)})
}

// BanAccount блокирует учётную запись.
func (h *Handler) BanAccount(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	if err := h.service.BanAccount(r.Context(), p, chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, "ban account", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
