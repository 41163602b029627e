package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/gamecodes-store/internal/model"
)

type creditRequestResponse struct {
	ID         string  `json:"id"`
	AccountID  string  `json:"accountId"`
	Amount     string  `json:"amount"`
	Note       string  `json:"note,omitempty"`
	Status     string  `json:"status"`
	AdminNote  string  `json:"adminNote,omitempty"`
	ReviewedBy *string `json:"reviewedBy,omitempty"`
	CreatedAt  string  `json:"createdAt"`
	ReviewedAt *string `json:"reviewedAt,omitempty"`
}

func newCreditRequestResponse(c *model.CreditRequest) creditRequestResponse {
	resp := creditRequestResponse{
		ID:         c.ID,
		AccountID:  c.AccountID,
		Amount:     money(c.Amount),
		Note:       c.Note,
		Status:     string(c.Status),
		AdminNote:  c.AdminNote,
		ReviewedBy: c.ReviewedBy,
		CreatedAt:  c.CreatedAt.Format(time.RFC3339),
	}
	if c.ReviewedAt != nil {
		at := c.ReviewedAt.Format(time.RFC3339)
		resp.ReviewedAt = &at
	}
	return resp
}

type submitCreditRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note"`
}

// SubmitCreditRequest создаёт заявку на пополнение баланса текущего пользователя.
func (h *Handler) SubmitCreditRequest(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req submitCreditRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	created, err := h.service.SubmitCreditRequest(r.Context(), p, req.Amount, req.Note)
	if err != nil {
		h.writeServiceError(w, r, "submit credit request", err)
		return
	}
	writeJSON(w, http.StatusCreated, newCreditRequestResponse(created))
}

// ListCreditRequests возвращает заявки, по умолчанию ожидающие рассмотрения.
// Параметр status=all возвращает все заявки.
func (h *Handler) ListCreditRequests(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	status := model.CreditRequestStatus(r.URL.Query().Get("status"))
	switch status {
	case "":
		status = model.CreditRequestPending
	case "all":
		status = ""
	}

	list, err := h.service.ListCreditRequests(r.Context(), p, status)
	if err != nil {
		h.writeServiceError(w, r, "list credit requests", err)
		return
	}

	resp := make([]creditRequestResponse, 0, len(list))
	for i := range list {
		resp = append(resp, newCreditRequestResponse(&list[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

type reviewCreditRequest struct {
	Approve   bool   `json:"approve"`
	AdminNote string `json:"adminNote"`
}

// ReviewCreditRequest одобряет или отклоняет заявку.
func (h *Handler) ReviewCreditRequest(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req reviewCreditRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	reviewed, err := h.service.ReviewCreditRequest(r.Context(), p, chi.URLParam(r, "id"), req.Approve, req.AdminNote)
	if err != nil {
		h.writeServiceError(w, r, "review credit request", err)
		return
	}
	writeJSON(w, http.StatusOK, newCreditRequestResponse(reviewed))
}
