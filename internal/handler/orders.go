package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/gamecodes-store/internal/model"
	"github.com/mmeshcher/gamecodes-store/internal/service"
)

const idempotencyHeader = "Idempotency-Key"

type cartItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type placeOrderRequest struct {
	Items         []cartItemRequest   `json:"items"`
	PaymentMethod model.PaymentMethod `json:"paymentMethod"`
}

type orderItemResponse struct {
	ProductID   string   `json:"productId"`
	ProductName string   `json:"productName"`
	Quantity    int      `json:"quantity"`
	UnitPrice   string   `json:"unitPrice"`
	Codes       []string `json:"codes"`
}

type orderResponse struct {
	OrderID       string              `json:"orderId"`
	TotalAmount   string              `json:"totalAmount"`
	PaymentMethod string              `json:"paymentMethod"`
	Items         []orderItemResponse `json:"items"`
	Status        string              `json:"status"`
	CreatedAt     string              `json:"createdAt"`
}

func newOrderResponse(v *model.OrderView) orderResponse {
	items := make([]orderItemResponse, 0, len(v.Items))
	for _, it := range v.Items {
		items = append(items, orderItemResponse{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   money(it.UnitPrice),
			Codes:       it.Codes,
		})
	}

	return orderResponse{
		OrderID:       v.ID,
		TotalAmount:   money(v.TotalAmount),
		PaymentMethod: string(v.PaymentMethod),
		Items:         items,
		Status:        string(v.Status),
		CreatedAt:     v.CreatedAt.Format(time.RFC3339),
	}
}

// PlaceOrder оформляет заказ текущего пользователя.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req placeOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	items := make([]model.CartItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, model.CartItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	view, err := h.service.PlaceOrder(r.Context(), p, service.PlaceOrderRequest{
		Items:          items,
		PaymentMethod:  req.PaymentMethod,
		IdempotencyKey: r.Header.Get(idempotencyHeader),
	})
	if err != nil {
		// Несуществующий товар в корзине это ошибка запроса, а не отсутствующий ресурс.
		if errors.Is(err, model.ErrProductNotFound) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.writeServiceError(w, r, "place order", err)
		return
	}

	writeJSON(w, http.StatusCreated, newOrderResponse(view))
}

// GetOrder возвращает заказ по идентификатору.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	view, err := h.service.GetOrder(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		h.writeServiceError(w, r, "get order", err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(view))
}

// ListOrders возвращает заказы текущего пользователя.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	views, err := h.service.ListOrders(r.Context(), p)
	if err != nil {
		h.writeServiceError(w, r, "list orders", err)
		return
	}

	if len(views) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]orderResponse, 0, len(views))
	for i := range views {
		resp = append(resp, newOrderResponse(&views[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}
