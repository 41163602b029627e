package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/gamecodes-store/internal/middleware"
	"github.com/mmeshcher/gamecodes-store/internal/model"
	"github.com/mmeshcher/gamecodes-store/internal/service"
)

type productResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Platform       string `json:"platform"`
	Price          string `json:"price"`
	Active         bool   `json:"active"`
	AvailableCount int    `json:"availableCount"`
	CreatedAt      string `json:"createdAt"`
}

func newProductResponse(p *model.Product) productResponse {
	return productResponse{
		ID:             p.ID,
		Name:           p.Name,
		Platform:       p.Platform,
		Price:          money(p.Price),
		Active:         p.Active,
		AvailableCount: p.AvailableCount,
		CreatedAt:      p.CreatedAt.Format(time.RFC3339),
	}
}

// ListProducts возвращает каталог. Доступен и без аутентификации.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.GetPrincipalFromContext(r.Context())

	products, err := h.service.ListProducts(r.Context(), p)
	if err != nil {
		h.writeServiceError(w, r, "list products", err)
		return
	}

	resp := make([]productResponse, 0, len(products))
	for i := range products {
		resp = append(resp, newProductResponse(&products[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

type createProductRequest struct {
	Name     string          `json:"name"`
	Platform string          `json:"platform"`
	Price    decimal.Decimal `json:"price"`
}

// CreateProduct добавляет товар в каталог.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req createProductRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	product, err := h.service.CreateProduct(r.Context(), p, service.ProductInput{
		Name:     req.Name,
		Platform: req.Platform,
		Price:    req.Price,
	})
	if err != nil {
		h.writeServiceError(w, r, "create product", err)
		return
	}
	writeJSON(w, http.StatusCreated, newProductResponse(product))
}

type updateProductRequest struct {
	Price  *decimal.Decimal `json:"price"`
	Active *bool            `json:"active"`
}

// UpdateProduct меняет цену или активность товара.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req updateProductRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	product, err := h.service.UpdateProduct(r.Context(), p, chi.URLParam(r, "id"), service.ProductUpdate{
		Price:  req.Price,
		Active: req.Active,
	})
	if err != nil {
		h.writeServiceError(w, r, "update product", err)
		return
	}
	writeJSON(w, http.StatusOK, newProductResponse(product))
}

// DeleteProduct удаляет товар без продаж.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteProduct(r.Context(), p, chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, "delete product", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addCodesRequest struct {
	Codes []string `json:"codes"`
}

type addCodesResponse struct {
	Added int64 `json:"added"`
}

// AddCodes загружает пакет кодов товара.
func (h *Handler) AddCodes(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req addCodesRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	n, err := h.service.AddInventory(r.Context(), p, chi.URLParam(r, "id"), req.Codes)
	if err != nil {
		h.writeServiceError(w, r, "add codes", err)
		return
	}
	writeJSON(w, http.StatusCreated, addCodesResponse{Added: n})
}

// DeleteCode удаляет непроданный код.
func (h *Handler) DeleteCode(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteInventoryUnit(r.Context(), p, chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, "delete code", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
