// Package handler содержит HTTP-обработчики API магазина игровых кодов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/gamecodes-store/internal/middleware"
	"github.com/mmeshcher/gamecodes-store/internal/model"
	"github.com/mmeshcher/gamecodes-store/internal/service"
)

// maxBodySize ограничивает размер тела запроса.
const maxBodySize = 1 << 20

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterAccount(ctx context.Context, email, password string) (string, error)
	Authenticate(ctx context.Context, email, password string) (string, error)
	GetBalance(ctx context.Context, p model.Principal) (decimal.Decimal, error)
	BanAccount(ctx context.Context, actor model.Principal, targetID string) error

	PlaceOrder(ctx context.Context, p model.Principal, req service.PlaceOrderRequest) (*model.OrderView, error)
	GetOrder(ctx context.Context, orderID string, p model.Principal) (*model.OrderView, error)
	ListOrders(ctx context.Context, p model.Principal) ([]model.OrderView, error)

	ListProducts(ctx context.Context, p model.Principal) ([]model.Product, error)
	CreateProduct(ctx context.Context, actor model.Principal, in service.ProductInput) (*model.Product, error)
	UpdateProduct(ctx context.Context, actor model.Principal, id string, upd service.ProductUpdate) (*model.Product, error)
	DeleteProduct(ctx context.Context, actor model.Principal, id string) error
	AddInventory(ctx context.Context, actor model.Principal, productID string, codes []string) (int64, error)
	DeleteInventoryUnit(ctx context.Context, actor model.Principal, unitID string) error

	SubmitCreditRequest(ctx context.Context, p model.Principal, amount decimal.Decimal, note string) (*model.CreditRequest, error)
	ReviewCreditRequest(ctx context.Context, actor model.Principal, id string, approve bool, adminNote string) (*model.CreditRequest, error)
	ListCreditRequests(ctx context.Context, actor model.Principal, status model.CreditRequestStatus) ([]model.CreditRequest, error)
}

// Pinger проверяет доступность зависимости для /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler реализует HTTP-обработчики API магазина.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	metrics        http.Handler
	checks         map[string]Pinger
}

// Option настраивает Handler.
type Option func(*Handler)

// WithMetricsHandler публикует метрики по пути /metrics.
func WithMetricsHandler(m http.Handler) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithHealthCheck добавляет зависимость, проверяемую в /health.
func WithHealthCheck(name string, p Pinger) Option {
	return func(h *Handler) { h.checks[name] = p }
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, opts ...Option) *Handler {
	h := &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		checks:         make(map[string]Pinger),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeJSON читает тело запроса в v. При ошибке ответ 400 уже записан.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

// principal возвращает пользователя из контекста. Без него ответ 401 уже записан.
func principal(w http.ResponseWriter, r *http.Request) (model.Principal, bool) {
	p, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
	}
	return p, ok
}

// writeServiceError переводит ошибку сервиса в HTTP-ответ.
// Неизвестные ошибки пишутся в журнал, клиент видит только общий текст.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, model.ErrValidation),
		errors.Is(err, model.ErrProductInactive),
		errors.Is(err, model.ErrInsufficientStock),
		errors.Is(err, model.ErrInsufficientCredit):
		writeError(w, http.StatusBadRequest, err.Error())

	case errors.Is(err, model.ErrAllocationRaceLost):
		writeError(w, http.StatusConflict, "inventory was taken by a concurrent order, retry the request")
	case errors.Is(err, model.ErrRequestInProgress):
		writeError(w, http.StatusConflict, "request with this idempotency key is in progress")
	case errors.Is(err, model.ErrIdempotencyKeyReused):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, model.ErrAccountExists),
		errors.Is(err, model.ErrProductHasSales),
		errors.Is(err, model.ErrUnitAllocated),
		errors.Is(err, model.ErrCreditRequestReviewed):
		writeError(w, http.StatusConflict, err.Error())

	case errors.Is(err, model.ErrTimeout):
		w.Header().Set("Retry-After", strconv.Itoa(1))
		writeError(w, http.StatusServiceUnavailable, "store is busy, retry the request")

	case errors.Is(err, model.ErrProductNotFound),
		errors.Is(err, model.ErrOrderNotFound),
		errors.Is(err, model.ErrAccountNotFound),
		errors.Is(err, model.ErrUnitNotFound),
		errors.Is(err, model.ErrCreditRequestNotFound):
		writeError(w, http.StatusNotFound, err.Error())

	case errors.Is(err, model.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, model.ErrForbidden), errors.Is(err, model.ErrAccountBanned):
		writeError(w, http.StatusForbidden, err.Error())

	default:
		h.logger.Error(op+" error",
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// Health проверяет доступность зависимостей.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	resp := map[string]string{}
	for name, p := range h.checks {
		if err := p.Ping(r.Context()); err != nil {
			h.logger.Warn("health check failed", zap.String("dependency", name), zap.Error(err))
			resp[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		resp[name] = "ok"
	}
	writeJSON(w, status, resp)
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
