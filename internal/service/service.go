// Package service реализует бизнес-логику магазина игровых кодов.
package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/gamecodes-store/internal/clock"
	"github.com/mmeshcher/gamecodes-store/internal/model"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
// Методы, вызванные с контекстом из WithTx, выполняются внутри этой транзакции.
type Repository interface {
	Close() error
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	CreateAccount(ctx context.Context, a model.Account) error
	GetAccountByEmail(ctx context.Context, email string) (*model.Account, error)
	GetAccount(ctx context.Context, id string) (*model.Account, error)
	GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error)
	DebitBalance(ctx context.Context, accountID string, amount decimal.Decimal) (bool, error)
	CreditBalance(ctx context.Context, accountID string, amount decimal.Decimal) error
	SetAccountBanned(ctx context.Context, accountID string, banned bool) error

	ListProducts(ctx context.Context, activeOnly bool) ([]model.Product, error)
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	CreateProduct(ctx context.Context, p model.Product) error
	UpdateProductPrice(ctx context.Context, id string, price decimal.Decimal) error
	SetProductActive(ctx context.Context, id string, active bool) error
	DeleteProduct(ctx context.Context, id string) error
	CountAvailableUnits(ctx context.Context, productID string) (int, error)
	LockAvailableUnits(ctx context.Context, productID string, limit int) ([]model.InventoryUnit, error)
	AllocateUnits(ctx context.Context, orderID string, unitIDs []string, at time.Time) (int64, error)
	AddInventoryUnits(ctx context.Context, productID string, payloads [][]byte, at time.Time) (int64, error)
	DeleteInventoryUnit(ctx context.Context, unitID string) error

	CreateOrder(ctx context.Context, o model.Order) error
	CreateOrderLines(ctx context.Context, lines []model.OrderLine) error
	SetOrderStatus(ctx context.Context, orderID string, from, to model.OrderStatus) error
	GetOrder(ctx context.Context, orderID, ownerID string) (*model.Order, error)
	ListOrdersByAccount(ctx context.Context, accountID string) ([]model.Order, error)

	CreateCreditRequest(ctx context.Context, req model.CreditRequest) error
	GetCreditRequestForUpdate(ctx context.Context, id string) (*model.CreditRequest, error)
	MarkCreditRequestReviewed(ctx context.Context, id string, status model.CreditRequestStatus, adminNote, reviewerID string, at time.Time) error
	ListCreditRequests(ctx context.Context, status model.CreditRequestStatus) ([]model.CreditRequest, error)
}

// CodeCipher шифрует коды при загрузке и расшифровывает их при выдаче.
type CodeCipher interface {
	Encrypt(code string) ([]byte, error)
	Decrypt(payload []byte) (string, error)
}

// IdempotencyStore хранит ключи идемпотентности запросов на оформление заказа.
// fingerprint идентифицирует содержимое запроса, занявшего ключ.
type IdempotencyStore interface {
	// Reserve занимает ключ. Если ключ уже занят, reserved = false, а orderID содержит
	// идентификатор заказа, созданного по этому ключу (пустой, пока запрос выполняется).
	// Ключ, занятый запросом с другим fingerprint, даёт model.ErrIdempotencyKeyReused.
	Reserve(ctx context.Context, scope, key, fingerprint string) (orderID string, reserved bool, err error)
	Complete(ctx context.Context, scope, key, fingerprint, orderID string) error
	Release(ctx context.Context, scope, key string) error
}

// Metrics собирает метрики оформления заказов.
type Metrics interface {
	OrderPlaced(method model.PaymentMethod, units int, duration time.Duration)
	OrderFailed(reason string)
}

// Service содержит бизнес-логику магазина.
type Service struct {
	repo    Repository
	cipher  CodeCipher
	idem    IdempotencyStore
	metrics Metrics
	clock   clock.Clock
	logger  *zap.Logger
}

// Option настраивает Service.
type Option func(*Service)

// WithIdempotencyStore включает обработку ключей идемпотентности.
func WithIdempotencyStore(store IdempotencyStore) Option {
	return func(s *Service) { s.idem = store }
}

// WithMetrics задаёт сборщик метрик.
func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger задаёт логгер сервиса.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock подменяет источник времени.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// NewService создаёт новый сервис с указанным репозиторием и шифратором кодов.
func NewService(repo Repository, cipher CodeCipher, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		cipher:  cipher,
		metrics: noopMetrics{},
		clock:   clock.NewSystem(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

type noopMetrics struct{}

func (noopMetrics) OrderPlaced(model.PaymentMethod, int, time.Duration) {}
func (noopMetrics) OrderFailed(string)                                  {}

func requireInventoryManager(p model.Principal) error {
	if !model.CanManageInventory(p.Role) {
		return model.ErrForbidden
	}
	return nil
}
