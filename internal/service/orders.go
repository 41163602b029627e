package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/gamecodes-store/internal/model"
	"github.com/mmeshcher/gamecodes-store/internal/validation"
)

// PlaceOrderRequest описывает запрос на оформление заказа.
type PlaceOrderRequest struct {
	Items          []model.CartItem
	PaymentMethod  model.PaymentMethod
	IdempotencyKey string
}

// PlaceOrder оформляет заказ: проверяет наличие и средства, закрепляет за заказом
// конкретные коды, списывает баланс и сохраняет заказ. Всё выполняется в одной
// транзакции; при любой ошибке хранилище остаётся в исходном состоянии.
// Коды расшифровываются только после фиксации транзакции.
func (s *Service) PlaceOrder(ctx context.Context, p model.Principal, req PlaceOrderRequest) (*model.OrderView, error) {
	if err := validation.ValidateCart(req.Items, req.PaymentMethod); err != nil {
		s.metrics.OrderFailed(failureReason(err))
		return nil, err
	}

	if req.IdempotencyKey == "" || s.idem == nil {
		return s.placeOrder(ctx, p, req)
	}

	fingerprint := cartFingerprint(validation.MergeCart(req.Items), req.PaymentMethod)
	orderID, reserved, err := s.idem.Reserve(ctx, p.AccountID, req.IdempotencyKey, fingerprint)
	if err != nil {
		if errors.Is(err, model.ErrIdempotencyKeyReused) {
			s.metrics.OrderFailed("idempotency_key_reused")
			return nil, err
		}
		return nil, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if !reserved {
		if orderID == "" {
			return nil, model.ErrRequestInProgress
		}
		return s.GetOrder(ctx, orderID, p)
	}

	view, err := s.placeOrder(ctx, p, req)
	if err != nil {
		// Ключ освобождается в отдельном контексте: запрос мог быть отменён.
		if relErr := s.idem.Release(context.WithoutCancel(ctx), p.AccountID, req.IdempotencyKey); relErr != nil {
			s.metrics.OrderFailed("idempotency_release")
			s.logger.Warn("release idempotency key",
				zap.String("account_id", p.AccountID),
				zap.String("key", req.IdempotencyKey),
				zap.Error(relErr),
			)
		}
		return nil, err
	}

	// Заказ уже зафиксирован: сбой хранилища ключей не возвращается вызывающему.
	// Ключ остаётся занятым до истечения TTL.
	if err := s.idem.Complete(context.WithoutCancel(ctx), p.AccountID, req.IdempotencyKey, fingerprint, view.ID); err != nil {
		s.metrics.OrderFailed("idempotency_complete")
		s.logger.Error("complete idempotency key",
			zap.String("account_id", p.AccountID),
			zap.String("key", req.IdempotencyKey),
			zap.String("order_id", view.ID),
			zap.Error(err),
		)
	}
	return view, nil
}

// cartFingerprint строит отпечаток объединённой корзины и способа оплаты.
func cartFingerprint(items []model.CartItem, method model.PaymentMethod) string {
	var b strings.Builder
	b.WriteString(string(method))
	for _, it := range items {
		b.WriteByte('|')
		b.WriteString(it.ProductID)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(it.Quantity))
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func (s *Service) placeOrder(ctx context.Context, p model.Principal, req PlaceOrderRequest) (*model.OrderView, error) {
	start := s.clock.Now()

	order, err := s.allocateOrder(ctx, p.AccountID, validation.MergeCart(req.Items), req.PaymentMethod)
	if err != nil {
		s.metrics.OrderFailed(failureReason(err))
		return nil, err
	}

	s.metrics.OrderPlaced(order.PaymentMethod, len(order.Lines), s.clock.Now().Sub(start))

	return s.orderView(order)
}

// allocateOrder выполняет транзакционную часть оформления заказа.
// items должны быть объединены и отсортированы по товару: так блокировки кодов
// берутся в одном порядке всеми транзакциями.
func (s *Service) allocateOrder(ctx context.Context, accountID string, items []model.CartItem, method model.PaymentMethod) (*model.Order, error) {
	now := s.clock.Now()

	var order model.Order
	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		order = model.Order{
			ID:            uuid.NewString(),
			AccountID:     accountID,
			PaymentMethod: method,
			Status:        model.OrderStatusPending,
			CreatedAt:     now,
		}

		products := make([]*model.Product, len(items))
		total := decimal.Zero
		for i, it := range items {
			product, err := s.repo.GetProduct(ctx, it.ProductID)
			if err != nil {
				return err
			}
			if !product.Active {
				return &model.ProductInactiveError{ProductID: it.ProductID}
			}

			available, err := s.repo.CountAvailableUnits(ctx, it.ProductID)
			if err != nil {
				return err
			}
			if available < it.Quantity {
				return &model.InsufficientStockError{
					ProductID: it.ProductID,
					Requested: it.Quantity,
					Available: available,
				}
			}

			products[i] = product
			total = total.Add(product.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
		}
		order.TotalAmount = total

		if method == model.PaymentMethodCredit {
			balance, err := s.repo.GetBalance(ctx, accountID)
			if err != nil {
				return err
			}
			if balance.LessThan(total) {
				return &model.InsufficientCreditError{Required: total, Available: balance}
			}
		}

		if err := s.repo.CreateOrder(ctx, order); err != nil {
			return err
		}

		lines := make([]model.OrderLine, 0, len(items))
		for i, it := range items {
			units, err := s.repo.LockAvailableUnits(ctx, it.ProductID, it.Quantity)
			if err != nil {
				return err
			}
			if len(units) < it.Quantity {
				return &model.AllocationRaceLostError{ProductID: it.ProductID}
			}

			ids := make([]string, 0, len(units))
			for _, u := range units {
				ids = append(ids, u.ID)
			}
			allocated, err := s.repo.AllocateUnits(ctx, order.ID, ids, now)
			if err != nil {
				return err
			}
			if allocated != int64(len(ids)) {
				return &model.AllocationRaceLostError{ProductID: it.ProductID}
			}

			for _, u := range units {
				lines = append(lines, model.OrderLine{
					ID:          uuid.NewString(),
					OrderID:     order.ID,
					ProductID:   it.ProductID,
					ProductName: products[i].Name,
					UnitID:      u.ID,
					UnitPrice:   products[i].Price,
					Payload:     u.Payload,
				})
			}
		}

		if err := s.repo.CreateOrderLines(ctx, lines); err != nil {
			return err
		}

		if method == model.PaymentMethodCredit {
			ok, err := s.repo.DebitBalance(ctx, accountID, total)
			if err != nil {
				return err
			}
			if !ok {
				// Баланс уменьшился параллельной покупкой после проверки.
				balance, err := s.repo.GetBalance(ctx, accountID)
				if err != nil {
					return err
				}
				return &model.InsufficientCreditError{Required: total, Available: balance}
			}
		}

		if err := s.repo.SetOrderStatus(ctx, order.ID, model.OrderStatusPending, model.OrderStatusCompleted); err != nil {
			return err
		}
		order.Status = model.OrderStatusCompleted
		order.Lines = lines
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &order, nil
}

// GetOrder возвращает заказ. Покупатель видит только свои заказы; чужой заказ
// неотличим от несуществующего.
func (s *Service) GetOrder(ctx context.Context, orderID string, p model.Principal) (*model.OrderView, error) {
	if !validation.IsValidID(orderID) {
		return nil, model.ErrOrderNotFound
	}

	owner := p.AccountID
	if p.IsAdmin() {
		owner = ""
	}

	order, err := s.repo.GetOrder(ctx, orderID, owner)
	if err != nil {
		return nil, err
	}
	return s.orderView(order)
}

// ListOrders возвращает заказы пользователя, новые первыми.
func (s *Service) ListOrders(ctx context.Context, p model.Principal) ([]model.OrderView, error) {
	orders, err := s.repo.ListOrdersByAccount(ctx, p.AccountID)
	if err != nil {
		return nil, err
	}

	views := make([]model.OrderView, 0, len(orders))
	for i := range orders {
		v, err := s.orderView(&orders[i])
		if err != nil {
			return nil, err
		}
		views = append(views, *v)
	}
	return views, nil
}

// orderView группирует строки заказа по товару и расшифровывает коды.
func (s *Service) orderView(o *model.Order) (*model.OrderView, error) {
	view := &model.OrderView{
		ID:            o.ID,
		AccountID:     o.AccountID,
		TotalAmount:   o.TotalAmount,
		PaymentMethod: o.PaymentMethod,
		Status:        o.Status,
		CreatedAt:     o.CreatedAt,
		Items:         []model.OrderViewItem{},
	}

	index := make(map[string]int)
	for _, l := range o.Lines {
		code, err := s.cipher.Decrypt(l.Payload)
		if err != nil {
			return nil, fmt.Errorf("decrypt code of unit %s: %w", l.UnitID, err)
		}

		i, ok := index[l.ProductID]
		if !ok {
			i = len(view.Items)
			index[l.ProductID] = i
			view.Items = append(view.Items, model.OrderViewItem{
				ProductID:   l.ProductID,
				ProductName: l.ProductName,
				UnitPrice:   l.UnitPrice,
			})
		}
		view.Items[i].Quantity++
		view.Items[i].Codes = append(view.Items[i].Codes, code)
	}

	return view, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, model.ErrValidation):
		return "validation"
	case errors.Is(err, model.ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, model.ErrProductInactive):
		return "product_inactive"
	case errors.Is(err, model.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, model.ErrInsufficientCredit):
		return "insufficient_credit"
	case errors.Is(err, model.ErrAllocationRaceLost):
		return "allocation_race_lost"
	case errors.Is(err, model.ErrTimeout):
		return "timeout"
	default:
		return "internal"
	}
}
