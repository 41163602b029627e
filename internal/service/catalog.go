package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/gamecodes-store/internal/model"
	"github.com/mmeshcher/gamecodes-store/internal/validation"
)

// ProductInput описывает новый товар.
type ProductInput struct {
	Name     string
	Platform string
	Price    decimal.Decimal
}

// ProductUpdate описывает изменение товара. Пустые поля не меняются.
type ProductUpdate struct {
	Price  *decimal.Decimal
	Active *bool
}

// ListProducts возвращает каталог. Администратор видит и снятые с продажи товары.
func (s *Service) ListProducts(ctx context.Context, p model.Principal) ([]model.Product, error) {
	return s.repo.ListProducts(ctx, !p.IsAdmin())
}

// CreateProduct добавляет товар в каталог.
func (s *Service) CreateProduct(ctx context.Context, actor model.Principal, in ProductInput) (*model.Product, error) {
	if err := requireInventoryManager(actor); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(in.Name)
	platform := strings.TrimSpace(in.Platform)
	if name == "" {
		return nil, &model.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if platform == "" {
		return nil, &model.ValidationError{Field: "platform", Reason: "must not be empty"}
	}
	if err := validation.ValidateAmount("price", in.Price); err != nil {
		return nil, err
	}

	p := model.Product{
		ID:        uuid.NewString(),
		Name:      name,
		Platform:  platform,
		Price:     in.Price,
		Active:    true,
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.CreateProduct(ctx, p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProduct меняет цену и/или признак активности товара.
func (s *Service) UpdateProduct(ctx context.Context, actor model.Principal, id string, upd ProductUpdate) (*model.Product, error) {
	if err := requireInventoryManager(actor); err != nil {
		return nil, err
	}
	if !validation.IsValidID(id) {
		return nil, &model.ProductNotFoundError{ProductID: id}
	}
	if upd.Price == nil && upd.Active == nil {
		return nil, &model.ValidationError{Field: "body", Reason: "nothing to update"}
	}
	if upd.Price != nil {
		if err := validation.ValidateAmount("price", *upd.Price); err != nil {
			return nil, err
		}
	}

	var product *model.Product
	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		if upd.Price != nil {
			if err := s.repo.UpdateProductPrice(ctx, id, *upd.Price); err != nil {
				return err
			}
		}
		if upd.Active != nil {
			if err := s.repo.SetProductActive(ctx, id, *upd.Active); err != nil {
				return err
			}
		}

		var err error
		product, err = s.repo.GetProduct(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

// DeleteProduct удаляет товар, по которому ещё не было продаж.
func (s *Service) DeleteProduct(ctx context.Context, actor model.Principal, id string) error {
	if err := requireInventoryManager(actor); err != nil {
		return err
	}
	if !validation.IsValidID(id) {
		return &model.ProductNotFoundError{ProductID: id}
	}
	return s.repo.DeleteProduct(ctx, id)
}

// AddInventory шифрует и загружает пакет кодов товара. Возвращает число загруженных кодов.
func (s *Service) AddInventory(ctx context.Context, actor model.Principal, productID string, codes []string) (int64, error) {
	if err := requireInventoryManager(actor); err != nil {
		return 0, err
	}
	if !validation.IsValidID(productID) {
		return 0, &model.ProductNotFoundError{ProductID: productID}
	}
	if err := validation.ValidateCodes(codes); err != nil {
		return 0, err
	}

	payloads := make([][]byte, 0, len(codes))
	for _, c := range codes {
		payload, err := s.cipher.Encrypt(strings.TrimSpace(c))
		if err != nil {
			return 0, fmt.Errorf("encrypt code: %w", err)
		}
		payloads = append(payloads, payload)
	}

	return s.repo.AddInventoryUnits(ctx, productID, payloads, s.clock.Now())
}

// DeleteInventoryUnit удаляет ещё не проданный код.
func (s *Service) DeleteInventoryUnit(ctx context.Context, actor model.Principal, unitID string) error {
	if err := requireInventoryManager(actor); err != nil {
		return err
	}
	if !validation.IsValidID(unitID) {
		return model.ErrUnitNotFound
	}
	return s.repo.DeleteInventoryUnit(ctx, unitID)
}
