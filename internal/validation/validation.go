// Package validation содержит функции валидации входных данных.
package validation

import (
	"fmt"
	"net/mail"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/gamecodes-store/internal/model"
)

// maxCodeLength ограничивает длину одного игрового кода.
const maxCodeLength = 256

// IsValidID проверяет, что идентификатор является UUID в канонической записи.
func IsValidID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// ValidateCart проверяет корзину и способ оплаты до открытия транзакции.
func ValidateCart(items []model.CartItem, method model.PaymentMethod) error {
	if len(items) == 0 {
		return &model.ValidationError{Field: "items", Reason: "must not be empty"}
	}

	for i, it := range items {
		if !IsValidID(it.ProductID) {
			return &model.ValidationError{
				Field:  fmt.Sprintf("items[%d].productId", i),
				Reason: "must be a valid identifier",
			}
		}
		if it.Quantity < 1 || it.Quantity > model.MaxLineQuantity {
			return &model.ValidationError{
				Field:  fmt.Sprintf("items[%d].quantity", i),
				Reason: fmt.Sprintf("must be between 1 and %d", model.MaxLineQuantity),
			}
		}
	}

	if !method.Valid() {
		return &model.ValidationError{Field: "paymentMethod", Reason: "must be credit or external"}
	}

	return nil
}

// MergeCart объединяет позиции одного товара и сортирует их по идентификатору товара,
// чтобы блокировки строк всегда брались в одном порядке.
func MergeCart(items []model.CartItem) []model.CartItem {
	totals := make(map[string]int, len(items))
	for _, it := range items {
		totals[strings.ToLower(it.ProductID)] += it.Quantity
	}

	merged := make([]model.CartItem, 0, len(totals))
	for id, qty := range totals {
		merged = append(merged, model.CartItem{ProductID: id, Quantity: qty})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ProductID < merged[j].ProductID })

	return merged
}

// ValidateAmount проверяет денежную сумму: положительная, не более двух знаков после запятой.
func ValidateAmount(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &model.ValidationError{Field: field, Reason: "must be positive"}
	}
	if !amount.Equal(amount.Round(2)) {
		return &model.ValidationError{Field: field, Reason: "must have at most 2 fractional digits"}
	}
	return nil
}

// ValidateEmail проверяет адрес электронной почты.
func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return &model.ValidationError{Field: "email", Reason: "must be a valid address"}
	}
	return nil
}

// ValidateCodes проверяет пакет загружаемых кодов.
func ValidateCodes(codes []string) error {
	if len(codes) == 0 {
		return &model.ValidationError{Field: "codes", Reason: "must not be empty"}
	}
	for i, c := range codes {
		c = strings.TrimSpace(c)
		if c == "" {
			return &model.ValidationError{Field: fmt.Sprintf("codes[%d]", i), Reason: "must not be blank"}
		}
		if len(c) > maxCodeLength {
			return &model.ValidationError{Field: fmt.Sprintf("codes[%d]", i), Reason: "is too long"}
		}
	}
	return nil
}
