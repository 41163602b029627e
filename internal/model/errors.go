package model

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Ошибки, которые можно проверять через errors.Is.
var (
	ErrValidation            = errors.New("validation error")
	ErrProductNotFound       = errors.New("product not found")
	ErrProductInactive       = errors.New("product inactive")
	ErrProductHasSales       = errors.New("product has sold codes")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrInsufficientCredit    = errors.New("insufficient credit")
	ErrAllocationRaceLost    = errors.New("allocation race lost")
	ErrTimeout               = errors.New("transaction timeout")
	ErrOrderNotFound         = errors.New("order not found")
	ErrAccountNotFound       = errors.New("account not found")
	ErrAccountExists         = errors.New("account already exists")
	ErrAccountBanned         = errors.New("account banned")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrForbidden             = errors.New("forbidden")
	ErrUnitNotFound          = errors.New("inventory unit not found")
	ErrUnitAllocated         = errors.New("inventory unit already allocated")
	ErrCreditRequestNotFound = errors.New("credit request not found")
	ErrCreditRequestReviewed = errors.New("credit request already reviewed")
	ErrRequestInProgress     = errors.New("request with this idempotency key is in progress")
	ErrIdempotencyKeyReused  = errors.New("idempotency key was already used for a different request")
)

// ValidationError сообщает о некорректном поле входных данных.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ProductNotFoundError сообщает об отсутствии товара.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

func (e *ProductNotFoundError) Is(target error) bool { return target == ErrProductNotFound }

// ProductInactiveError сообщает о попытке купить снятый с продажи товар.
type ProductInactiveError struct {
	ProductID string
}

func (e *ProductInactiveError) Error() string {
	return fmt.Sprintf("product %s is not available for sale", e.ProductID)
}

func (e *ProductInactiveError) Is(target error) bool { return target == ErrProductInactive }

// InsufficientStockError сообщает о нехватке свободных кодов.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// InsufficientCreditError сообщает о нехватке средств на балансе.
type InsufficientCreditError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientCreditError) Error() string {
	return fmt.Sprintf("insufficient credit: required %s, available %s",
		e.Required.StringFixed(2), e.Available.StringFixed(2))
}

func (e *InsufficientCreditError) Is(target error) bool { return target == ErrInsufficientCredit }

// AllocationRaceLostError сообщает, что конкурирующая транзакция заняла коды раньше.
// Запрос можно повторить.
type AllocationRaceLostError struct {
	ProductID string
}

func (e *AllocationRaceLostError) Error() string {
	if e.ProductID == "" {
		return "inventory was taken by a concurrent order, retry the request"
	}
	return fmt.Sprintf("inventory for product %s was taken by a concurrent order, retry the request", e.ProductID)
}

func (e *AllocationRaceLostError) Is(target error) bool { return target == ErrAllocationRaceLost }
