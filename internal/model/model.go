// Package model содержит доменные сущности магазина игровых кодов.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxLineQuantity ограничивает количество единиц товара в одной позиции заказа.
const MaxLineQuantity = 10

// Account описывает профиль покупателя или администратора.
type Account struct {
	ID           string
	Email        string
	PasswordHash []byte
	Role         Role
	Balance      decimal.Decimal
	Banned       bool
	CreatedAt    time.Time
}

// Principal описывает аутентифицированного пользователя, от имени которого выполняется операция.
type Principal struct {
	AccountID string
	Role      Role
}

// IsAdmin сообщает, обладает ли пользователь административными правами.
func (p Principal) IsAdmin() bool {
	return CanManageInventory(p.Role)
}

// Product описывает товар каталога.
type Product struct {
	ID             string
	Name           string
	Platform       string
	Price          decimal.Decimal
	Active         bool
	AvailableCount int
	CreatedAt      time.Time
}

// UnitStatus описывает состояние единицы инвентаря.
type UnitStatus string

const (
	UnitStatusAvailable UnitStatus = "available"
	UnitStatusAllocated UnitStatus = "allocated"
)

// InventoryUnit описывает один игровой код. Payload хранится только в зашифрованном виде.
type InventoryUnit struct {
	ID          string
	ProductID   string
	Payload     []byte
	Status      UnitStatus
	OrderID     *string
	AllocatedAt *time.Time
	CreatedAt   time.Time
}

// PaymentMethod описывает способ оплаты заказа.
type PaymentMethod string

const (
	PaymentMethodCredit   PaymentMethod = "credit"
	PaymentMethodExternal PaymentMethod = "external"
)

// Valid сообщает, поддерживается ли способ оплаты.
func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCredit || m == PaymentMethodExternal
}

// OrderStatus описывает статус заказа.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order описывает заказ покупателя.
type Order struct {
	ID            string
	AccountID     string
	TotalAmount   decimal.Decimal
	PaymentMethod PaymentMethod
	Status        OrderStatus
	CreatedAt     time.Time
	Lines         []OrderLine
}

// OrderLine описывает одну купленную единицу товара. UnitPrice фиксируется в момент покупки.
type OrderLine struct {
	ID          string
	OrderID     string
	ProductID   string
	ProductName string
	UnitID      string
	UnitPrice   decimal.Decimal
	Payload     []byte
}

// CartItem описывает позицию корзины, переданную клиентом.
type CartItem struct {
	ProductID string
	Quantity  int
}

// OrderView описывает заказ в виде, пригодном для выдачи клиенту.
type OrderView struct {
	ID            string
	AccountID     string
	TotalAmount   decimal.Decimal
	PaymentMethod PaymentMethod
	Status        OrderStatus
	CreatedAt     time.Time
	Items         []OrderViewItem
}

// OrderViewItem объединяет строки заказа одного товара.
type OrderViewItem struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	Codes       []string
}

// CreditRequestStatus описывает статус заявки на пополнение баланса.
type CreditRequestStatus string

const (
	CreditRequestPending  CreditRequestStatus = "pending"
	CreditRequestApproved CreditRequestStatus = "approved"
	CreditRequestRejected CreditRequestStatus = "rejected"
)

// CreditRequest описывает заявку на ручное пополнение баланса.
type CreditRequest struct {
	ID         string
	AccountID  string
	Amount     decimal.Decimal
	Note       string
	Status     CreditRequestStatus
	AdminNote  string
	ReviewedBy *string
	CreatedAt  time.Time
	ReviewedAt *time.Time
}
