package model

import "fmt"

// Role описывает роль учётной записи.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// ParseRole преобразует строку из хранилища в Role.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleCustomer, RoleAdmin, RoleSuperAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

func (r Role) rank() int {
	switch r {
	case RoleCustomer:
		return 1
	case RoleAdmin:
		return 2
	case RoleSuperAdmin:
		return 3
	default:
		return 0
	}
}

// CanManageInventory сообщает, может ли роль управлять товарами, кодами и заявками на пополнение.
func CanManageInventory(r Role) bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// CanBanAccount сообщает, может ли actor заблокировать учётную запись с ролью target.
// Блокировать можно только учётные записи строго более низкого ранга.
func CanBanAccount(actor, target Role) bool {
	if !CanManageInventory(actor) || target.rank() == 0 {
		return false
	}
	return actor.rank() > target.rank()
}
