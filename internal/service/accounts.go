package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/gamecodes-store/internal/model"
	"github.com/mmeshcher/gamecodes-store/internal/validation"
)

// maxPasswordBytes ограничение bcrypt на длину пароля.
const maxPasswordBytes = 72

var passwordCost = bcrypt.DefaultCost

// RegisterAccount регистрирует нового покупателя с нулевым балансом.
func (s *Service) RegisterAccount(ctx context.Context, email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validation.ValidateEmail(email); err != nil {
		return "", err
	}
	if password == "" {
		return "", &model.ValidationError{Field: "password", Reason: "must not be empty"}
	}
	if len(password) > maxPasswordBytes {
		return "", &model.ValidationError{Field: "password", Reason: fmt.Sprintf("must be at most %d bytes", maxPasswordBytes)}
	}

	hashed, err := hashPassword(password)
	if err != nil {
		return "", err
	}

	acc := model.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hashed,
		Role:         model.RoleCustomer,
		Balance:      decimal.Zero,
	}
	if err := s.repo.CreateAccount(ctx, acc); err != nil {
		if errors.Is(err, model.ErrAccountExists) {
			return "", model.ErrAccountExists
		}
		return "", err
	}
	return acc.ID, nil
}

// Authenticate проверяет почту и пароль и возвращает идентификатор учётной записи.
func (s *Service) Authenticate(ctx context.Context, email, password string) (string, error) {
	acc, err := s.repo.GetAccountByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, model.ErrAccountNotFound) {
			return "", model.ErrInvalidCredentials
		}
		return "", err
	}

	if !checkPassword(acc.PasswordHash, password) {
		return "", model.ErrInvalidCredentials
	}
	if acc.Banned {
		return "", model.ErrAccountBanned
	}
	return acc.ID, nil
}

// ResolvePrincipal загружает роль пользователя. Используется middleware аутентификации.
func (s *Service) ResolvePrincipal(ctx context.Context, accountID string) (model.Principal, error) {
	acc, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return model.Principal{}, err
	}
	if acc.Banned {
		return model.Principal{}, model.ErrAccountBanned
	}
	return model.Principal{AccountID: acc.ID, Role: acc.Role}, nil
}

// GetBalance возвращает кредитный баланс пользователя.
func (s *Service) GetBalance(ctx context.Context, p model.Principal) (decimal.Decimal, error) {
	return s.repo.GetBalance(ctx, p.AccountID)
}

// BanAccount блокирует учётную запись, если роль actor это позволяет.
func (s *Service) BanAccount(ctx context.Context, actor model.Principal, targetID string) error {
	if !validation.IsValidID(targetID) {
		return model.ErrAccountNotFound
	}
	if targetID == actor.AccountID {
		return model.ErrForbidden
	}

	target, err := s.repo.GetAccount(ctx, targetID)
	if err != nil {
		return err
	}
	if !model.CanBanAccount(actor.Role, target.Role) {
		return model.ErrForbidden
	}
	return s.repo.SetAccountBanned(ctx, targetID, true)
}

// hashPassword возвращает bcrypt-хеш пароля. Соль bcrypt хранит в самом хеше.
func hashPassword(password string) ([]byte, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return hashed, nil
}

func checkPassword(stored []byte, password string) bool {
	return bcrypt.CompareHashAndPassword(stored, []byte(password)) == nil
}
