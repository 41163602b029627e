package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/gamecodes-store/internal/model"
)

const accountColumns = `id, email, password_hash, role, balance, banned, created_at`

// CreateAccount создаёт учётную запись.
func (r *PostgresRepository) CreateAccount(ctx context.Context, a model.Account) error {
	_, err := r.exec(ctx,
		`INSERT INTO accounts (id, email, password_hash, role, balance) VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.Email, a.PasswordHash, string(a.Role), a.Balance,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", model.ErrAccountExists, a.Email)
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// GetAccountByEmail возвращает учётную запись по адресу почты.
func (r *PostgresRepository) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	row := r.queryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	return scanAccount(row)
}

// GetAccount возвращает учётную запись по идентификатору.
func (r *PostgresRepository) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	var acc *model.Account
	err := r.withRetry(ctx, func() error {
		var err error
		acc, err = scanAccount(r.queryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
		return err
	})
	return acc, err
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var (
		a    model.Account
		role string
	)
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &role, &a.Balance, &a.Banned, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidID(err) {
			return nil, model.ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}

	a.Role, err = model.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &a, nil
}

// GetBalance возвращает текущий баланс учётной записи.
func (r *PostgresRepository) GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.queryRow(ctx, `SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidID(err) {
			return decimal.Zero, model.ErrAccountNotFound
		}
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

// DebitBalance атомарно списывает amount с баланса на стороне БД.
// Возвращает false, если средств недостаточно; баланс при этом не меняется.
func (r *PostgresRepository) DebitBalance(ctx context.Context, accountID string, amount decimal.Decimal) (bool, error) {
	tag, err := r.exec(ctx,
		`UPDATE accounts SET balance = balance - $2 WHERE id = $1 AND balance >= $2`,
		accountID, amount,
	)
	if err != nil {
		return false, fmt.Errorf("debit balance: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CreditBalance атомарно увеличивает баланс на стороне БД.
func (r *PostgresRepository) CreditBalance(ctx context.Context, accountID string, amount decimal.Decimal) error {
	tag, err := r.exec(ctx,
		`UPDATE accounts SET balance = balance + $2 WHERE id = $1`,
		accountID, amount,
	)
	if err != nil {
		return fmt.Errorf("credit balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrAccountNotFound
	}
	return nil
}

// SetAccountBanned блокирует или разблокирует учётную запись.
func (r *PostgresRepository) SetAccountBanned(ctx context.Context, accountID string, banned bool) error {
	tag, err := r.exec(ctx, `UPDATE accounts SET banned = $2 WHERE id = $1`, accountID, banned)
	if err != nil {
		if isInvalidID(err) {
			return model.ErrAccountNotFound
		}
		return fmt.Errorf("set account banned: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrAccountNotFound
	}
	return nil
}
