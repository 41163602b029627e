package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/gamecodes-store/internal/model"
)

const creditRequestColumns = `id, account_id, amount, note, status, admin_note, reviewed_by, created_at, reviewed_at`

// CreateCreditRequest сохраняет заявку на пополнение баланса.
func (r *PostgresRepository) CreateCreditRequest(ctx context.Context, req model.CreditRequest) error {
	_, err := r.exec(ctx,
		`INSERT INTO credit_requests (id, account_id, amount, note, status, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		req.ID, req.AccountID, req.Amount, req.Note, string(req.Status), req.CreatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return model.ErrAccountNotFound
		}
		return fmt.Errorf("insert credit request: %w", err)
	}
	return nil
}

// GetCreditRequestForUpdate возвращает заявку, блокируя её строку до конца транзакции.
func (r *PostgresRepository) GetCreditRequestForUpdate(ctx context.Context, id string) (*model.CreditRequest, error) {
	row := r.queryRow(ctx, `SELECT `+creditRequestColumns+` FROM credit_requests WHERE id = $1 FOR UPDATE`, id)

	req, err := scanCreditRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidID(err) {
			return nil, model.ErrCreditRequestNotFound
		}
		return nil, fmt.Errorf("get credit request: %w", err)
	}
	return req, nil
}

// MarkCreditRequestReviewed фиксирует решение администратора по заявке.
func (r *PostgresRepository) MarkCreditRequestReviewed(ctx context.Context, id string, status model.CreditRequestStatus, adminNote, reviewerID string, at time.Time) error {
	tag, err := r.exec(ctx, `
UPDATE credit_requests
SET status = $2, admin_note = $3, reviewed_by = $4, reviewed_at = $5
WHERE id = $1 AND status = 'pending'`,
		id, string(status), adminNote, reviewerID, at,
	)
	if err != nil {
		return fmt.Errorf("update credit request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrCreditRequestReviewed
	}
	return nil
}

// ListCreditRequests возвращает заявки с указанным статусом, старые первыми.
// Пустой статус означает все заявки.
func (r *PostgresRepository) ListCreditRequests(ctx context.Context, status model.CreditRequestStatus) ([]model.CreditRequest, error) {
	var res []model.CreditRequest
	err := r.withRetry(ctx, func() error {
		rows, err := r.query(ctx,
			`SELECT `+creditRequestColumns+` FROM credit_requests WHERE $1 = '' OR status = $1 ORDER BY created_at`,
			string(status),
		)
		if err != nil {
			return fmt.Errorf("select credit requests: %w", err)
		}

		res, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.CreditRequest, error) {
			req, err := scanCreditRequest(row)
			if err != nil {
				return model.CreditRequest{}, err
			}
			return *req, nil
		})
		if err != nil {
			return fmt.Errorf("scan credit requests: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func scanCreditRequest(row pgx.Row) (*model.CreditRequest, error) {
	var (
		req    model.CreditRequest
		status string
	)
	err := row.Scan(&req.ID, &req.AccountID, &req.Amount, &req.Note, &status,
		&req.AdminNote, &req.ReviewedBy, &req.CreatedAt, &req.ReviewedAt)
	if err != nil {
		return nil, err
	}
	req.Status = model.CreditRequestStatus(status)
	return &req, nil
}
