package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/gamecodes-store/internal/model"
	"github.com/mmeshcher/gamecodes-store/internal/validation"
)

const maxNoteLength = 1000

// SubmitCreditRequest создаёт заявку на пополнение баланса.
func (s *Service) SubmitCreditRequest(ctx context.Context, p model.Principal, amount decimal.Decimal, note string) (*model.CreditRequest, error) {
	if err := validation.ValidateAmount("amount", amount); err != nil {
		return nil, err
	}
	note = strings.TrimSpace(note)
	if len(note) > maxNoteLength {
		return nil, &model.ValidationError{Field: "note", Reason: "is too long"}
	}

	req := model.CreditRequest{
		ID:        uuid.NewString(),
		AccountID: p.AccountID,
		Amount:    amount,
		Note:      note,
		Status:    model.CreditRequestPending,
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.CreateCreditRequest(ctx, req); err != nil {
		return nil, err
	}
	return &req, nil
}

// ReviewCreditRequest одобряет или отклоняет заявку. При одобрении баланс
// увеличивается атомарно на стороне БД в той же транзакции, что и смена статуса заявки.
func (s *Service) ReviewCreditRequest(ctx context.Context, actor model.Principal, id string, approve bool, adminNote string) (*model.CreditRequest, error) {
	if err := requireInventoryManager(actor); err != nil {
		return nil, err
	}
	if !validation.IsValidID(id) {
		return nil, model.ErrCreditRequestNotFound
	}
	adminNote = strings.TrimSpace(adminNote)
	if len(adminNote) > maxNoteLength {
		return nil, &model.ValidationError{Field: "adminNote", Reason: "is too long"}
	}

	now := s.clock.Now()
	var reviewed *model.CreditRequest

	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		req, err := s.repo.GetCreditRequestForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != model.CreditRequestPending {
			return model.ErrCreditRequestReviewed
		}

		status := model.CreditRequestRejected
		if approve {
			status = model.CreditRequestApproved
		}

		if err := s.repo.MarkCreditRequestReviewed(ctx, id, status, adminNote, actor.AccountID, now); err != nil {
			return err
		}
		if approve {
			if err := s.repo.CreditBalance(ctx, req.AccountID, req.Amount); err != nil {
				return err
			}
		}

		req.Status = status
		req.AdminNote = adminNote
		req.ReviewedBy = &actor.AccountID
		req.ReviewedAt = &now
		reviewed = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reviewed, nil
}

// ListCreditRequests возвращает заявки с указанным статусом.
func (s *Service) ListCreditRequests(ctx context.Context, actor model.Principal, status model.CreditRequestStatus) ([]model.CreditRequest, error) {
	if err := requireInventoryManager(actor); err != nil {
		return nil, err
	}
	switch status {
	case "", model.CreditRequestPending, model.CreditRequestApproved, model.CreditRequestRejected:
	default:
		return nil, &model.ValidationError{Field: "status", Reason: "unknown status"}
	}
	return s.repo.ListCreditRequests(ctx, status)
}
