package service

import (
	"context"

	"lms/internal/model"
	"lms/internal/repository"
)

// TransactionService exposes payments history.
type TransactionService interface {
	List(ctx context.Context, f model.TransactionFilter) ([]model.Transaction, int, error)
	// Get returns a transaction to its owner, or to anyone when userID is empty.
	Get(ctx context.Context, userID, id string) (*model.Transaction, error)
}

type transactionService struct {
	repo repository.TransactionRepository
}

func NewTransactionService(repo repository.TransactionRepository) TransactionService {
	return &transactionService{repo: repo}
}

func (s *transactionService) List(ctx context.Context, f model.TransactionFilter) ([]model.Transaction, int, error) {
	return s.repo.List(ctx, f)
}

func (s *transactionService) Get(ctx context.Context, userID, id string) (*model.Transaction, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil || (userID != "" && t.UserID != userID) {
		return nil, ErrTransactionNotFound
	}
	return t, nil
}
