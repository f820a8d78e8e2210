package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"lms/internal/model"
)

// TransactionRepository stores the payments history.
type TransactionRepository interface {
	Create(ctx context.Context, t *model.Transaction) error
	GetByID(ctx context.Context, id string) (*model.Transaction, error)
	SetProviderRef(ctx context.Context, id, ref string) error
	// CompletePurchase marks a pending transaction succeeded and enrolls the buyer
	// in one transaction. It returns nil if the transaction was not pending.
	CompletePurchase(ctx context.Context, id string) (*model.Transaction, error)
	// MarkFailed moves a pending transaction to failed; other states are left alone.
	MarkFailed(ctx context.Context, id string) error
	List(ctx context.Context, f model.TransactionFilter) ([]model.Transaction, int, error)
}

type transactionRepo struct {
	db *sql.DB
}

func NewTransactionRepo(db *sql.DB) TransactionRepository {
	return &transactionRepo{db: db}
}

const transactionColumns = `id, user_id, course_id, amount_cents, currency, status, provider, COALESCE(provider_ref, ''), created_at, updated_at`

func scanTransaction(row interface{ Scan(...any) error }, t *model.Transaction, extra ...any) error {
	dest := []any{&t.ID, &t.UserID, &t.CourseID, &t.AmountCents, &t.Currency, &t.Status, &t.Provider, &t.ProviderRef, &t.CreatedAt, &t.UpdatedAt}
	return row.Scan(append(dest, extra...)...)
}

func (r *transactionRepo) Create(ctx context.Context, t *model.Transaction) error {
	return scanTransaction(r.db.QueryRowContext(ctx, `
		INSERT INTO transactions (user_id, course_id, amount_cents, currency, status, provider)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+transactionColumns,
		t.UserID, t.CourseID, t.AmountCents, t.Currency, t.Status, t.Provider), t)
}

func (r *transactionRepo) GetByID(ctx context.Context, id string) (*model.Transaction, error) {
	var t model.Transaction
	err := scanTransaction(r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id), &t)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting transaction %s: %w", id, err)
	}
	return &t, nil
}

func (r *transactionRepo) SetProviderRef(ctx context.Context, id, ref string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE transactions SET provider_ref = $1, updated_at = NOW() WHERE id = $2`, ref, id)
	return err
}

func (r *transactionRepo) CompletePurchase(ctx context.Context, id string) (*model.Transaction, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("starting transaction for purchase %s: %w", id, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var t model.Transaction
	err = scanTransaction(tx.QueryRowContext(ctx, `
		UPDATE transactions
		SET status = 'succeeded', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+transactionColumns, id), &t)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("marking purchase %s succeeded: %w", id, err)
	}

	const enrollQ = `
		INSERT INTO enrollments (user_id, course_id, source)
		VALUES ($1, $2, 'purchase')
		ON CONFLICT (user_id, course_id) DO NOTHING
	`
	if _, err := tx.ExecContext(ctx, enrollQ, t.UserID, t.CourseID); err != nil {
		return nil, fmt.Errorf("enrolling buyer for purchase %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing purchase %s: %w", id, err)
	}
	return &t, nil
}

func (r *transactionRepo) MarkFailed(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE transactions SET status = 'failed', updated_at = NOW() WHERE id = $1 AND status = 'pending'`, id)
	return err
}

func (r *transactionRepo) List(ctx context.Context, f model.TransactionFilter) ([]model.Transaction, int, error) {
	limit, offset := page(f.Limit, f.Offset)
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`, COUNT(*) OVER()
		FROM transactions
		WHERE ($1 = '' OR user_id::text = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, f.UserID, f.Status, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	out := []model.Transaction{}
	total := 0
	for rows.Next() {
		var t model.Transaction
		if err := scanTransaction(rows, &t, &total); err != nil {
			return nil, 0, fmt.Errorf("scanning transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}
