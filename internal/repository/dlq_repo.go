package repository

import (
	"context"
	"database/sql"

	"lms/internal/model"
)

type DLQRepository interface {
	Create(ctx context.Context, message *model.DeadLetterMessage) error
}

type dlqRepository struct {
	db *sql.DB
}

func NewDLQRepository(db *sql.DB) DLQRepository {
	return &dlqRepository{db: db}
}

func (r *dlqRepository) Create(ctx context.Context, message *model.DeadLetterMessage) error {
	query := `
        INSERT INTO dead_letter_messages (subscription_name, message_id, payload, attributes, status)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (message_id) DO NOTHING
        RETURNING id, created_at, updated_at
    `
	err := r.db.QueryRowContext(
		ctx,
		query,
		message.SubscriptionName,
		message.MessageID,
		message.Payload,
		message.Attributes,
		message.Status,
	).Scan(&message.ID, &message.CreatedAt, &message.UpdatedAt)
	if err == sql.ErrNoRows {
		// Pub/Sub redelivered a message that is already stored.
		return nil
	}
	return err
}
