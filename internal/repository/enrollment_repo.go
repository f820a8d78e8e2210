package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"lms/internal/model"
)

// EnrollmentRepository tracks which users may access which courses.
type EnrollmentRepository interface {
	// Create is idempotent per (user, course); an existing enrollment keeps its source.
	Create(ctx context.Context, e *model.Enrollment) error
	Exists(ctx context.Context, userID, courseID string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]model.Enrollment, error)
}

type enrollmentRepo struct {
	db *sql.DB
}

func NewEnrollmentRepo(db *sql.DB) EnrollmentRepository {
	return &enrollmentRepo{db: db}
}

func (r *enrollmentRepo) Create(ctx context.Context, e *model.Enrollment) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO enrollments (user_id, course_id, source)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, course_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING source, created_at
	`, e.UserID, e.CourseID, e.Source).Scan(&e.Source, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating enrollment: %w", err)
	}
	return nil
}

func (r *enrollmentRepo) Exists(ctx context.Context, userID, courseID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM enrollments WHERE user_id = $1 AND course_id = $2`, userID, courseID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking enrollment: %w", err)
	}
	return true, nil
}

func (r *enrollmentRepo) ListByUser(ctx context.Context, userID string) ([]model.Enrollment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, course_id, source, created_at
		FROM enrollments
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing enrollments: %w", err)
	}
	defer rows.Close()

	out := []model.Enrollment{}
	for rows.Next() {
		var e model.Enrollment
		if err := rows.Scan(&e.UserID, &e.CourseID, &e.Source, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
