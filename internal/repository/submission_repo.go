package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lms/internal/model"
)

// SubmissionRepository persists submission artifacts and their review state.
type SubmissionRepository interface {
	Create(ctx context.Context, s *model.Submission) error
	GetByID(ctx context.Context, id string) (*model.Submission, error)
	// GetLatestForLesson returns the newest confirmed submission, ignoring unconfirmed uploads.
	GetLatestForLesson(ctx context.Context, userID, lessonID string) (*model.Submission, error)
	Update(ctx context.Context, s *model.Submission) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f model.SubmissionFilter) ([]model.Submission, int, error)
	// ListStaleUploads returns uploads never confirmed before the cutoff.
	ListStaleUploads(ctx context.Context, before time.Time, limit int) ([]model.Submission, error)
}

type submissionRepo struct {
	db *sql.DB
}

func NewSubmissionRepo(db *sql.DB) SubmissionRepository {
	return &submissionRepo{db: db}
}

const submissionColumns = `id, user_id, course_id, lesson_id, storage_path, filename, content_type, state, feedback, reviewer_id, reviewed_at, created_at, updated_at`

func scanSubmission(row interface{ Scan(...any) error }, s *model.Submission, extra ...any) error {
	dest := []any{&s.ID, &s.UserID, &s.CourseID, &s.LessonID, &s.StoragePath, &s.Filename, &s.ContentType, &s.State, &s.Feedback, &s.ReviewerID, &s.ReviewedAt, &s.CreatedAt, &s.UpdatedAt}
	return row.Scan(append(dest, extra...)...)
}

func (r *submissionRepo) Create(ctx context.Context, s *model.Submission) error {
	err := scanSubmission(r.db.QueryRowContext(ctx, `
		INSERT INTO submissions (id, user_id, course_id, lesson_id, storage_path, filename, content_type, state)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+submissionColumns,
		s.ID, s.UserID, s.CourseID, s.LessonID, s.StoragePath, s.Filename, s.ContentType, s.State), s)
	if err != nil {
		return fmt.Errorf("creating submission: %w", err)
	}
	return nil
}

func (r *submissionRepo) GetByID(ctx context.Context, id string) (*model.Submission, error) {
	var s model.Submission
	err := scanSubmission(r.db.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id), &s)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting submission %s: %w", id, err)
	}
	return &s, nil
}

func (r *submissionRepo) GetLatestForLesson(ctx context.Context, userID, lessonID string) (*model.Submission, error) {
	var s model.Submission
	err := scanSubmission(r.db.QueryRowContext(ctx, `
		SELECT `+submissionColumns+`
		FROM submissions
		WHERE user_id = $1 AND lesson_id = $2 AND state <> 'uploading'
		ORDER BY created_at DESC
		LIMIT 1
	`, userID, lessonID), &s)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting latest submission for lesson %s: %w", lessonID, err)
	}
	return &s, nil
}

func (r *submissionRepo) Update(ctx context.Context, s *model.Submission) error {
	err := r.db.QueryRowContext(ctx, `
		UPDATE submissions
		SET storage_path = $1, content_type = $2, state = $3, feedback = $4, reviewer_id = $5, reviewed_at = $6, updated_at = NOW()
		WHERE id = $7
		RETURNING updated_at
	`, s.StoragePath, s.ContentType, s.State, s.Feedback, s.ReviewerID, s.ReviewedAt, s.ID).Scan(&s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *submissionRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM submissions WHERE id = $1`, id)
	return err
}

func (r *submissionRepo) List(ctx context.Context, f model.SubmissionFilter) ([]model.Submission, int, error) {
	limit, offset := page(f.Limit, f.Offset)
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+submissionColumns+`, COUNT(*) OVER()
		FROM submissions
		WHERE state <> 'uploading'
		  AND ($1 = '' OR state = $1)
		  AND ($2 = '' OR course_id::text = $2)
		ORDER BY created_at ASC
		LIMIT $3 OFFSET $4
	`, string(f.State), f.CourseID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing submissions: %w", err)
	}
	defer rows.Close()

	out := []model.Submission{}
	total := 0
	for rows.Next() {
		var s model.Submission
		if err := scanSubmission(rows, &s, &total); err != nil {
			return nil, 0, fmt.Errorf("scanning submission: %w", err)
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func (r *submissionRepo) ListStaleUploads(ctx context.Context, before time.Time, limit int) ([]model.Submission, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+submissionColumns+`
		FROM submissions
		WHERE state = 'uploading' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("listing stale uploads: %w", err)
	}
	defer rows.Close()

	out := []model.Submission{}
	for rows.Next() {
		var s model.Submission
		if err := scanSubmission(rows, &s); err != nil {
			return nil, fmt.Errorf("scanning stale upload: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
