package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"lms/internal/model"
)

// ProgressRepository persists per-lesson progress rows.
type ProgressRepository interface {
	ListProgress(ctx context.Context, userID, courseID string) ([]model.LessonProgress, error)
	// UpsertProgress writes the row keyed by (user, lesson) and refreshes UpdatedAt.
	UpsertProgress(ctx context.Context, lp *model.LessonProgress) error
	DeleteProgress(ctx context.Context, userID, courseID string) error
}

type progressRepo struct {
	db *sql.DB
}

func NewProgressRepo(db *sql.DB) ProgressRepository {
	return &progressRepo{db: db}
}

func (r *progressRepo) ListProgress(ctx context.Context, userID, courseID string) ([]model.LessonProgress, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, course_id, lesson_id, completed, submission_state, completed_at, updated_at
		FROM lesson_progress
		WHERE user_id = $1 AND course_id = $2
	`, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("listing progress for user %s: %w", userID, err)
	}
	defer rows.Close()

	out := []model.LessonProgress{}
	for rows.Next() {
		var lp model.LessonProgress
		if err := rows.Scan(&lp.UserID, &lp.CourseID, &lp.LessonID, &lp.Completed, &lp.SubmissionState, &lp.CompletedAt, &lp.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning progress: %w", err)
		}
		out = append(out, lp)
	}
	return out, rows.Err()
}

func (r *progressRepo) UpsertProgress(ctx context.Context, lp *model.LessonProgress) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO lesson_progress (user_id, course_id, lesson_id, completed, submission_state, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, lesson_id) DO UPDATE
		SET completed = EXCLUDED.completed,
		    submission_state = EXCLUDED.submission_state,
		    completed_at = EXCLUDED.completed_at,
		    updated_at = NOW()
		RETURNING updated_at
	`, lp.UserID, lp.CourseID, lp.LessonID, lp.Completed, lp.SubmissionState, lp.CompletedAt).Scan(&lp.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting progress for lesson %s: %w", lp.LessonID, err)
	}
	return nil
}

func (r *progressRepo) DeleteProgress(ctx context.Context, userID, courseID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM lesson_progress WHERE user_id = $1 AND course_id = $2`, userID, courseID); err != nil {
		return fmt.Errorf("deleting progress for user %s: %w", userID, err)
	}
	return nil
}

// QuizAttemptRepository stores graded quiz attempts.
type QuizAttemptRepository interface {
	CreateAttempt(ctx context.Context, a *model.QuizAttempt) error
	ListAttempts(ctx context.Context, userID, lessonID string, limit int) ([]model.QuizAttempt, error)
}

type quizAttemptRepo struct {
	db *sql.DB
}

func NewQuizAttemptRepo(db *sql.DB) QuizAttemptRepository {
	return &quizAttemptRepo{db: db}
}

func (r *quizAttemptRepo) CreateAttempt(ctx context.Context, a *model.QuizAttempt) error {
	answers, err := json.Marshal(a.Answers)
	if err != nil {
		return fmt.Errorf("encoding answers: %w", err)
	}
	return r.db.QueryRowContext(ctx, `
		INSERT INTO quiz_attempts (user_id, course_id, lesson_id, answers, score, passed)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6)
		RETURNING id, created_at
	`, a.UserID, a.CourseID, a.LessonID, string(answers), a.Score, a.Passed).Scan(&a.ID, &a.CreatedAt)
}

func (r *quizAttemptRepo) ListAttempts(ctx context.Context, userID, lessonID string, limit int) ([]model.QuizAttempt, error) {
	limit, _ = page(limit, 0)
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, course_id, lesson_id, answers, score, passed, created_at
		FROM quiz_attempts
		WHERE user_id = $1 AND lesson_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, userID, lessonID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing quiz attempts: %w", err)
	}
	defer rows.Close()

	out := []model.QuizAttempt{}
	for rows.Next() {
		var a model.QuizAttempt
		var raw []byte
		if err := rows.Scan(&a.ID, &a.UserID, &a.CourseID, &a.LessonID, &raw, &a.Score, &a.Passed, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning quiz attempt: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &a.Answers); err != nil {
				return nil, fmt.Errorf("decoding answers for attempt %s: %w", a.ID, err)
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
