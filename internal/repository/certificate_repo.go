package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"lms/internal/model"
)

// CertificateRepository stores issued certificates, one per (user, course).
type CertificateRepository interface {
	// CreateIfAbsent inserts c unless the user already holds a certificate for the
	// course. It returns the stored certificate and whether it was created now.
	CreateIfAbsent(ctx context.Context, c *model.Certificate) (*model.Certificate, bool, error)
	GetByUserCourse(ctx context.Context, userID, courseID string) (*model.Certificate, error)
	GetBySerial(ctx context.Context, serial string) (*model.Certificate, error)
	ListByUser(ctx context.Context, userID string) ([]model.Certificate, error)
}

type certificateRepo struct {
	db *sql.DB
}

func NewCertificateRepo(db *sql.DB) CertificateRepository {
	return &certificateRepo{db: db}
}

const certificateColumns = `id, user_id, course_id, serial, verification_code, issued_at`

func scanCertificate(row interface{ Scan(...any) error }, c *model.Certificate) error {
	return row.Scan(&c.ID, &c.UserID, &c.CourseID, &c.Serial, &c.VerificationCode, &c.IssuedAt)
}

func (r *certificateRepo) CreateIfAbsent(ctx context.Context, c *model.Certificate) (*model.Certificate, bool, error) {
	var stored model.Certificate
	err := scanCertificate(r.db.QueryRowContext(ctx, `
		INSERT INTO certificates (user_id, course_id, serial, verification_code, issued_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, course_id) DO NOTHING
		RETURNING `+certificateColumns,
		c.UserID, c.CourseID, c.Serial, c.VerificationCode, c.IssuedAt), &stored)
	if err == nil {
		return &stored, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("creating certificate: %w", err)
	}
	existing, err := r.GetByUserCourse(ctx, c.UserID, c.CourseID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *certificateRepo) GetByUserCourse(ctx context.Context, userID, courseID string) (*model.Certificate, error) {
	return r.getOne(ctx, `SELECT `+certificateColumns+` FROM certificates WHERE user_id = $1 AND course_id = $2`, userID, courseID)
}

func (r *certificateRepo) GetBySerial(ctx context.Context, serial string) (*model.Certificate, error) {
	return r.getOne(ctx, `SELECT `+certificateColumns+` FROM certificates WHERE serial = $1`, serial)
}

func (r *certificateRepo) getOne(ctx context.Context, query string, args ...any) (*model.Certificate, error) {
	var c model.Certificate
	if err := scanCertificate(r.db.QueryRowContext(ctx, query, args...), &c); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting certificate: %w", err)
	}
	return &c, nil
}

func (r *certificateRepo) ListByUser(ctx context.Context, userID string) ([]model.Certificate, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+certificateColumns+` FROM certificates WHERE user_id = $1 ORDER BY issued_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing certificates: %w", err)
	}
	defer rows.Close()

	out := []model.Certificate{}
	for rows.Next() {
		var c model.Certificate
		if err := scanCertificate(rows, &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
