package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"lms/internal/model"
)

type UserRepository interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByStripeCustomerID(ctx context.Context, customerID string) (*model.User, error)
	UpdateStripeCustomerID(ctx context.Context, userID, customerID string) error
	UpdateProfile(ctx context.Context, u *model.User) error
	ListUsers(ctx context.Context, f model.UserFilter) ([]model.User, int, error)
	UpdateRole(ctx context.Context, userID, role string) error
	SetBanned(ctx context.Context, userID string, banned bool) error
}

type userRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) UserRepository {
	return &userRepo{db: db}
}

const userColumns = `user_id, name, email, avatar_url, role, banned, stripe_customer_id, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }, u *model.User, extra ...any) error {
	dest := []any{&u.UserID, &u.Name, &u.Email, &u.AvatarURL, &u.Role, &u.Banned, &u.StripeCustomerID, &u.CreatedAt, &u.UpdatedAt}
	return row.Scan(append(dest, extra...)...)
}

func (r *userRepo) CreateUser(ctx context.Context, u *model.User) error {
	if u.Role == "" {
		u.Role = model.RoleStudent
	}
	query := `INSERT INTO user_profiles (user_id, name, email, avatar_url, role)
              VALUES ($1, $2, $3, $4, $5)
              ON CONFLICT (user_id) DO UPDATE SET email = EXCLUDED.email
              RETURNING ` + userColumns
	return scanUser(r.db.QueryRowContext(ctx, query, u.UserID, u.Name, u.Email, u.AvatarURL, u.Role), u)
}

func (r *userRepo) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM user_profiles WHERE user_id = $1`, id)
}

func (r *userRepo) GetUserByStripeCustomerID(ctx context.Context, customerID string) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM user_profiles WHERE stripe_customer_id = $1`, customerID)
}

func (r *userRepo) getOne(ctx context.Context, query string, arg string) (*model.User, error) {
	var u model.User
	if err := scanUser(r.db.QueryRowContext(ctx, query, arg), &u); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) UpdateStripeCustomerID(ctx context.Context, userID, customerID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE user_profiles SET stripe_customer_id = $1, updated_at = NOW() WHERE user_id = $2`, customerID, userID)
	return err
}

func (r *userRepo) UpdateProfile(ctx context.Context, u *model.User) error {
	err := scanUser(r.db.QueryRowContext(ctx, `
		UPDATE user_profiles SET name = $1, avatar_url = $2, updated_at = NOW()
		WHERE user_id = $3
		RETURNING `+userColumns, u.Name, u.AvatarURL, u.UserID), u)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *userRepo) ListUsers(ctx context.Context, f model.UserFilter) ([]model.User, int, error) {
	limit, offset := page(f.Limit, f.Offset)
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+userColumns+`, COUNT(*) OVER()
		FROM user_profiles
		WHERE ($1 = '' OR role = $1)
		  AND ($2 = '' OR name ILIKE '%' || $2 || '%' OR email ILIKE '%' || $2 || '%')
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, f.Role, f.Search, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	out := []model.User{}
	total := 0
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u, &total); err != nil {
			return nil, 0, fmt.Errorf("scanning user: %w", err)
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

func (r *userRepo) UpdateRole(ctx context.Context, userID, role string) error {
	return r.updateOne(ctx, `UPDATE user_profiles SET role = $1, updated_at = NOW() WHERE user_id = $2`, role, userID)
}

func (r *userRepo) SetBanned(ctx context.Context, userID string, banned bool) error {
	return r.updateOne(ctx, `UPDATE user_profiles SET banned = $1, updated_at = NOW() WHERE user_id = $2`, banned, userID)
}

func (r *userRepo) updateOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
