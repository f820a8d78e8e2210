package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"lms/internal/model"

	"github.com/rs/zerolog"
)

// CatalogReader is the read side of the catalog, shared by Postgres and the local store.
type CatalogReader interface {
	// ListCourses returns courses without their modules plus the total match count.
	ListCourses(ctx context.Context, f model.CourseFilter) ([]model.Course, int, error)
	GetCourseByID(ctx context.Context, courseID string) (*model.Course, error)
	// GetCourseTree returns the course with modules and lessons populated.
	GetCourseTree(ctx context.Context, courseID string) (*model.Course, error)
}

// CourseRepository defines the interface for authoring catalog data
type CourseRepository interface {
	CatalogReader
	CreateCourse(ctx context.Context, c *model.Course) error
	UpdateCourse(ctx context.Context, c *model.Course) error
	DeleteCourse(ctx context.Context, courseID string) error

	GetModuleByID(ctx context.Context, moduleID string) (*model.Module, error)
	CreateModule(ctx context.Context, m *model.Module) error
	UpdateModule(ctx context.Context, m *model.Module) error
	DeleteModule(ctx context.Context, moduleID string) error

	GetLessonByID(ctx context.Context, lessonID string) (*model.Lesson, error)
	CreateLesson(ctx context.Context, l *model.Lesson) error
	UpdateLesson(ctx context.Context, l *model.Lesson) error
	DeleteLesson(ctx context.Context, lessonID string) error
}

type courseRepo struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewCourseRepo creates a new CourseRepository
func NewCourseRepo(db *sql.DB, logger zerolog.Logger) CourseRepository {
	return &courseRepo{db: db, logger: logger.With().Str("repository", "CourseRepository").Logger()}
}

const courseColumns = `id, name, description, price_cents, currency, state, COALESCE(cover_path, ''), COALESCE(created_by::text, ''), created_at, updated_at`

func scanCourse(row interface{ Scan(...any) error }, c *model.Course, extra ...any) error {
	dest := []any{&c.ID, &c.Name, &c.Description, &c.PriceCents, &c.Currency, &c.State, &c.CoverPath, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt}
	return row.Scan(append(dest, extra...)...)
}

// ListCourses retrieves a page of courses filtered by state and a name/description search
func (r *courseRepo) ListCourses(ctx context.Context, f model.CourseFilter) ([]model.Course, int, error) {
	limit, offset := page(f.Limit, f.Offset)
	query := `
		SELECT ` + courseColumns + `, COUNT(*) OVER()
		FROM courses
		WHERE ($1 = '' OR state = $1)
		  AND ($2 = '' OR name ILIKE '%' || $2 || '%' OR description ILIKE '%' || $2 || '%')
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.QueryContext(ctx, query, string(f.State), f.Search, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing courses: %w", err)
	}
	defer rows.Close()

	courses := []model.Course{}
	total := 0
	for rows.Next() {
		var c model.Course
		if err := scanCourse(rows, &c, &total); err != nil {
			return nil, 0, fmt.Errorf("scanning course: %w", err)
		}
		courses = append(courses, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return courses, total, nil
}

// GetCourseByID retrieves a course by its ID
func (r *courseRepo) GetCourseByID(ctx context.Context, courseID string) (*model.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses WHERE id = $1`
	var c model.Course
	if err := scanCourse(r.db.QueryRowContext(ctx, query, courseID), &c); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting course %s: %w", courseID, err)
	}
	return &c, nil
}

// GetCourseTree loads the course with its modules and lessons in order
func (r *courseRepo) GetCourseTree(ctx context.Context, courseID string) (*model.Course, error) {
	c, err := r.GetCourseByID(ctx, courseID)
	if err != nil || c == nil {
		return c, err
	}

	modRows, err := r.db.QueryContext(ctx, `
		SELECT id, course_id, name, order_index, created_at, updated_at
		FROM modules
		WHERE course_id = $1
		ORDER BY order_index ASC
	`, courseID)
	if err != nil {
		return nil, fmt.Errorf("listing modules for course %s: %w", courseID, err)
	}
	defer modRows.Close()

	index := map[string]int{}
	for modRows.Next() {
		var m model.Module
		if err := modRows.Scan(&m.ID, &m.CourseID, &m.Name, &m.OrderIndex, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning module: %w", err)
		}
		index[m.ID] = len(c.Modules)
		c.Modules = append(c.Modules, m)
	}
	if err := modRows.Err(); err != nil {
		return nil, err
	}

	lessonRows, err := r.db.QueryContext(ctx, `
		SELECT l.id, l.module_id, l.title, l.type, l.order_index, l.content, l.created_at, l.updated_at
		FROM lessons l
		JOIN modules m ON m.id = l.module_id
		WHERE m.course_id = $1
		ORDER BY m.order_index ASC, l.order_index ASC
	`, courseID)
	if err != nil {
		return nil, fmt.Errorf("listing lessons for course %s: %w", courseID, err)
	}
	defer lessonRows.Close()

	for lessonRows.Next() {
		var l model.Lesson
		if err := scanLesson(lessonRows, &l); err != nil {
			return nil, fmt.Errorf("scanning lesson: %w", err)
		}
		i, ok := index[l.ModuleID]
		if !ok {
			r.logger.Warn().Str("lesson_id", l.ID).Str("module_id", l.ModuleID).Msg("Lesson references unknown module; skipping")
			continue
		}
		c.Modules[i].Lessons = append(c.Modules[i].Lessons, l)
	}
	if err := lessonRows.Err(); err != nil {
		return nil, err
	}
	return c, nil
}

// CreateCourse inserts a new course and returns the created record
func (r *courseRepo) CreateCourse(ctx context.Context, c *model.Course) error {
	query := `
		INSERT INTO courses (name, description, price_cents, currency, state, created_by)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::uuid)
		RETURNING ` + courseColumns
	return scanCourse(r.db.QueryRowContext(ctx, query, c.Name, c.Description, c.PriceCents, c.Currency, c.State, c.CreatedBy), c)
}

// UpdateCourse updates an existing course record and returns updated timestamps
func (r *courseRepo) UpdateCourse(ctx context.Context, c *model.Course) error {
	query := `
		UPDATE courses
		SET name = $1, description = $2, price_cents = $3, currency = $4, state = $5, cover_path = NULLIF($6, ''), updated_at = NOW()
		WHERE id = $7
		RETURNING ` + courseColumns
	err := scanCourse(r.db.QueryRowContext(ctx, query, c.Name, c.Description, c.PriceCents, c.Currency, c.State, c.CoverPath, c.ID), c)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// DeleteCourse removes a course; modules and lessons cascade
func (r *courseRepo) DeleteCourse(ctx context.Context, courseID string) error {
	return r.execOne(ctx, `DELETE FROM courses WHERE id = $1`, courseID)
}

func (r *courseRepo) GetModuleByID(ctx context.Context, moduleID string) (*model.Module, error) {
	var m model.Module
	err := r.db.QueryRowContext(ctx, `
		SELECT id, course_id, name, order_index, created_at, updated_at
		FROM modules WHERE id = $1
	`, moduleID).Scan(&m.ID, &m.CourseID, &m.Name, &m.OrderIndex, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting module %s: %w", moduleID, err)
	}
	return &m, nil
}

func (r *courseRepo) CreateModule(ctx context.Context, m *model.Module) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO modules (course_id, name, order_index)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`, m.CourseID, m.Name, m.OrderIndex).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	return mapOrderConflict(err)
}

func (r *courseRepo) UpdateModule(ctx context.Context, m *model.Module) error {
	err := r.db.QueryRowContext(ctx, `
		UPDATE modules SET name = $1, order_index = $2, updated_at = NOW()
		WHERE id = $3
		RETURNING course_id, created_at, updated_at
	`, m.Name, m.OrderIndex, m.ID).Scan(&m.CourseID, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return mapOrderConflict(err)
}

func (r *courseRepo) DeleteModule(ctx context.Context, moduleID string) error {
	return r.execOne(ctx, `DELETE FROM modules WHERE id = $1`, moduleID)
}

func scanLesson(row interface{ Scan(...any) error }, l *model.Lesson) error {
	return row.Scan(&l.ID, &l.ModuleID, &l.Title, &l.Type, &l.OrderIndex, &l.Content, &l.CreatedAt, &l.UpdatedAt)
}

func (r *courseRepo) GetLessonByID(ctx context.Context, lessonID string) (*model.Lesson, error) {
	var l model.Lesson
	err := scanLesson(r.db.QueryRowContext(ctx, `
		SELECT id, module_id, title, type, order_index, content, created_at, updated_at
		FROM lessons WHERE id = $1
	`, lessonID), &l)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting lesson %s: %w", lessonID, err)
	}
	return &l, nil
}

func (r *courseRepo) CreateLesson(ctx context.Context, l *model.Lesson) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO lessons (module_id, title, type, order_index, content)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, l.ModuleID, l.Title, l.Type, l.OrderIndex, l.Content).Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt)
	return mapOrderConflict(err)
}

func (r *courseRepo) UpdateLesson(ctx context.Context, l *model.Lesson) error {
	err := r.db.QueryRowContext(ctx, `
		UPDATE lessons SET title = $1, type = $2, order_index = $3, content = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING module_id, created_at, updated_at
	`, l.Title, l.Type, l.OrderIndex, l.Content, l.ID).Scan(&l.ModuleID, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return mapOrderConflict(err)
}

func (r *courseRepo) DeleteLesson(ctx context.Context, lessonID string) error {
	return r.execOne(ctx, `DELETE FROM lessons WHERE id = $1`, lessonID)
}

func (r *courseRepo) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
