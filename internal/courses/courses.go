// Package courses is the catalog collaborator: published listings, creator
// CRUD, material metadata and access checks. The order pipeline reads prices
// and publication state from here but never writes catalog data.
package courses

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound  = errors.New("course not found")
	ErrForbidden = errors.New("not the course creator")
)

type Course struct {
	ID            int64     `json:"id"`
	CategoryID    int64     `json:"category_id"`
	CreatorUserID int64     `json:"creator_user_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	PriceCents    int64     `json:"price_cents"`
	IsPublished   bool      `json:"is_published"`
	CreatedAt     time.Time `json:"created_at"`
}

type Asset struct {
	ID        int64     `json:"id"`
	CourseID  int64     `json:"course_id"`
	Title     string    `json:"title"`
	FilePath  string    `json:"-"`
	MimeType  string    `json:"mime_type,omitempty"`
	FileSize  int64     `json:"file_size"`
	CreatedAt time.Time `json:"created_at"`
}

type NewCourse struct {
	CategoryID  int64
	Title       string
	Description string
	PriceCents  int64
	IsPublished bool
}

type Conf struct {
	pool *pgxpool.Pool
}

func NewConf(pool *pgxpool.Pool) (*Conf, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &Conf{pool: pool}, nil
}

const courseColumns = `id, category_id, creator_user_id, title, description, price_cents, is_published, created_at`

func scanCourse(row pgx.Row) (Course, error) {
	var cr Course
	err := row.Scan(&cr.ID, &cr.CategoryID, &cr.CreatorUserID, &cr.Title, &cr.Description,
		&cr.PriceCents, &cr.IsPublished, &cr.CreatedAt)
	return cr, err
}

// ListPublished returns the storefront catalog, newest first.
func (c *Conf) ListPublished(ctx context.Context) ([]Course, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT `+courseColumns+`
		FROM courses
		WHERE is_published = TRUE
		ORDER BY id DESC
		LIMIT 200
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query courses: %w", err)
	}
	defer rows.Close()
	return collectCourses(rows)
}

func (c *Conf) GetCourse(ctx context.Context, id int64) (Course, error) {
	cr, err := scanCourse(c.pool.QueryRow(ctx, `
		SELECT `+courseColumns+` FROM courses WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Course{}, ErrNotFound
		}
		return Course{}, fmt.Errorf("failed to query course: %w", err)
	}
	return cr, nil
}

// CreateCourse inserts a course owned by the calling creator.
func (c *Conf) CreateCourse(ctx context.Context, creatorID int64, in NewCourse) (Course, error) {
	cr, err := scanCourse(c.pool.QueryRow(ctx, `
		INSERT INTO courses (category_id, creator_user_id, title, description, price_cents, is_published)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+courseColumns+`
	`, in.CategoryID, creatorID, strings.TrimSpace(in.Title), in.Description, in.PriceCents, in.IsPublished))
	if err != nil {
		return Course{}, fmt.Errorf("failed to insert course: %w", err)
	}
	return cr, nil
}

func (c *Conf) ListByCreator(ctx context.Context, creatorID int64) ([]Course, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT `+courseColumns+`
		FROM courses
		WHERE creator_user_id = $1
		ORDER BY id DESC
	`, creatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query creator courses: %w", err)
	}
	defer rows.Close()
	return collectCourses(rows)
}

func collectCourses(rows pgx.Rows) ([]Course, error) {
	var out []Course
	for rows.Next() {
		cr, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan course: %w", err)
		}
		out = append(out, cr)
	}
	return out, rows.Err()
}

// AddAsset attaches an uploaded material to the creator's own course.
func (c *Conf) AddAsset(ctx context.Context, courseID, creatorID int64, title, filePath, mimeType string, fileSize int64) (Asset, error) {
	cr, err := c.GetCourse(ctx, courseID)
	if err != nil {
		return Asset{}, err
	}
	if cr.CreatorUserID != creatorID {
		return Asset{}, ErrForbidden
	}

	var a Asset
	err = c.pool.QueryRow(ctx, `
		INSERT INTO course_assets (course_id, title, file_path, mime_type, file_size)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		RETURNING id, course_id, title, file_path, COALESCE(mime_type, ''), file_size, created_at
	`, courseID, title, filePath, mimeType, fileSize).
		Scan(&a.ID, &a.CourseID, &a.Title, &a.FilePath, &a.MimeType, &a.FileSize, &a.CreatedAt)
	if err != nil {
		return Asset{}, fmt.Errorf("failed to insert asset: %w", err)
	}
	return a, nil
}

// DeleteAsset removes a material. Only the course creator may delete.
func (c *Conf) DeleteAsset(ctx context.Context, assetID, creatorID int64) (Asset, error) {
	a, err := c.GetAsset(ctx, assetID)
	if err != nil {
		return Asset{}, err
	}
	cr, err := c.GetCourse(ctx, a.CourseID)
	if err != nil {
		return Asset{}, err
	}
	if cr.CreatorUserID != creatorID {
		return Asset{}, ErrForbidden
	}
	if _, err := c.pool.Exec(ctx, `DELETE FROM course_assets WHERE id = $1`, assetID); err != nil {
		return Asset{}, fmt.Errorf("failed to delete asset: %w", err)
	}
	return a, nil
}

func (c *Conf) ListAssets(ctx context.Context, courseID int64) ([]Asset, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT id, course_id, title, file_path, COALESCE(mime_type, ''), file_size, created_at
		FROM course_assets
		WHERE course_id = $1
		ORDER BY id ASC
	`, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	var out []Asset
	for rows.Next() {
		var a Asset
		if err := rows.Scan(&a.ID, &a.CourseID, &a.Title, &a.FilePath, &a.MimeType, &a.FileSize, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (c *Conf) GetAsset(ctx context.Context, assetID int64) (Asset, error) {
	var a Asset
	err := c.pool.QueryRow(ctx, `
		SELECT id, course_id, title, file_path, COALESCE(mime_type, ''), file_size, created_at
		FROM course_assets WHERE id = $1
	`, assetID).Scan(&a.ID, &a.CourseID, &a.Title, &a.FilePath, &a.MimeType, &a.FileSize, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Asset{}, ErrNotFound
		}
		return Asset{}, fmt.Errorf("failed to query asset: %w", err)
	}
	return a, nil
}

// CanAccessAsset reports whether the user may download the material: either
// an active enrollment on its course, or authorship of the course. Enrollment
// status is checked live so a revoked grant revokes old download links too.
func (c *Conf) CanAccessAsset(ctx context.Context, userID, assetID int64) (bool, error) {
	var ok bool
	err := c.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM course_assets a
			JOIN courses cr ON cr.id = a.course_id
			LEFT JOIN enrollments e
			       ON e.course_id = a.course_id AND e.user_id = $1 AND e.status = 'active'
			WHERE a.id = $2 AND (cr.creator_user_id = $1 OR e.id IS NOT NULL)
		)
	`, userID, assetID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check asset access: %w", err)
	}
	return ok, nil
}

// HasActiveEnrollment reports whether the user holds an active enrollment on
// the course.
func (c *Conf) HasActiveEnrollment(ctx context.Context, userID, courseID int64) (bool, error) {
	var ok bool
	err := c.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM enrollments
			WHERE user_id = $1 AND course_id = $2 AND status = 'active'
		)
	`, userID, courseID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check enrollment: %w", err)
	}
	return ok, nil
}

// ListEnrolled returns the courses the user holds an active enrollment for.
func (c *Conf) ListEnrolled(ctx context.Context, userID int64) ([]Course, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT cr.id, cr.category_id, cr.creator_user_id, cr.title, cr.description,
		       cr.price_cents, cr.is_published, cr.created_at
		FROM enrollments e
		JOIN courses cr ON cr.id = e.course_id
		WHERE e.user_id = $1 AND e.status = 'active'
		ORDER BY e.granted_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query enrolled courses: %w", err)
	}
	defer rows.Close()
	return collectCourses(rows)
}
