package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/okhomenko/shortline/internal/database"
	"github.com/okhomenko/shortline/internal/models"
)

type urlRecord struct {
	ID             int64      `db:"id"`
	ShortCode      string     `db:"short_code"`
	OriginalURL    string     `db:"original_url"`
	UserID         *int64     `db:"user_id"`
	ClickCount     int64      `db:"click_count"`
	LastAccessedAt *time.Time `db:"last_accessed_at"`
	IsDeleted      bool       `db:"is_deleted"`
	DeletedAt      *time.Time `db:"deleted_at"`
	CreatedAt      time.Time  `db:"created_at"`
}

func (r *urlRecord) ToURL() *models.URL {
	return &models.URL{
		ID:             r.ID,
		ShortCode:      r.ShortCode,
		OriginalURL:    r.OriginalURL,
		UserID:         r.UserID,
		ClickCount:     r.ClickCount,
		LastAccessedAt: r.LastAccessedAt,
		IsDeleted:      r.IsDeleted,
		DeletedAt:      r.DeletedAt,
		CreatedAt:      r.CreatedAt,
	}
}

type targetGroupRecord struct {
	OriginalURL string `db:"original_url"`
	LinksCount  int64  `db:"links_count"`
	ShortCodes  string `db:"short_codes"`
}

func (r *targetGroupRecord) ToTargetGroup() *models.TargetGroup {
	return &models.TargetGroup{
		OriginalURL: r.OriginalURL,
		LinksCount:  r.LinksCount,
		ShortCodes:  strings.Split(r.ShortCodes, ","),
	}
}

type URLRepository struct {
	db *sqlx.DB
}

func NewURLRepository(db *sqlx.DB) *URLRepository {
	return &URLRepository{
		db: db,
	}
}

func (r *URLRepository) Create(ctx context.Context, shortCode, originalURL string, userID int64) (*models.URL, error) {
	const op = "database.postgres.URLRepository.Create"

	rec := new(urlRecord)
	query := `INSERT INTO urls(short_code, original_url, user_id)
		VALUES ($1, $2, $3)
		RETURNING *`

	err := r.db.GetContext(ctx, rec, query, shortCode, originalURL, userID)
	if err != nil {
		if isUniqueViolationError(err) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrShortCodeExists)
		}

		return nil, fmt.Errorf("%s: failed to create url record: %w", op, err)
	}

	return rec.ToURL(), nil
}

// Resolve looks up an active URL by its short code and counts the access.
// The click counter and last access timestamp are updated in the same
// statement, so concurrent resolutions never lose increments.
func (r *URLRepository) Resolve(ctx context.Context, shortCode string) (*models.URL, error) {
	const op = "database.postgres.URLRepository.Resolve"

	rec := new(urlRecord)
	query := `UPDATE urls
		SET click_count = click_count + 1,
		    last_accessed_at = NOW()
		WHERE short_code = $1 AND is_deleted = FALSE
		RETURNING *`

	err := r.db.GetContext(ctx, rec, query, shortCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrURLNotFound)
		}

		return nil, fmt.Errorf("%s: failed to resolve url record: %w", op, err)
	}

	return rec.ToURL(), nil
}

// GetByShortCode retrieves an active URL without counting an access.
func (r *URLRepository) GetByShortCode(ctx context.Context, shortCode string) (*models.URL, error) {
	const op = "database.postgres.URLRepository.GetByShortCode"

	rec := new(urlRecord)
	query := `SELECT * FROM urls
		WHERE short_code = $1 AND is_deleted = FALSE`

	err := r.db.GetContext(ctx, rec, query, shortCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrURLNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get url record: %w", op, err)
	}

	return rec.ToURL(), nil
}

func (r *URLRepository) UpdateTarget(ctx context.Context, shortCode, originalURL string) (*models.URL, error) {
	const op = "database.postgres.URLRepository.UpdateTarget"

	rec := new(urlRecord)
	query := `UPDATE urls
		SET original_url = $1
		WHERE short_code = $2 AND is_deleted = FALSE
		RETURNING *`

	err := r.db.GetContext(ctx, rec, query, originalURL, shortCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrURLNotFound)
		}

		return nil, fmt.Errorf("%s: failed to update url record: %w", op, err)
	}

	return rec.ToURL(), nil
}

// SoftDelete deactivates a URL while keeping the row in storage. The
// statement is scoped to active rows, so deleting an already deactivated
// code reports ErrURLNotFound.
func (r *URLRepository) SoftDelete(ctx context.Context, shortCode string) error {
	const op = "database.postgres.URLRepository.SoftDelete"

	query := `UPDATE urls
		SET is_deleted = TRUE,
		    deleted_at = NOW()
		WHERE short_code = $1 AND is_deleted = FALSE`

	res, err := r.db.ExecContext(ctx, query, shortCode)
	if err != nil {
		return fmt.Errorf("%s: failed to delete url record: %w", op, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to get affected rows: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, database.ErrURLNotFound)
	}

	return nil
}

func (r *URLRepository) Latest(ctx context.Context, limit int) ([]models.URL, error) {
	const op = "database.postgres.URLRepository.Latest"

	query := `SELECT * FROM urls
		WHERE is_deleted = FALSE
		ORDER BY created_at DESC, id DESC
		LIMIT $1`

	return r.queryURLs(ctx, op, query, limit)
}

func (r *URLRepository) Popular(ctx context.Context, limit int) ([]models.URL, error) {
	const op = "database.postgres.URLRepository.Popular"

	query := `SELECT * FROM urls
		WHERE is_deleted = FALSE
		ORDER BY click_count DESC, last_accessed_at DESC NULLS LAST
		LIMIT $1`

	return r.queryURLs(ctx, op, query, limit)
}

func (r *URLRepository) queryURLs(ctx context.Context, op, query string, limit int) ([]models.URL, error) {
	var recs []urlRecord

	if err := r.db.SelectContext(ctx, &recs, query, limit); err != nil {
		return nil, fmt.Errorf("%s: failed to query url records: %w", op, err)
	}

	urls := make([]models.URL, 0, len(recs))
	for i := range recs {
		urls = append(urls, *recs[i].ToURL())
	}

	return urls, nil
}

// MostShortened groups active URLs by target and ranks targets by how many
// distinct short codes point at them.
func (r *URLRepository) MostShortened(ctx context.Context, limit int) ([]models.TargetGroup, error) {
	const op = "database.postgres.URLRepository.MostShortened"

	var recs []targetGroupRecord
	query := `SELECT original_url,
			COUNT(*) AS links_count,
			STRING_AGG(short_code, ',' ORDER BY created_at, id) AS short_codes
		FROM urls
		WHERE is_deleted = FALSE
		GROUP BY original_url
		ORDER BY links_count DESC, original_url
		LIMIT $1`

	if err := r.db.SelectContext(ctx, &recs, query, limit); err != nil {
		return nil, fmt.Errorf("%s: failed to query target groups: %w", op, err)
	}

	groups := make([]models.TargetGroup, 0, len(recs))
	for i := range recs {
		groups = append(groups, *recs[i].ToTargetGroup())
	}

	return groups, nil
}
