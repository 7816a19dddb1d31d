package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/okhomenko/shortline/internal/database"
	"github.com/okhomenko/shortline/internal/models"
)

type userRecord struct {
	ID          int64     `db:"id"`
	Username    string    `db:"username"`
	DisplayName *string   `db:"display_name"`
	APIKey      string    `db:"api_key"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r *userRecord) ToUser() *models.User {
	return &models.User{
		ID:          r.ID,
		Username:    r.Username,
		DisplayName: r.DisplayName,
		APIKey:      r.APIKey,
		CreatedAt:   r.CreatedAt,
	}
}

type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{
		db: db,
	}
}

func (r *UserRepository) Create(ctx context.Context, username string, displayName *string, apiKey string) (*models.User, error) {
	const op = "database.postgres.UserRepository.Create"

	rec := new(userRecord)
	query := `INSERT INTO users(username, display_name, api_key)
		VALUES ($1, $2, $3)
		RETURNING *`

	err := r.db.GetContext(ctx, rec, query, username, displayName, apiKey)
	if err != nil {
		if isUniqueViolationError(err) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrUsernameExists)
		}

		return nil, fmt.Errorf("%s: failed to create user record: %w", op, err)
	}

	return rec.ToUser(), nil
}

func (r *UserRepository) GetByAPIKey(ctx context.Context, apiKey string) (*models.User, error) {
	const op = "database.postgres.UserRepository.GetByAPIKey"

	rec := new(userRecord)
	query := `SELECT * FROM users WHERE api_key = $1`

	err := r.db.GetContext(ctx, rec, query, apiKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrUserNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get user record: %w", op, err)
	}

	return rec.ToUser(), nil
}
