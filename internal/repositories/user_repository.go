package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"dm-service/internal/db"
	"dm-service/internal/models"
)

const userColumns = `id, username, email, avatar, created_at, last_seen`

// UserRepository is the identity directory: it resolves ids and usernames
// to public user records.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (models.User, error)
	GetByUsername(ctx context.Context, username string) (models.User, error)
	GetByIDs(ctx context.Context, ids []int) ([]models.User, error)
	Search(ctx context.Context, keyword string, limit int) ([]models.User, error)
	Create(ctx context.Context, username, email string) (models.User, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(database *sqlx.DB) *UserRepo {
	return &UserRepo{db: database}
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id int) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, r.db.Rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// GetByUsername fetches a user by exact username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, r.db.Rebind(`SELECT `+userColumns+` FROM users WHERE username = ?`), username)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// GetByIDs fetches the users that exist among ids. Missing ids are skipped.
func (r *UserRepo) GetByIDs(ctx context.Context, ids []int) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	query, args, err := sqlx.In(`SELECT `+userColumns+` FROM users WHERE id IN (?) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	var users []models.User
	err = r.db.SelectContext(ctx, &users, r.db.Rebind(query), args...)
	return users, err
}

// Search returns up to limit users whose username contains keyword,
// case-sensitively, in id order.
func (r *UserRepo) Search(ctx context.Context, keyword string, limit int) ([]models.User, error) {
	// LIKE is case-insensitive in SQLite, so both dialects use a position function.
	match := `strpos(username, ?) > 0`
	if db.IsSQLite(r.db) {
		match = `instr(username, ?) > 0`
	}
	var users []models.User
	err := r.db.SelectContext(ctx, &users, r.db.Rebind(`SELECT `+userColumns+` FROM users WHERE `+match+` ORDER BY id LIMIT ?`), keyword, limit)
	return users, err
}

// Create registers a user record.
func (r *UserRepo) Create(ctx context.Context, username, email string) (models.User, error) {
	ts := now()
	user := models.User{Username: username, Email: email, CreatedAt: ts, LastSeen: ts}
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(`INSERT INTO users (username, email, avatar, created_at, last_seen) VALUES (?, ?, '', ?, ?) RETURNING id`),
		username, email, ts, ts).Scan(&user.ID)
	return user, err
}
