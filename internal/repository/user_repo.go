package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/saeid-a/ChatAppBack/internal/models"
)

type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const userColumns = `id::text, username, email, password_hash, is_online, last_seen, created_at, updated_at`

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row pgx.Row, user *models.User) error {
	return row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.IsOnline,
		&user.LastSeen,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
}

func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	query := `
		INSERT INTO users (id, username, email, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, user.ID, user.Username, user.Email, user.PasswordHash).
		Scan(&user.CreatedAt, &user.UpdatedAt)
	return wrapErr(err, "create user")
}

// GetByLogin finds a user by username or email.
func (r *UserRepository) GetByLogin(ctx context.Context, login string) (*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE username = $1 OR email = LOWER($1)
	`
	var user models.User
	if err := scanUser(r.db.QueryRow(ctx, query, strings.TrimSpace(login)), &user); err != nil {
		return nil, wrapErr(err, "get user by login")
	}
	return &user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1
	`
	var user models.User
	if err := scanUser(r.db.QueryRow(ctx, query, id), &user); err != nil {
		return nil, wrapErr(err, "get user by id")
	}
	return &user, nil
}

func (r *UserRepository) Exists(ctx context.Context, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, wrapErr(err, "check user exists")
	}
	return exists, nil
}

// Search matches usernames case-insensitively, excluding excludeID.
func (r *UserRepository) Search(
	ctx context.Context,
	query string,
	excludeID string,
	limit int,
	offset int,
) ([]models.User, int, error) {
	pattern := "%" + escapeLike(strings.TrimSpace(query)) + "%"
	if _, err := uuid.Parse(excludeID); err != nil {
		excludeID = uuid.Nil.String()
	}

	var total int
	if err := r.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM users
		WHERE username ILIKE $1 AND id <> $2
	`, pattern, excludeID).Scan(&total); err != nil {
		return nil, 0, wrapErr(err, "count users")
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE username ILIKE $1 AND id <> $2
		ORDER BY username ASC
		LIMIT $3 OFFSET $4
	`, pattern, excludeID, limit, offset)
	if err != nil {
		return nil, 0, wrapErr(err, "search users")
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		var user models.User
		if err := scanUser(rows, &user); err != nil {
			return nil, 0, wrapErr(err, "scan user")
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, wrapErr(err, "search users")
	}
	return users, total, nil
}

// PresenceChanged persists the online flag and last-seen time.
func (r *UserRepository) PresenceChanged(ctx context.Context, userID string, online bool, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE users
		SET is_online = $2, last_seen = $3, updated_at = NOW()
		WHERE id = $1
	`, userID, online, at)
	return wrapErr(err, "update presence")
}

// AddContacts records a and b as mutual contacts. Repeated calls are no-ops.
func (r *UserRepository) AddContacts(ctx context.Context, a string, b string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO contacts (user_id, contact_id)
		VALUES ($1, $2), ($2, $1)
		ON CONFLICT (user_id, contact_id) DO NOTHING
	`, a, b)
	return wrapErr(err, "add contacts")
}

func (r *UserRepository) ListContacts(ctx context.Context, userID string) ([]models.User, error) {
	rows, err := r.db.Query(ctx, `
		SELECT u.id::text, u.username, u.email, u.password_hash, u.is_online, u.last_seen, u.created_at, u.updated_at
		FROM contacts c
		JOIN users u ON u.id = c.contact_id
		WHERE c.user_id = $1
		ORDER BY u.username ASC
	`, userID)
	if err != nil {
		return nil, wrapErr(err, "list contacts")
	}
	defer rows.Close()

	contacts := make([]models.User, 0)
	for rows.Next() {
		var user models.User
		if err := scanUser(rows, &user); err != nil {
			return nil, wrapErr(err, "scan contact")
		}
		contacts = append(contacts, user)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(err, "list contacts")
	}
	return contacts, nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
