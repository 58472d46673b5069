package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// User is a dashboard account.
type User struct {
	ID           string
	Email        string
	PasswordHash string
}

// UserStore looks up accounts by email.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
}

// UserRepository reads accounts from Postgres.
type UserRepository struct {
	db    *sql.DB
	table string
}

// UserRepositoryOption configures the repository.
type UserRepositoryOption func(*UserRepository)

// WithUserTable overrides the users table name.
func WithUserTable(table string) UserRepositoryOption {
	return func(r *UserRepository) {
		if table != "" {
			r.table = table
		}
	}
}

// NewUserRepository constructs a user repository.
func NewUserRepository(db *sql.DB, opts ...UserRepositoryOption) *UserRepository {
	repo := &UserRepository{db: db, table: "users"}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// FindByEmail returns nil, nil when no account matches.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("user repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, email, password_hash
FROM %s
WHERE lower(email) = lower($1)`, r.table)
	var user User
	err := r.db.QueryRowContext(ctx, query, strings.TrimSpace(email)).Scan(&user.ID, &user.Email, &user.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// HashPassword returns a bcrypt hash for provisioning accounts.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
