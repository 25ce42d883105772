package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"backoffice/internal/db"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAlreadyRegistered  = errors.New("credentials already exist")
)

type Service struct {
	db *db.DB
}

func NewService(db *db.DB) *Service {
	return &Service{db: db}
}

// Register gives a back-office user a local password, creating the user
// when no user with that email exists yet.
func (s *Service) Register(
	ctx context.Context,
	userName string,
	email string,
	password string,
) (string, error) {

	if email == "" {
		return "", errors.New("email is required")
	}
	if userName == "" {
		userName = email
	}

	// weak passwords create nothing
	hash, version, err := HashPassword(password)
	if err != nil {
		return "", err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	userID, err := findOrCreateUser(ctx, tx, userName, email)
	if err != nil {
		return "", err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO credentials (user_id, password_hash, hash_version)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, hash, version)
	if err != nil {
		return "", fmt.Errorf("insert credentials: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return "", err
	} else if n == 0 {
		return "", ErrAlreadyRegistered
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return userID.String(), nil
}

func findOrCreateUser(ctx context.Context, tx *sql.Tx, userName, email string) (uuid.UUID, error) {
	var userID uuid.UUID

	err := tx.QueryRowContext(ctx, `
		SELECT id FROM users
		WHERE LOWER(email) = LOWER($1)
	`, email).Scan(&userID)
	if err == nil {
		return userID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("find user: %w", err)
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO users (user_name, email, email_verified)
		VALUES ($1, $2, false)
		RETURNING id
	`, userName, email).Scan(&userID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create user: %w", err)
	}
	return userID, nil
}

// Authenticate checks a local password and returns the user id. Unknown
// emails and wrong passwords both yield ErrInvalidCredentials.
func (s *Service) Authenticate(
	ctx context.Context,
	email string,
	password string,
) (string, error) {

	var c Credential

	err := s.db.QueryRowContext(ctx, `
		SELECT c.user_id, c.password_hash, c.hash_version
		FROM users u
		JOIN credentials c ON c.user_id = u.id
		WHERE LOWER(u.email) = LOWER($1)
		  AND u.status = 'active'
	`, email).Scan(&c.UserID, &c.PasswordHash, &c.HashVersion)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", ErrInvalidCredentials
	case err != nil:
		return "", fmt.Errorf("load credentials: %w", err)
	}

	if c.HashVersion != HashVersionBcrypt {
		return "", ErrInvalidCredentials
	}
	if err := VerifyPassword(c.PasswordHash, password); err != nil {
		return "", ErrInvalidCredentials
	}

	return c.UserID, nil
}
