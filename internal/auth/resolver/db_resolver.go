package resolver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"backoffice/internal/auth"
	"backoffice/internal/db"
)

// Options controls how unknown external logins are handled.
type Options struct {
	// AutoLink links by email or creates the user when no link exists.
	AutoLink bool
}

// DBResolver resolves external logins using the database.
type DBResolver struct {
	db   *db.DB
	opts Options
}

func NewDBResolver(db *db.DB, opts Options) *DBResolver {
	return &DBResolver{db: db, opts: opts}
}

func (r *DBResolver) Resolve(
	ctx context.Context,
	info *auth.ExternalLoginInfo,
) (string, error) {

	if info == nil {
		return "", errors.New("external login info is nil")
	}

	// 1. Existing link (login_provider + provider_key)
	userID, err := r.linkedUser(ctx, info.Login)
	if err == nil {
		return userID.String(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	if !r.opts.AutoLink {
		return "", ErrNotLinked
	}

	// 2. Email-based linking (existing user, new provider). Only a
	// provider-verified email may claim an existing account.
	if info.Email != "" {
		err = r.db.QueryRowContext(ctx, `
			SELECT id
			FROM users
			WHERE LOWER(email) = LOWER($1)
		`,
			info.Email,
		).Scan(&userID)

		if err == nil {
			if !emailVerified(info) {
				return "", ErrNotLinked
			}
			if err := r.insertLink(ctx, r.db, userID, info.Login); err != nil {
				return "", err
			}
			return userID.String(), nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", err
		}
	}

	// 3. New user + link
	return r.createUser(ctx, info)
}

func (r *DBResolver) Link(
	ctx context.Context,
	userID string,
	info *auth.ExternalLoginInfo,
) error {

	if info == nil {
		return errors.New("external login info is nil")
	}
	id, err := uuid.Parse(userID)
	if err != nil {
		return fmt.Errorf("invalid user id: %w", err)
	}

	existing, err := r.linkedUser(ctx, info.Login)
	switch {
	case err == nil && existing == id:
		return nil
	case err == nil:
		return ErrAlreadyLinked
	case !errors.Is(err, sql.ErrNoRows):
		return err
	}

	return r.insertLink(ctx, r.db, id, info.Login)
}

func (r *DBResolver) linkedUser(ctx context.Context, login auth.UserLoginInfo) (uuid.UUID, error) {
	var userID uuid.UUID
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id
		FROM external_logins
		WHERE login_provider = $1
		  AND provider_key = $2
	`,
		login.LoginProvider,
		login.ProviderKey,
	).Scan(&userID)
	return userID, err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *DBResolver) insertLink(ctx context.Context, ex execer, userID uuid.UUID, login auth.UserLoginInfo) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO external_logins (user_id, login_provider, provider_key)
		VALUES ($1, $2, $3)
	`,
		userID,
		login.LoginProvider,
		login.ProviderKey,
	)
	return err
}

func (r *DBResolver) createUser(ctx context.Context, info *auth.ExternalLoginInfo) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	var userID uuid.UUID
	err = tx.QueryRowContext(ctx, `
		INSERT INTO users (user_name, email, email_verified)
		VALUES ($1, NULLIF($2, ''), $3)
		RETURNING id
	`,
		userName(info),
		info.Email,
		emailVerified(info),
	).Scan(&userID)
	if err != nil {
		return "", err
	}

	if err := r.insertLink(ctx, tx, userID, info.Login); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return userID.String(), nil
}

// userName picks the first non-empty of the default user name, the email
// and the provider key.
func userName(info *auth.ExternalLoginInfo) string {
	switch {
	case info.DefaultUserName != "":
		return info.DefaultUserName
	case info.Email != "":
		return info.Email
	default:
		return info.Login.ProviderKey
	}
}

func emailVerified(info *auth.ExternalLoginInfo) bool {
	return info.ExternalIdentity.FindFirstValue(auth.ClaimEmailVerified) == "true"
}
