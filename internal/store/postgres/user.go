package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/computor-platform/computor-api/internal/domain"
)

// GetUserByUsername backs the password credential path of §4.1: resolving
// the login identifier to the row holding PasswordHash.
func (p *Postgres) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	query, _, err := p.goqu.From(p.tableUsers).
		Select("id", "username", "email", "given_name", "family_name", "password_hash", "is_archived", "created_at", "updated_at").
		Where(goqu.I("username").Eq(username)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get user by username query: %w", err)
	}

	var u domain.User
	err = p.db.QueryRowContext(ctx, query).Scan(&u.ID, &u.Username, &u.Email, &u.GivenName, &u.FamilyName,
		&u.PasswordHash, &u.IsArchived, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by username %q: %w", username, err)
	}
	return &u, nil
}

func (p *Postgres) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	query, _, err := p.goqu.From(p.tableUsers).
		Select("id", "username", "email", "given_name", "family_name", "password_hash", "is_archived", "created_at", "updated_at").
		Where(goqu.I("id").Eq(id)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get user by id query: %w", err)
	}

	var u domain.User
	err = p.db.QueryRowContext(ctx, query).Scan(&u.ID, &u.Username, &u.Email, &u.GivenName, &u.FamilyName,
		&u.PasswordHash, &u.IsArchived, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by id %q: %w", id, err)
	}
	return &u, nil
}
