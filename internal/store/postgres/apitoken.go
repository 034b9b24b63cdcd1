package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/oklog/ulid/v2"

	"github.com/computor-platform/computor-api/internal/domain"
)

func (p *Postgres) CreateToken(ctx context.Context, t domain.ApiToken) (*domain.ApiToken, error) {
	id := ulid.Make().String()
	now := time.Now().UTC()

	query, _, err := p.goqu.Insert(p.tableApiTokens).Rows(goqu.Record{
		"id":           id,
		"user_id":      t.UserID,
		"name":         t.Name,
		"token_prefix": t.TokenPrefix,
		"token_hash":   t.TokenHash,
		"scopes":       t.Scopes,
		"expires_at":   t.ExpiresAt,
		"created_at":   now,
	}).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build create api token query: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return nil, fmt.Errorf("create api token: %w", err)
	}

	t.ID = id
	t.CreatedAt = now
	return &t, nil
}

func (p *Postgres) ListTokensForUser(ctx context.Context, userID string) ([]domain.ApiToken, error) {
	query, _, err := p.goqu.From(p.tableApiTokens).
		Select("id", "user_id", "name", "token_prefix", "token_hash", "scopes", "expires_at", "revoked_at", "created_at").
		Where(goqu.I("user_id").Eq(userID)).
		Order(goqu.I("created_at").Desc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list api tokens query: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list api tokens: %w", err)
	}
	defer rows.Close()

	var out []domain.ApiToken
	for rows.Next() {
		t, err := scanApiToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *Postgres) GetTokenByHash(ctx context.Context, hash string) (*domain.ApiToken, error) {
	query, _, err := p.goqu.From(p.tableApiTokens).
		Select("id", "user_id", "name", "token_prefix", "token_hash", "scopes", "expires_at", "revoked_at", "created_at").
		Where(goqu.I("token_hash").Eq(hash)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get api token query: %w", err)
	}

	row := p.db.QueryRowContext(ctx, query)
	t, err := scanApiTokenRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get api token by hash: %w", err)
	}
	return &t, nil
}

func (p *Postgres) RevokeToken(ctx context.Context, id string) error {
	query, _, err := p.goqu.Update(p.tableApiTokens).
		Set(goqu.Record{"revoked_at": time.Now().UTC()}).
		Where(goqu.I("id").Eq(id)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build revoke api token query: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("revoke api token: %w", err)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanApiToken(rows *sql.Rows) (domain.ApiToken, error) {
	return scanApiTokenRow(rows)
}

func scanApiTokenRow(row scannable) (domain.ApiToken, error) {
	var t domain.ApiToken
	err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.TokenPrefix, &t.TokenHash, &t.Scopes, &t.ExpiresAt, &t.RevokedAt, &t.CreatedAt)
	if err != nil {
		return domain.ApiToken{}, err
	}
	return t, nil
}
