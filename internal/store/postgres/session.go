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

func (p *Postgres) CreateSession(ctx context.Context, s domain.Session) (*domain.Session, error) {
	id := ulid.Make().String()
	now := time.Now().UTC()

	query, _, err := p.goqu.Insert(p.tableSessions).Rows(goqu.Record{
		"id":                 id,
		"user_id":            s.UserID,
		"session_id_hash":    s.SessionIDHash,
		"refresh_token_hash": s.RefreshTokenHash,
		"device_label":       s.DeviceLabel,
		"user_agent":         s.UserAgent,
		"ip":                 s.IP,
		"expires_at":         s.ExpiresAt,
		"refresh_expires_at": s.RefreshExpiresAt,
		"created_at":         now,
	}).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build create session query: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.ID = id
	s.CreatedAt = now
	return &s, nil
}

func (p *Postgres) UpdateSessionOnRefresh(ctx context.Context, refreshTokenHash, newSessionIDHash string, newExpiresAt time.Time) (*domain.Session, error) {
	query, _, err := p.goqu.Update(p.tableSessions).
		Set(goqu.Record{"session_id_hash": newSessionIDHash, "expires_at": newExpiresAt}).
		Where(goqu.I("refresh_token_hash").Eq(refreshTokenHash)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build update session query: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return nil, fmt.Errorf("update session on refresh: %w", err)
	}

	return p.GetSessionByRefreshHash(ctx, refreshTokenHash)
}

func (p *Postgres) EndSession(ctx context.Context, sessionIDHash string) error {
	query, _, err := p.goqu.Update(p.tableSessions).
		Set(goqu.Record{"ended_at": time.Now().UTC()}).
		Where(goqu.I("session_id_hash").Eq(sessionIDHash)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build end session query: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// ListSessionsForUser returns every still-alive Session row for userID,
// newest first, backing GET /auth/sessions (§3.1 device-binding supplement).
func (p *Postgres) ListSessionsForUser(ctx context.Context, userID string) ([]domain.Session, error) {
	query, _, err := p.goqu.From(p.tableSessions).
		Select("id", "user_id", "session_id_hash", "refresh_token_hash", "device_label", "user_agent", "ip",
			"expires_at", "refresh_expires_at", "created_at", "ended_at").
		Where(goqu.I("user_id").Eq(userID), goqu.I("ended_at").IsNull()).
		Order(goqu.I("created_at").Desc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list sessions query: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		var s domain.Session
		if err := rows.Scan(&s.ID, &s.UserID, &s.SessionIDHash, &s.RefreshTokenHash,
			&s.DeviceLabel, &s.UserAgent, &s.IP, &s.ExpiresAt, &s.RefreshExpiresAt, &s.CreatedAt, &s.EndedAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) GetSessionByRefreshHash(ctx context.Context, refreshTokenHash string) (*domain.Session, error) {
	query, _, err := p.goqu.From(p.tableSessions).
		Select("id", "user_id", "session_id_hash", "refresh_token_hash", "device_label", "user_agent", "ip",
			"expires_at", "refresh_expires_at", "created_at", "ended_at").
		Where(goqu.I("refresh_token_hash").Eq(refreshTokenHash)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get session query: %w", err)
	}

	var s domain.Session
	err = p.db.QueryRowContext(ctx, query).Scan(&s.ID, &s.UserID, &s.SessionIDHash, &s.RefreshTokenHash,
		&s.DeviceLabel, &s.UserAgent, &s.IP, &s.ExpiresAt, &s.RefreshExpiresAt, &s.CreatedAt, &s.EndedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session by refresh hash: %w", err)
	}
	return &s, nil
}
