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

func (p *Postgres) GetProfile(ctx context.Context, courseMemberID string) (*domain.StudentProfile, error) {
	query, _, err := p.goqu.From(p.tableStudentProfiles).
		Select("id", "course_member_id", "bio", "avatar_url", "updated_at").
		Where(goqu.I("course_member_id").Eq(courseMemberID)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get profile query: %w", err)
	}

	var sp domain.StudentProfile
	err = p.db.QueryRowContext(ctx, query).Scan(&sp.ID, &sp.CourseMemberID, &sp.Bio, &sp.AvatarURL, &sp.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get student profile %q: %w", courseMemberID, err)
	}
	return &sp, nil
}

func (p *Postgres) UpsertProfile(ctx context.Context, sp domain.StudentProfile) (*domain.StudentProfile, error) {
	existing, err := p.GetProfile(ctx, sp.CourseMemberID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if existing == nil {
		id := ulid.Make().String()
		query, _, err := p.goqu.Insert(p.tableStudentProfiles).Rows(goqu.Record{
			"id":               id,
			"course_member_id": sp.CourseMemberID,
			"bio":              sp.Bio,
			"avatar_url":       sp.AvatarURL,
			"updated_at":       now,
		}).ToSQL()
		if err != nil {
			return nil, fmt.Errorf("build create student profile query: %w", err)
		}
		if _, err := p.db.ExecContext(ctx, query); err != nil {
			return nil, fmt.Errorf("create student profile: %w", err)
		}
		sp.ID, sp.UpdatedAt = id, now
		return &sp, nil
	}

	query, _, err := p.goqu.Update(p.tableStudentProfiles).
		Set(goqu.Record{"bio": sp.Bio, "avatar_url": sp.AvatarURL, "updated_at": now}).
		Where(goqu.I("course_member_id").Eq(sp.CourseMemberID)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build update student profile query: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return nil, fmt.Errorf("update student profile: %w", err)
	}

	existing.Bio, existing.AvatarURL, existing.UpdatedAt = sp.Bio, sp.AvatarURL, now
	return existing, nil
}

func (p *Postgres) DeleteProfile(ctx context.Context, courseMemberID string) error {
	query, _, err := p.goqu.Delete(p.tableStudentProfiles).
		Where(goqu.I("course_member_id").Eq(courseMemberID)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build delete student profile query: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("delete student profile: %w", err)
	}
	return nil
}
