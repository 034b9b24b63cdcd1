package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/oklog/ulid/v2"

	"github.com/computor-platform/computor-api/internal/authz"
	"github.com/computor-platform/computor-api/internal/domain"
)

func (p *Postgres) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	query, _, err := p.goqu.From(p.tableMessages).
		Select("id", "parent_id", "author_user_id", "user_id", "course_member_id", "submission_group_id",
			"course_group_id", "course_content_id", "course_id", "title", "content", "created_at", "updated_at").
		Where(goqu.I("id").Eq(id)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get message query: %w", err)
	}
	return p.scanOptionalMessage(ctx, query)
}

func (p *Postgres) CreateMessage(ctx context.Context, m domain.Message) (*domain.Message, error) {
	id := ulid.Make().String()
	now := time.Now().UTC()

	query, _, err := p.goqu.Insert(p.tableMessages).Rows(goqu.Record{
		"id":                  id,
		"parent_id":           m.ParentID,
		"author_user_id":      m.AuthorUserID,
		"user_id":             m.UserID,
		"course_member_id":    m.CourseMemberID,
		"submission_group_id": m.SubmissionGroupID,
		"course_group_id":     m.CourseGroupID,
		"course_content_id":   m.CourseContentID,
		"course_id":           m.CourseID,
		"title":               m.Title,
		"content":             m.Content,
		"created_at":          now,
		"updated_at":          now,
	}).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build create message query: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	m.ID = id
	m.CreatedAt, m.UpdatedAt = now, now
	return &m, nil
}

func (p *Postgres) UpdateMessage(ctx context.Context, m domain.Message) (*domain.Message, error) {
	query, _, err := p.goqu.Update(p.tableMessages).
		Set(goqu.Record{"title": m.Title, "content": m.Content, "updated_at": time.Now().UTC()}).
		Where(goqu.I("id").Eq(m.ID)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build update message query: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}
	return p.GetMessage(ctx, m.ID)
}

func (p *Postgres) DeleteMessage(ctx context.Context, id string) error {
	query, _, err := p.goqu.Delete(p.tableMessages).Where(goqu.I("id").Eq(id)).ToSQL()
	if err != nil {
		return fmt.Errorf("build delete message query: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func (p *Postgres) InsertReadMarker(ctx context.Context, messageID, readerUserID string, readAt time.Time) error {
	query, _, err := p.goqu.Insert(p.tableMessageReads).
		Rows(goqu.Record{"message_id": messageID, "reader_user_id": readerUserID, "read_at": readAt}).
		OnConflict(goqu.DoNothing()).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build insert read marker query: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("insert read marker: %w", err)
	}
	return nil
}

func (p *Postgres) DeleteReadMarker(ctx context.Context, messageID, readerUserID string) error {
	query, _, err := p.goqu.Delete(p.tableMessageReads).
		Where(goqu.I("message_id").Eq(messageID), goqu.I("reader_user_id").Eq(readerUserID)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build delete read marker query: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("delete read marker: %w", err)
	}
	return nil
}

// ListMessagesRestricted backs GET /messages: visibility is the OR of every
// source named by restriction.MessagePrimaryTargets (§4.8), newest first.
func (p *Postgres) ListMessagesRestricted(ctx context.Context, restriction authz.QueryRestriction) ([]domain.Message, error) {
	ds := p.goqu.From(p.tableMessages).
		Select("id", "parent_id", "author_user_id", "user_id", "course_member_id", "submission_group_id",
			"course_group_id", "course_content_id", "course_id", "title", "content", "created_at", "updated_at").
		Order(goqu.I("created_at").Desc())

	switch {
	case restriction.Deny:
		return nil, nil
	case restriction.Unrestricted:
		// no filter
	default:
		v := restriction.MessagePrimaryTargets
		if v == nil {
			return nil, nil
		}
		var or goqu.Expression
		add := func(e goqu.Expression) {
			if or == nil {
				or = e
				return
			}
			or = goqu.Or(or, e)
		}
		if v.AuthorUserID != "" {
			add(goqu.I("author_user_id").Eq(v.AuthorUserID))
		}
		if v.TargetUserID != "" {
			add(goqu.I("user_id").Eq(v.TargetUserID))
		}
		if len(v.CourseMemberIDs) > 0 {
			add(goqu.I("course_member_id").In(v.CourseMemberIDs))
		}
		if len(v.SubmissionGroupIDs) > 0 {
			add(goqu.I("submission_group_id").In(v.SubmissionGroupIDs))
		}
		if len(v.CourseGroupIDs) > 0 {
			add(goqu.I("course_group_id").In(v.CourseGroupIDs))
		}
		if len(v.CourseContentIDIn) > 0 {
			add(goqu.I("course_content_id").In(v.CourseContentIDIn))
		}
		if len(v.CourseIDIn) > 0 {
			add(goqu.I("course_id").In(v.CourseIDIn))
		}
		if len(v.BroadAccessCourseIDIn) > 0 {
			add(goqu.I("course_id").In(v.BroadAccessCourseIDIn))
		}
		if or == nil {
			return nil, nil
		}
		ds = ds.Where(or)
	}

	query, _, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list messages query: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.ParentID, &m.AuthorUserID, &m.UserID, &m.CourseMemberID, &m.SubmissionGroupID,
			&m.CourseGroupID, &m.CourseContentID, &m.CourseID, &m.Title, &m.Content, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *Postgres) scanOptionalMessage(ctx context.Context, query string) (*domain.Message, error) {
	var m domain.Message
	err := p.db.QueryRowContext(ctx, query).Scan(&m.ID, &m.ParentID, &m.AuthorUserID, &m.UserID, &m.CourseMemberID,
		&m.SubmissionGroupID, &m.CourseGroupID, &m.CourseContentID, &m.CourseID, &m.Title, &m.Content, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	return &m, nil
}
