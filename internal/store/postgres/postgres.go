// Package postgres is the goqu/pgx-backed implementation of every Repo
// interface declared across internal/*: principal, session, submission,
// testscheduler, deployment, message, profile, teammgmt and apitoken all
// persist through the single Postgres struct defined here.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/computor-platform/computor-api/internal/config"
	atcrypto "github.com/computor-platform/computor-api/internal/crypto"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
)

var (
	ConnMaxLifetime = 15 * time.Minute
	MaxIdleConns    = 5
	MaxOpenConns    = 10

	DefaultTablePrefix = "computor_"
)

// providerEncryptedTableSuffixes lists the name (before the table prefix) of
// every table holding a provider_token column, consulted by
// RotateEncryptionKey.
var providerEncryptedTableSuffixes = []string{"organizations", "course_families", "courses"}

type Postgres struct {
	db   *sql.DB
	goqu *goqu.Database

	tablePrefix string

	tableUsers                  exp.IdentifierExpression
	tableUserRoles               exp.IdentifierExpression
	tableAccounts                exp.IdentifierExpression
	tableSessions                exp.IdentifierExpression
	tableOrganizations           exp.IdentifierExpression
	tableCourseFamilies          exp.IdentifierExpression
	tableCourses                 exp.IdentifierExpression
	tableCourseContentKinds      exp.IdentifierExpression
	tableCourseContentTypes      exp.IdentifierExpression
	tableCourseContents          exp.IdentifierExpression
	tableCourseGroups            exp.IdentifierExpression
	tableCourseMembers           exp.IdentifierExpression
	tableSubmissionGroups        exp.IdentifierExpression
	tableSubmissionGroupMembers  exp.IdentifierExpression
	tableSubmissionArtifacts     exp.IdentifierExpression
	tableSubmissionGrades        exp.IdentifierExpression
	tableDeployments             exp.IdentifierExpression
	tableDeploymentHistory       exp.IdentifierExpression
	tableExamples                exp.IdentifierExpression
	tableExampleVersions         exp.IdentifierExpression
	tableResults                 exp.IdentifierExpression
	tableMessages                exp.IdentifierExpression
	tableMessageReads            exp.IdentifierExpression
	tableApiTokens               exp.IdentifierExpression
	tableStudentProfiles         exp.IdentifierExpression

	// encKey is the AES-256 key used to encrypt/decrypt GitLab/provider
	// tokens on Organization/CourseFamily/Course rows. nil disables
	// encryption. Protected by encKeyMu.
	encKey   []byte
	encKeyMu sync.RWMutex
}

func New(ctx context.Context, cfg *config.StorePostgres, encKey []byte) (*Postgres, error) {
	if cfg == nil {
		return nil, errors.New("postgres configuration is nil")
	}
	if cfg.Datasource == "" {
		return nil, errors.New("postgres datasource is required")
	}

	tablePrefix := DefaultTablePrefix
	if cfg.TablePrefix != nil {
		tablePrefix = *cfg.TablePrefix
	}

	db, err := sql.Open("pgx", cfg.Datasource)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if cfg.Schema != "" {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("SET search_path TO %s", cfg.Schema)); err != nil {
			db.Close()
			return nil, fmt.Errorf("set search_path: %w", err)
		}
	}

	migrate := cfg.Migrate
	if migrate.Values == nil {
		migrate.Values = make(map[string]string)
	}
	migrate.Values["TABLE_PREFIX"] = tablePrefix

	if err := MigrateDB(ctx, &migrate, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store postgres: %w", err)
	}

	if cfg.ConnMaxLifetime != nil {
		ConnMaxLifetime = *cfg.ConnMaxLifetime
	}
	if cfg.MaxIdleConns != nil {
		MaxIdleConns = *cfg.MaxIdleConns
	}
	if cfg.MaxOpenConns != nil {
		MaxOpenConns = *cfg.MaxOpenConns
	}
	db.SetConnMaxLifetime(ConnMaxLifetime)
	db.SetMaxIdleConns(MaxIdleConns)
	db.SetMaxOpenConns(MaxOpenConns)

	slog.Info("connected to store postgres")

	t := func(name string) exp.IdentifierExpression { return goqu.T(tablePrefix + name) }

	return &Postgres{
		db:                          db,
		goqu:                        goqu.New("postgres", db),
		tablePrefix:                 tablePrefix,
		tableUsers:                  t("users"),
		tableUserRoles:              t("user_roles"),
		tableAccounts:               t("accounts"),
		tableSessions:               t("sessions"),
		tableOrganizations:          t("organizations"),
		tableCourseFamilies:         t("course_families"),
		tableCourses:                t("courses"),
		tableCourseContentKinds:     t("course_content_kinds"),
		tableCourseContentTypes:     t("course_content_types"),
		tableCourseContents:         t("course_contents"),
		tableCourseGroups:           t("course_groups"),
		tableCourseMembers:          t("course_members"),
		tableSubmissionGroups:       t("submission_groups"),
		tableSubmissionGroupMembers: t("submission_group_members"),
		tableSubmissionArtifacts:    t("submission_artifacts"),
		tableSubmissionGrades:       t("submission_grades"),
		tableDeployments:            t("course_content_deployments"),
		tableDeploymentHistory:      t("deployment_history"),
		tableExamples:               t("examples"),
		tableExampleVersions:        t("example_versions"),
		tableResults:                t("results"),
		tableMessages:               t("messages"),
		tableMessageReads:           t("message_reads"),
		tableApiTokens:              t("api_tokens"),
		tableStudentProfiles:        t("student_profiles"),
		encKey:                      encKey,
	}, nil
}

func (p *Postgres) Close() {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			slog.Error("close store postgres connection", "error", err)
		}
	}
}

// RotateEncryptionKey re-encrypts every Organization/CourseFamily/Course
// provider_token with newKey, inside one transaction so a crash mid-rotation
// never leaves rows encrypted under two different keys. Passing nil disables
// encryption (tokens are stored as plaintext going forward).
func (p *Postgres) RotateEncryptionKey(ctx context.Context, newKey []byte) error {
	p.encKeyMu.Lock()
	defer p.encKeyMu.Unlock()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var totalRotated int
	for _, suffix := range providerEncryptedTableSuffixes {
		table := p.tablePrefix + suffix

		selectQuery, _, err := p.goqu.From(goqu.T(table)).
			Select("id", "provider_token").
			ForUpdate(exp.Wait).
			ToSQL()
		if err != nil {
			return fmt.Errorf("build select query for %s: %w", table, err)
		}

		rows, err := tx.QueryContext(ctx, selectQuery)
		if err != nil {
			return fmt.Errorf("list %s for rotation: %w", table, err)
		}

		type rowData struct {
			id    string
			token string
		}
		var all []rowData
		for rows.Next() {
			var r rowData
			if err := rows.Scan(&r.id, &r.token); err != nil {
				rows.Close()
				return fmt.Errorf("scan %s row: %w", table, err)
			}
			all = append(all, r)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate %s rows: %w", table, err)
		}

		for _, r := range all {
			if r.token == "" {
				continue
			}

			plain, err := atcrypto.Decrypt(r.token, p.encKey)
			if err != nil {
				return fmt.Errorf("decrypt %s token %s: %w", table, r.id, err)
			}

			reenc, err := atcrypto.Encrypt(plain, newKey)
			if err != nil {
				return fmt.Errorf("re-encrypt %s token %s: %w", table, r.id, err)
			}

			updateQuery, _, err := p.goqu.Update(goqu.T(table)).
				Set(goqu.Record{"provider_token": reenc}).
				Where(goqu.I("id").Eq(r.id)).
				ToSQL()
			if err != nil {
				return fmt.Errorf("build update query for %s %s: %w", table, r.id, err)
			}

			if _, err := tx.ExecContext(ctx, updateQuery); err != nil {
				return fmt.Errorf("update %s %s: %w", table, r.id, err)
			}

			totalRotated++
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	p.encKey = newKey

	slog.Info("encryption key rotated", "rows_updated", totalRotated)

	return nil
}

// SetEncryptionKey updates the in-memory encryption key without re-encrypting
// rows. Nothing in the module calls it; the cluster package broadcasts only
// presence events, not key rotations.
func (p *Postgres) SetEncryptionKey(newKey []byte) {
	p.encKeyMu.Lock()
	p.encKey = newKey
	p.encKeyMu.Unlock()
}

func (p *Postgres) currentEncKey() []byte {
	p.encKeyMu.RLock()
	defer p.encKeyMu.RUnlock()
	return p.encKey
}
