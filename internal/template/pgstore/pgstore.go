// Package pgstore implements template.Store on PostgreSQL. Templates are
// stored as JSONB documents with the columns the read paths filter on
// mirrored beside them.
package pgstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/aspcranes/quotegen/internal/template"
)

//go:embed migrations
var embedMigrations embed.FS

// Store provides template storage operations on PostgreSQL.
type Store struct {
	db     *sql.DB
	now    func() time.Time
	logger *slog.Logger
}

var _ template.Store = (*Store)(nil)

// Connect opens a connection pool for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("database open: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping: %w", err)
	}
	return db, nil
}

// Migrate applies the embedded goose migrations.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// Open connects to dsn, applies migrations and returns a store that owns
// the pool.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	db, err := Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return New(db, logger), nil
}

// New wraps an already migrated database.
func New(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:     db,
		now:    time.Now,
		logger: logger.With("component", "template_pgstore"),
	}
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create creates a new template
func (s *Store) Create(ctx context.Context, tmpl *template.Template) error {
	tmpl.IsActive = true
	if err := template.Prepare(tmpl); err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		now := s.now().UTC()
		tmpl.ID = uuid.New().String()
		tmpl.Version = 1
		tmpl.CreatedAt = now
		tmpl.UpdatedAt = now
		if tmpl.UpdatedBy == "" {
			tmpl.UpdatedBy = tmpl.CreatedBy
		}

		if tmpl.IsDefault {
			if err := lockScope(ctx, tx, tmpl.Scope()); err != nil {
				return err
			}
			if err := s.clearDefaults(ctx, tx, tmpl.Scope(), tmpl.ID, tmpl.CreatedBy); err != nil {
				return err
			}
		}
		return s.insert(ctx, tx, tmpl)
	})
}

// Get retrieves a template by ID, including inactive ones.
func (s *Store) Get(ctx context.Context, id string) (*template.Template, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", template.ErrTemplateNotFound, id)
	}
	return scanTemplate(s.db.QueryRowContext(ctx, `SELECT body FROM templates WHERE id = $1`, id), id)
}

// GetDefault returns the active default of a scope, newest first.
func (s *Store) GetDefault(ctx context.Context, scope string) (*template.Template, error) {
	scope = template.NormalizeScope(scope)
	row := s.db.QueryRowContext(ctx, `
		SELECT body FROM templates
		WHERE scope = $1 AND is_default AND is_active
		ORDER BY updated_at DESC, id
		LIMIT 1`, scope)
	tmpl, err := scanTemplate(row, "")
	if errors.Is(err, template.ErrTemplateNotFound) {
		return nil, fmt.Errorf("%w: no default in scope %s", template.ErrTemplateNotFound, scope)
	}
	return tmpl, err
}

// List returns templates with optional filtering, newest first.
func (s *Store) List(ctx context.Context, filter template.ListFilter) ([]*template.Template, error) {
	scope := ""
	if filter.Scope != "" {
		scope = template.NormalizeScope(filter.Scope)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT body FROM templates
		WHERE ($1 = '' OR scope = $1) AND (is_active OR $2)
		ORDER BY updated_at DESC, id`, scope, filter.IncludeInactive)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var templates []*template.Template
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		tmpl := &template.Template{}
		if err := json.Unmarshal(body, tmpl); err != nil {
			s.logger.Warn("skipping undecodable template", "error", err)
			continue
		}
		if filter.Matches(tmpl) {
			templates = append(templates, tmpl)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	template.SortNewestFirst(templates)
	return template.Paginate(templates, filter.Offset, filter.Limit), nil
}

// Update replaces a template. expectedVersion 0 skips the version check.
func (s *Store) Update(ctx context.Context, tmpl *template.Template, expectedVersion int) error {
	if err := template.Prepare(tmpl); err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if tmpl.IsDefault {
			if err := lockScope(ctx, tx, tmpl.Scope()); err != nil {
				return err
			}
		}
		existing, err := s.lockTemplate(ctx, tx, tmpl.ID)
		if err != nil {
			return err
		}
		if expectedVersion > 0 && existing.Version != expectedVersion {
			return &template.VersionConflictError{ID: tmpl.ID, Expected: expectedVersion, Current: existing.Version}
		}

		tmpl.Version = existing.Version + 1
		tmpl.CreatedAt = existing.CreatedAt
		tmpl.CreatedBy = existing.CreatedBy
		tmpl.UpdatedAt = s.now().UTC()

		if tmpl.IsDefault {
			if err := s.clearDefaults(ctx, tx, tmpl.Scope(), tmpl.ID, tmpl.UpdatedBy); err != nil {
				return err
			}
		}
		return s.write(ctx, tx, tmpl, existing.Version, tmpl.UpdatedBy)
	})
}

// Patch applies a partial update under an optimistic lock. The write is
// conditional on the stored version, so a concurrent writer surfaces as a
// conflict rather than a lost update.
func (s *Store) Patch(ctx context.Context, id string, patch template.Patch) (*template.Template, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	var updated *template.Template
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if peek, err := s.Get(ctx, id); err == nil {
			patch.Apply(peek)
			if peek.IsDefault {
				if err := lockScope(ctx, tx, template.NormalizeScope(peek.Category)); err != nil {
					return err
				}
			}
		}

		tmpl, err := s.lockTemplate(ctx, tx, id)
		if err != nil {
			return err
		}
		if tmpl.Version != patch.ExpectedVersion {
			return &template.VersionConflictError{ID: id, Expected: patch.ExpectedVersion, Current: tmpl.Version}
		}

		patch.Apply(tmpl)
		if err := template.Prepare(tmpl); err != nil {
			return err
		}
		tmpl.Version++
		tmpl.UpdatedAt = s.now().UTC()

		if tmpl.IsDefault {
			if err := s.clearDefaults(ctx, tx, tmpl.Scope(), tmpl.ID, tmpl.UpdatedBy); err != nil {
				return err
			}
		}
		if err := s.write(ctx, tx, tmpl, patch.ExpectedVersion, tmpl.UpdatedBy); err != nil {
			return err
		}
		updated = tmpl
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SetDefault makes id the only default of its scope. Concurrent calls for
// one scope are serialised by a transaction-scoped advisory lock, taken
// before any row lock.
func (s *Store) SetDefault(ctx context.Context, id string) (*template.Template, error) {
	var target *template.Template

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		peek, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := lockScope(ctx, tx, peek.Scope()); err != nil {
			return err
		}

		tmpl, err := s.lockTemplate(ctx, tx, id)
		if err != nil {
			return err
		}
		if !tmpl.IsActive {
			return fmt.Errorf("%w: %s", template.ErrTemplateNotFound, id)
		}
		if tmpl.Scope() != peek.Scope() {
			if err := lockScope(ctx, tx, tmpl.Scope()); err != nil {
				return err
			}
		}

		if err := s.clearDefaults(ctx, tx, tmpl.Scope(), id, ""); err != nil {
			return err
		}
		if !tmpl.IsDefault {
			prev := tmpl.Version
			tmpl.IsDefault = true
			tmpl.Version++
			tmpl.UpdatedAt = s.now().UTC()
			if err := s.write(ctx, tx, tmpl, prev, ""); err != nil {
				return err
			}
		}
		target = tmpl
		return nil
	})
	if err != nil {
		return nil, err
	}
	return target, nil
}

// SoftDelete deactivates a template. Deleting an inactive template is a no-op.
func (s *Store) SoftDelete(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		tmpl, err := s.lockTemplate(ctx, tx, id)
		if err != nil {
			return err
		}
		if !tmpl.IsActive {
			return nil
		}
		prev := tmpl.Version
		tmpl.IsActive = false
		tmpl.IsDefault = false
		tmpl.Version++
		tmpl.UpdatedAt = s.now().UTC()
		return s.write(ctx, tx, tmpl, prev, "")
	})
}

// Versions returns the stored revisions of a template, newest first.
func (s *Store) Versions(ctx context.Context, id string) ([]template.Revision, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT version, changed_by, created_at, body FROM template_revisions
		WHERE template_id = $1
		ORDER BY version DESC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list revisions: %w", err)
	}
	defer rows.Close()

	var revisions []template.Revision
	for rows.Next() {
		rev, err := scanRevision(rows, id)
		if err != nil {
			return nil, err
		}
		revisions = append(revisions, *rev)
	}
	return revisions, rows.Err()
}

// Revision returns one stored revision.
func (s *Store) Revision(ctx context.Context, id string, version int) (*template.Revision, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", template.ErrTemplateNotFound, id)
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT version, changed_by, created_at, body FROM template_revisions
		WHERE template_id = $1 AND version = $2`, id, version)
	rev, err := scanRevision(row, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s version %d", template.ErrTemplateNotFound, id, version)
	}
	return rev, err
}

// ActiveTemplates counts active templates for the metrics collector.
func (s *Store) ActiveTemplates(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM templates WHERE is_active`).Scan(&n)
	return n, err
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// lockTemplate reads a template with its row locked until the
// transaction ends.
func (s *Store) lockTemplate(ctx context.Context, tx *sql.Tx, id string) (*template.Template, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", template.ErrTemplateNotFound, id)
	}
	return scanTemplate(tx.QueryRowContext(ctx, `SELECT body FROM templates WHERE id = $1 FOR UPDATE`, id), id)
}

// clearDefaults unsets the default flag on every other template of scope,
// bumping the version of each record it modifies.
func (s *Store) clearDefaults(ctx context.Context, tx *sql.Tx, scope, exceptID, changedBy string) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT body FROM templates
		WHERE scope = $1 AND is_default AND id <> $2
		FOR UPDATE`, scope, exceptID)
	if err != nil {
		return fmt.Errorf("failed to select defaults: %w", err)
	}
	var modified []*template.Template
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			rows.Close()
			return err
		}
		tmpl := &template.Template{}
		if err := json.Unmarshal(body, tmpl); err != nil {
			rows.Close()
			return fmt.Errorf("failed to unmarshal template: %w", err)
		}
		modified = append(modified, tmpl)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	now := s.now().UTC()
	for _, t := range modified {
		prev := t.Version
		t.IsDefault = false
		t.Version++
		t.UpdatedAt = now
		if err := s.write(ctx, tx, t, prev, changedBy); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insert(ctx context.Context, tx *sql.Tx, tmpl *template.Template) error {
	body, err := json.Marshal(tmpl)
	if err != nil {
		return fmt.Errorf("failed to marshal template: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO templates (id, scope, name, is_default, is_active, version, updated_at, body)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		tmpl.ID, tmpl.Scope(), tmpl.Name, tmpl.IsDefault, tmpl.IsActive, tmpl.Version, tmpl.UpdatedAt, body)
	if err != nil {
		return fmt.Errorf("failed to insert template: %w", err)
	}
	return s.revision(ctx, tx, tmpl, body, tmpl.CreatedBy)
}

// write updates the row only when it still holds prevVersion.
func (s *Store) write(ctx context.Context, tx *sql.Tx, tmpl *template.Template, prevVersion int, changedBy string) error {
	body, err := json.Marshal(tmpl)
	if err != nil {
		return fmt.Errorf("failed to marshal template: %w", err)
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE templates
		SET scope = $2, name = $3, is_default = $4, is_active = $5, version = $6, updated_at = $7, body = $8
		WHERE id = $1 AND version = $9`,
		tmpl.ID, tmpl.Scope(), tmpl.Name, tmpl.IsDefault, tmpl.IsActive, tmpl.Version, tmpl.UpdatedAt, body, prevVersion)
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		current := 0
		tx.QueryRowContext(ctx, `SELECT version FROM templates WHERE id = $1`, tmpl.ID).Scan(&current)
		return &template.VersionConflictError{ID: tmpl.ID, Expected: prevVersion, Current: current}
	}
	return s.revision(ctx, tx, tmpl, body, changedBy)
}

func (s *Store) revision(ctx context.Context, tx *sql.Tx, tmpl *template.Template, body []byte, changedBy string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO template_revisions (template_id, version, changed_by, created_at, body)
		VALUES ($1, $2, $3, $4, $5)`,
		tmpl.ID, tmpl.Version, changedBy, tmpl.UpdatedAt, body)
	if err != nil {
		return fmt.Errorf("failed to insert revision: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner, id string) (*template.Template, error) {
	var body []byte
	if err := row.Scan(&body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", template.ErrTemplateNotFound, id)
		}
		return nil, err
	}
	tmpl := &template.Template{}
	if err := json.Unmarshal(body, tmpl); err != nil {
		return nil, fmt.Errorf("failed to unmarshal template %s: %w", id, err)
	}
	return tmpl, nil
}

func scanRevision(row rowScanner, id string) (*template.Revision, error) {
	rev := &template.Revision{TemplateID: id, Template: &template.Template{}}
	var body []byte
	if err := row.Scan(&rev.Version, &rev.ChangedBy, &rev.CreatedAt, &body); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, rev.Template); err != nil {
		return nil, fmt.Errorf("failed to unmarshal revision: %w", err)
	}
	return rev, nil
}

func lockScope(ctx context.Context, tx *sql.Tx, scope string) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, scopeLockKey(scope)); err != nil {
		return fmt.Errorf("failed to lock scope %s: %w", scope, err)
	}
	return nil
}

func scopeLockKey(scope string) int64 {
	h := fnv.New64a()
	h.Write([]byte("quotegen:template-scope:" + scope))
	return int64(h.Sum64())
}
