package template

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketTemplates = []byte("templates")
	bucketRevisions = []byte("template_revisions")
)

// Storage provides template storage operations on bbolt. Write
// transactions are serialised by bbolt, which keeps SetDefault atomic.
type Storage struct {
	db  *bolt.DB
	now func() time.Time
}

var _ Store = (*Storage)(nil)

// NewStorage creates a new template storage
func NewStorage(db *bolt.DB) (*Storage, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketTemplates); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketRevisions); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create template buckets: %w", err)
	}
	return &Storage{db: db, now: time.Now}, nil
}

// Close is a no-op; the database handle belongs to the caller.
func (s *Storage) Close() error {
	return nil
}

// Create creates a new template
func (s *Storage) Create(ctx context.Context, tmpl *Template) error {
	tmpl.IsActive = true
	if err := Prepare(tmpl); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		now := s.now().UTC()
		tmpl.ID = uuid.New().String()
		tmpl.Version = 1
		tmpl.CreatedAt = now
		tmpl.UpdatedAt = now
		if tmpl.UpdatedBy == "" {
			tmpl.UpdatedBy = tmpl.CreatedBy
		}

		if tmpl.IsDefault {
			if err := s.clearDefaults(tx, tmpl.Scope(), tmpl.ID, tmpl.CreatedBy); err != nil {
				return err
			}
		}
		return s.put(tx, tmpl, tmpl.CreatedBy)
	})
}

// Get retrieves a template by ID, including inactive ones.
func (s *Storage) Get(ctx context.Context, id string) (*Template, error) {
	var tmpl *Template

	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		tmpl, err = getTemplate(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tmpl, nil
}

// GetDefault returns the active default of a scope. When more than one
// record claims the flag the most recently updated wins.
func (s *Storage) GetDefault(ctx context.Context, scope string) (*Template, error) {
	scope = NormalizeScope(scope)
	var best *Template

	err := s.db.View(func(tx *bolt.Tx) error {
		return forEach(tx, func(t *Template) error {
			if !t.IsDefault || !t.IsActive || t.Scope() != scope {
				return nil
			}
			if best == nil || t.UpdatedAt.After(best.UpdatedAt) {
				best = t
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no default in scope %s", ErrTemplateNotFound, scope)
	}
	return best, nil
}

// List returns templates with optional filtering, newest first.
func (s *Storage) List(ctx context.Context, filter ListFilter) ([]*Template, error) {
	var templates []*Template

	err := s.db.View(func(tx *bolt.Tx) error {
		return forEach(tx, func(t *Template) error {
			if filter.Matches(t) {
				templates = append(templates, t)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	SortNewestFirst(templates)
	return Paginate(templates, filter.Offset, filter.Limit), nil
}

// Update replaces a template. expectedVersion 0 skips the version check.
func (s *Storage) Update(ctx context.Context, tmpl *Template, expectedVersion int) error {
	if err := Prepare(tmpl); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		existing, err := getTemplate(tx, tmpl.ID)
		if err != nil {
			return err
		}
		if expectedVersion > 0 && existing.Version != expectedVersion {
			return &VersionConflictError{ID: tmpl.ID, Expected: expectedVersion, Current: existing.Version}
		}

		tmpl.Version = existing.Version + 1
		tmpl.CreatedAt = existing.CreatedAt
		tmpl.CreatedBy = existing.CreatedBy
		tmpl.UpdatedAt = s.now().UTC()

		if tmpl.IsDefault {
			if err := s.clearDefaults(tx, tmpl.Scope(), tmpl.ID, tmpl.UpdatedBy); err != nil {
				return err
			}
		}
		return s.put(tx, tmpl, tmpl.UpdatedBy)
	})
}

// Patch applies a partial update under an optimistic lock.
func (s *Storage) Patch(ctx context.Context, id string, patch Patch) (*Template, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	var updated *Template
	err := s.db.Update(func(tx *bolt.Tx) error {
		tmpl, err := getTemplate(tx, id)
		if err != nil {
			return err
		}
		if tmpl.Version != patch.ExpectedVersion {
			return &VersionConflictError{ID: id, Expected: patch.ExpectedVersion, Current: tmpl.Version}
		}

		patch.Apply(tmpl)
		if err := Prepare(tmpl); err != nil {
			return err
		}
		tmpl.Version++
		tmpl.UpdatedAt = s.now().UTC()

		// A default moved into another scope must not collide with that scope's default.
		if tmpl.IsDefault {
			if err := s.clearDefaults(tx, tmpl.Scope(), tmpl.ID, tmpl.UpdatedBy); err != nil {
				return err
			}
		}
		if err := s.put(tx, tmpl, tmpl.UpdatedBy); err != nil {
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

// SetDefault makes id the only default of its scope.
func (s *Storage) SetDefault(ctx context.Context, id string) (*Template, error) {
	var target *Template

	err := s.db.Update(func(tx *bolt.Tx) error {
		tmpl, err := getTemplate(tx, id)
		if err != nil {
			return err
		}
		if !tmpl.IsActive {
			return notFound(id)
		}

		if err := s.clearDefaults(tx, tmpl.Scope(), id, ""); err != nil {
			return err
		}
		if !tmpl.IsDefault {
			tmpl.IsDefault = true
			tmpl.Version++
			tmpl.UpdatedAt = s.now().UTC()
			if err := s.put(tx, tmpl, ""); err != nil {
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
func (s *Storage) SoftDelete(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		tmpl, err := getTemplate(tx, id)
		if err != nil {
			return err
		}
		if !tmpl.IsActive {
			return nil
		}
		tmpl.IsActive = false
		tmpl.IsDefault = false
		tmpl.Version++
		tmpl.UpdatedAt = s.now().UTC()
		return s.put(tx, tmpl, "")
	})
}

// Versions returns the stored revisions of a template, newest first.
func (s *Storage) Versions(ctx context.Context, id string) ([]Revision, error) {
	var revisions []Revision

	err := s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketTemplates).Get([]byte(id)) == nil {
			return notFound(id)
		}
		prefix := []byte(id + "/")
		c := tx.Bucket(bucketRevisions).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var rev Revision
			if err := json.Unmarshal(v, &rev); err != nil {
				return fmt.Errorf("failed to unmarshal revision %s: %w", k, err)
			}
			revisions = append(revisions, rev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(revisions, func(i, j int) bool {
		return revisions[i].Version > revisions[j].Version
	})
	return revisions, nil
}

// Revision returns one stored revision.
func (s *Storage) Revision(ctx context.Context, id string, version int) (*Revision, error) {
	var rev *Revision

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketRevisions).Get(revisionKey(id, version))
		if data == nil {
			return fmt.Errorf("%w: %s version %d", ErrTemplateNotFound, id, version)
		}
		rev = &Revision{}
		return json.Unmarshal(data, rev)
	})
	if err != nil {
		return nil, err
	}
	return rev, nil
}

// ActiveTemplates counts active templates for the metrics collector.
func (s *Storage) ActiveTemplates(ctx context.Context) (int, error) {
	n := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		return forEach(tx, func(t *Template) error {
			if t.IsActive {
				n++
			}
			return nil
		})
	})
	return n, err
}

// clearDefaults unsets the default flag on every other template of scope,
// bumping the version of each record it modifies.
func (s *Storage) clearDefaults(tx *bolt.Tx, scope, exceptID, changedBy string) error {
	var modified []*Template
	err := forEach(tx, func(t *Template) error {
		if t.ID != exceptID && t.IsDefault && t.Scope() == scope {
			modified = append(modified, t)
		}
		return nil
	})
	if err != nil {
		return err
	}

	now := s.now().UTC()
	for _, t := range modified {
		t.IsDefault = false
		t.Version++
		t.UpdatedAt = now
		if err := s.put(tx, t, changedBy); err != nil {
			return err
		}
	}
	return nil
}

// put stores the template and appends the matching revision.
func (s *Storage) put(tx *bolt.Tx, tmpl *Template, changedBy string) error {
	data, err := json.Marshal(tmpl)
	if err != nil {
		return fmt.Errorf("failed to marshal template: %w", err)
	}
	if err := tx.Bucket(bucketTemplates).Put([]byte(tmpl.ID), data); err != nil {
		return err
	}

	rev, err := json.Marshal(Revision{
		TemplateID: tmpl.ID,
		Version:    tmpl.Version,
		ChangedBy:  changedBy,
		CreatedAt:  tmpl.UpdatedAt,
		Template:   tmpl,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal revision: %w", err)
	}
	return tx.Bucket(bucketRevisions).Put(revisionKey(tmpl.ID, tmpl.Version), rev)
}

func getTemplate(tx *bolt.Tx, id string) (*Template, error) {
	data := tx.Bucket(bucketTemplates).Get([]byte(id))
	if data == nil {
		return nil, notFound(id)
	}
	tmpl := &Template{}
	if err := json.Unmarshal(data, tmpl); err != nil {
		return nil, fmt.Errorf("failed to unmarshal template %s: %w", id, err)
	}
	return tmpl, nil
}

func forEach(tx *bolt.Tx, fn func(*Template) error) error {
	c := tx.Bucket(bucketTemplates).Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		tmpl := &Template{}
		if err := json.Unmarshal(v, tmpl); err != nil {
			continue
		}
		if err := fn(tmpl); err != nil {
			return err
		}
	}
	return nil
}

func revisionKey(id string, version int) []byte {
	return []byte(fmt.Sprintf("%s/%010d", id, version))
}

// SortNewestFirst orders templates by UpdatedAt descending, ties by ID.
func SortNewestFirst(templates []*Template) {
	sort.SliceStable(templates, func(i, j int) bool {
		if !templates[i].UpdatedAt.Equal(templates[j].UpdatedAt) {
			return templates[i].UpdatedAt.After(templates[j].UpdatedAt)
		}
		return templates[i].ID < templates[j].ID
	})
}

// Paginate applies offset and limit to an already sorted slice.
func Paginate(templates []*Template, offset, limit int) []*Template {
	if offset > 0 {
		if offset >= len(templates) {
			return nil
		}
		templates = templates[offset:]
	}
	if limit > 0 && limit < len(templates) {
		templates = templates[:limit]
	}
	return templates
}
