package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/aspcranes/quotegen/internal/merge"
)

var bucketQuotations = []byte("quotations")

// Storage keeps quotation snapshots in bbolt.
type Storage struct {
	db  *bolt.DB
	now func() time.Time
}

var _ Source = (*Storage)(nil)

// NewStorage creates a new quotation storage
func NewStorage(db *bolt.DB) (*Storage, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketQuotations)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create quotations bucket: %w", err)
	}
	return &Storage{db: db, now: time.Now}, nil
}

// Put stores q, assigning an id when it has none.
func (s *Storage) Put(ctx context.Context, q *Quotation) error {
	if err := q.Validate(); err != nil {
		return err
	}
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	q.UpdatedAt = s.now().UTC()

	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("failed to marshal quotation: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketQuotations).Put([]byte(q.ID), data)
	})
}

// Get retrieves a quotation by ID
func (s *Storage) Get(ctx context.Context, id string) (*Quotation, error) {
	var q *Quotation

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketQuotations).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrQuotationNotFound, id)
		}
		q = &Quotation{}
		return json.Unmarshal(data, q)
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

// Delete removes a quotation.
func (s *Storage) Delete(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketQuotations)
		if b.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s", ErrQuotationNotFound, id)
		}
		return b.Delete([]byte(id))
	})
}

// List returns up to limit quotations, most recently updated first.
// A limit of 0 returns all of them.
func (s *Storage) List(ctx context.Context, limit int) ([]*Quotation, error) {
	var quotations []*Quotation

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketQuotations).ForEach(func(k, v []byte) error {
			q := &Quotation{}
			if err := json.Unmarshal(v, q); err != nil {
				return nil
			}
			quotations = append(quotations, q)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(quotations, func(i, j int) bool {
		if !quotations[i].UpdatedAt.Equal(quotations[j].UpdatedAt) {
			return quotations[i].UpdatedAt.After(quotations[j].UpdatedAt)
		}
		return quotations[i].ID < quotations[j].ID
	})
	if limit > 0 && len(quotations) > limit {
		quotations = quotations[:limit]
	}
	return quotations, nil
}

// Context loads a quotation and returns its merge context.
func (s *Storage) Context(ctx context.Context, id string) (merge.Context, error) {
	q, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return q.Context(), nil
}
