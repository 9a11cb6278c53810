package series

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketPoints = []byte("points")

// BoltStore implements Store on bbolt. Each model gets a nested bucket keyed
// by timestamp then benchmark id, so a cursor walk is chronological.
type BoltStore struct {
	db *bolt.DB
}

var _ Store = (*BoltStore)(nil)

// NewBoltStore opens (and creates if needed) the series file at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open series db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketPoints); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketPoints, err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Append(ctx context.Context, p Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.ModelID <= 0 || p.At.IsZero() {
		return fmt.Errorf("model %d at %v: %w", p.ModelID, p.At, ErrInvalidPoint)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(bucketPoints).CreateBucketIfNotExists(idKey(p.ModelID))
		if err != nil {
			return err
		}
		return b.Put(pointKey(p.At, p.BenchmarkID), data)
	})
}

func (s *BoltStore) Range(ctx context.Context, modelID int64, from, to time.Time, limit int) ([]Point, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit < 0 || (!to.IsZero() && to.Before(from)) {
		return nil, ErrInvalidRange
	}

	out := []Point{}
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPoints).Bucket(idKey(modelID))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Seek(pointKey(from, 0)); k != nil; k, v = c.Next() {
			if !to.IsZero() && keyTime(k) >= to.UnixNano() {
				break
			}
			var p Point
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			out = append(out, p)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, err
}

func idKey(id int64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(id))
	return k
}

// pointKey is big-endian nanos then id; timestamps before 1970 clamp to zero.
func pointKey(at time.Time, id int64) []byte {
	ns := at.UnixNano()
	if at.IsZero() || ns < 0 {
		ns = 0
	}
	k := make([]byte, 16)
	binary.BigEndian.PutUint64(k[:8], uint64(ns))
	binary.BigEndian.PutUint64(k[8:], uint64(id))
	return k
}

func keyTime(k []byte) int64 {
	return int64(binary.BigEndian.Uint64(k[:8]))
}
