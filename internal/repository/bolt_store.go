package repository

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	bolt "go.etcd.io/bbolt"

	"SignalTrack/internal/domain/models"
	"SignalTrack/internal/domain/repository"
)

var (
	bucketSignals   = []byte("signals")
	bucketPending   = []byte("signals_pending")
	bucketResolved  = []byte("signals_resolved") // resolved_at(ns) || id -> id
	bucketModels    = []byte("model_versions")
	bucketSnapshots = []byte("snapshots")
	bucketMeta      = []byte("meta")

	keyActive = []byte("active_version")
)

// BoltStore persists signals, model versions and snapshots in a bbolt file.
// bbolt serializes write transactions, so each conditional update below is a
// single read-check-write inside one Update.
type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(path string, timeout time.Duration) (*BoltStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("open bolt store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketSignals, bucketPending, bucketResolved, bucketModels, bucketSnapshots, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (b *BoltStore) Close() error { return b.db.Close() }

func (b *BoltStore) Create(_ context.Context, s *models.Signal) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		sb := tx.Bucket(bucketSignals)
		if sb.Get([]byte(s.ID)) != nil {
			return &models.DuplicateSignalError{ID: s.ID}
		}
		if err := putJSON(sb, []byte(s.ID), s); err != nil {
			return err
		}
		return tx.Bucket(bucketPending).Put([]byte(s.ID), nil)
	})
}

func (b *BoltStore) Get(_ context.Context, id string) (*models.Signal, error) {
	var s *models.Signal
	err := b.db.View(func(tx *bolt.Tx) error {
		var err error
		s, err = getSignal(tx, id)
		return err
	})
	return s, err
}

func (b *BoltStore) ListPending(_ context.Context) ([]*models.Signal, error) {
	out := make([]*models.Signal, 0)
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPending).ForEach(func(k, _ []byte) error {
			s, err := getSignal(tx, string(k))
			if err != nil {
				return err
			}
			out = append(out, s)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortPending(out)
	return out, nil
}

func (b *BoltStore) ListResolvedSince(_ context.Context, since time.Time) ([]*models.Signal, error) {
	out := make([]*models.Signal, 0)
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketResolved).Cursor()
		for k, v := c.Seek(timeKey(since)); k != nil; k, v = c.Next() {
			s, err := getSignal(tx, string(v))
			if err != nil {
				return err
			}
			out = append(out, s)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortResolved(out)
	return out, nil
}

func (b *BoltStore) Transition(_ context.Context, id string, to models.State, resolvedAt time.Time, resolvedPrice *decimal.Decimal, obs *models.Observation) (*models.Signal, error) {
	var out *models.Signal
	err := b.db.Update(func(tx *bolt.Tx) error {
		s, err := getSignal(tx, id)
		if err != nil {
			return err
		}
		if err := applyTransition(s, to, resolvedAt, resolvedPrice, obs); err != nil {
			return err
		}
		if err := putJSON(tx.Bucket(bucketSignals), []byte(id), s); err != nil {
			return err
		}
		if err := tx.Bucket(bucketPending).Delete([]byte(id)); err != nil {
			return err
		}
		if err := tx.Bucket(bucketResolved).Put(resolvedKey(*s.ResolvedAt, id), []byte(id)); err != nil {
			return err
		}
		out = s
		return nil
	})
	return out, err
}

func (b *BoltStore) RecordObservation(_ context.Context, id string, obs models.Observation) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		s, err := getSignal(tx, id)
		if err != nil {
			return err
		}
		if err := applyObservation(s, obs); err != nil {
			return err
		}
		return putJSON(tx.Bucket(bucketSignals), []byte(id), s)
	})
}

func (b *BoltStore) SaveCandidate(_ context.Context, v *models.ModelVersion) (int64, error) {
	var id int64
	err := b.db.Update(func(tx *bolt.Tx) error {
		mb := tx.Bucket(bucketModels)
		seq, err := mb.NextSequence()
		if err != nil {
			return err
		}
		c := v.Clone()
		c.VersionID = int64(seq)
		c.Status = models.ModelCandidate
		if err := putJSON(mb, u64Key(seq), c); err != nil {
			return err
		}
		id = c.VersionID
		return nil
	})
	return id, err
}

// Promote keeps the single active row invariant by reading the active pointer,
// checking it against expectedActive and rewriting both versions in one tx.
func (b *BoltStore) Promote(_ context.Context, versionID, expectedActive int64, at time.Time) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		mb := tx.Bucket(bucketModels)
		meta := tx.Bucket(bucketMeta)

		target, err := getModel(mb, versionID)
		if err != nil {
			return err
		}
		var active *models.ModelVersion
		if raw := meta.Get(keyActive); raw != nil {
			active, err = getModel(mb, int64(binary.BigEndian.Uint64(raw)))
			if err != nil {
				return err
			}
		}
		if err := applyPromotion(target, active, versionID, expectedActive, at); err != nil {
			return err
		}
		if active != nil {
			if err := putJSON(mb, u64Key(uint64(active.VersionID)), active); err != nil {
				return err
			}
		}
		if err := putJSON(mb, u64Key(uint64(target.VersionID)), target); err != nil {
			return err
		}
		return meta.Put(keyActive, u64Key(uint64(target.VersionID)))
	})
}

func (b *BoltStore) ActiveModel(_ context.Context) (*models.ModelVersion, error) {
	var out *models.ModelVersion
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketMeta).Get(keyActive)
		if raw == nil {
			return fmt.Errorf("active model: %w", models.ErrNotFound)
		}
		var err error
		out, err = getModel(tx.Bucket(bucketModels), int64(binary.BigEndian.Uint64(raw)))
		return err
	})
	return out, err
}

func (b *BoltStore) LatestModel(_ context.Context) (*models.ModelVersion, error) {
	var out *models.ModelVersion
	err := b.db.View(func(tx *bolt.Tx) error {
		k, v := tx.Bucket(bucketModels).Cursor().Last()
		if k == nil {
			return fmt.Errorf("latest model: %w", models.ErrNotFound)
		}
		out = &models.ModelVersion{}
		return json.Unmarshal(v, out)
	})
	return out, err
}

func (b *BoltStore) ListModels(_ context.Context) ([]*models.ModelVersion, error) {
	out := make([]*models.ModelVersion, 0)
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketModels).ForEach(func(_, v []byte) error {
			var m models.ModelVersion
			if err := json.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("decode model: %w", err)
			}
			out = append(out, &m)
			return nil
		})
	})
	return out, err
}

func (b *BoltStore) SaveSnapshot(_ context.Context, s *models.PerformanceSnapshot) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		sb := tx.Bucket(bucketSnapshots)
		seq, err := sb.NextSequence()
		if err != nil {
			return err
		}
		s.Seq = seq
		return putJSON(sb, u64Key(seq), s)
	})
}

func (b *BoltStore) LatestSnapshots(_ context.Context, n int) ([]*models.PerformanceSnapshot, error) {
	out := make([]*models.PerformanceSnapshot, 0)
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketSnapshots).Cursor()
		for k, v := c.Last(); k != nil && (n <= 0 || len(out) < n); k, v = c.Prev() {
			var s models.PerformanceSnapshot
			if err := json.Unmarshal(v, &s); err != nil {
				return fmt.Errorf("decode snapshot: %w", err)
			}
			out = append(out, &s)
		}
		return nil
	})
	return out, err
}

func getSignal(tx *bolt.Tx, id string) (*models.Signal, error) {
	raw := tx.Bucket(bucketSignals).Get([]byte(id))
	if raw == nil {
		return nil, fmt.Errorf("signal %s: %w", id, models.ErrNotFound)
	}
	var s models.Signal
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode signal %s: %w", id, err)
	}
	return &s, nil
}

func getModel(mb *bolt.Bucket, id int64) (*models.ModelVersion, error) {
	raw := mb.Get(u64Key(uint64(id)))
	if raw == nil {
		return nil, fmt.Errorf("model v%d: %w", id, models.ErrNotFound)
	}
	var m models.ModelVersion
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode model v%d: %w", id, err)
	}
	return &m, nil
}

func putJSON(b *bolt.Bucket, key []byte, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return b.Put(key, raw)
}

func u64Key(v uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, v)
	return k
}

// timeKey orders by time; pre-epoch times clamp to zero.
func timeKey(t time.Time) []byte {
	ns := t.UnixNano()
	if t.IsZero() || ns < 0 {
		ns = 0
	}
	return u64Key(uint64(ns))
}

func resolvedKey(t time.Time, id string) []byte {
	return append(timeKey(t), id...)
}

var _ repository.Store = (*BoltStore)(nil)
