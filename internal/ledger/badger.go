package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/dgraph-io/badger/v4"

	"github.com/vk/dpgraph/internal/ctxlog"
	"github.com/vk/dpgraph/internal/privacy"
)

const (
	keyPrefix = "spent/"
	// maxConflictRetries bounds retries of a charge that raced another
	// writer on the same dataset.
	maxConflictRetries = 5
)

// Badger is a ledger persisted in a badger database.
type Badger struct {
	db *badger.DB
}

var _ Ledger = (*Badger)(nil)

// OpenBadger opens or creates the ledger database in dir. An empty dir keeps
// the database in memory.
func OpenBadger(dir string) (*Badger, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Spent(_ context.Context, dataset string) (privacy.Usage, error) {
	var u privacy.Usage
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		u, err = get(txn, dataset)
		return err
	})
	return u, err
}

func (b *Badger) Charge(ctx context.Context, datasets []string, u, lifetime privacy.Usage) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = b.db.Update(func(txn *badger.Txn) error {
			spent := make([]privacy.Usage, len(datasets))
			for i, d := range datasets {
				s, err := get(txn, d)
				if err != nil {
					return err
				}
				if err := check(d, s, u, lifetime); err != nil {
					return err
				}
				spent[i] = s
			}
			for i, d := range datasets {
				if err := txn.Set(key(d), encode(spent[i].Add(u))); err != nil {
					return err
				}
			}
			return nil
		})
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		ctxlog.FromContext(ctx).Debug("Ledger charge conflicted, retrying.", "attempt", attempt+1)
	}
	return err
}

func (b *Badger) Close() error {
	return b.db.Close()
}

func key(dataset string) []byte {
	return []byte(keyPrefix + dataset)
}

func get(txn *badger.Txn, dataset string) (privacy.Usage, error) {
	item, err := txn.Get(key(dataset))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return privacy.Usage{}, nil
	}
	if err != nil {
		return privacy.Usage{}, err
	}
	var u privacy.Usage
	err = item.Value(func(val []byte) error {
		if len(val) != 16 {
			return fmt.Errorf("invalid ledger entry length: %d", len(val))
		}
		u.Epsilon = math.Float64frombits(binary.BigEndian.Uint64(val[:8]))
		u.Delta = math.Float64frombits(binary.BigEndian.Uint64(val[8:]))
		return nil
	})
	return u, err
}

func encode(u privacy.Usage) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[:8], math.Float64bits(u.Epsilon))
	binary.BigEndian.PutUint64(buf[8:], math.Float64bits(u.Delta))
	return buf
}
