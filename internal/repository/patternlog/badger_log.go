// Package patternlog is the badger-backed append-only log behind the
// pattern similarity index.
package patternlog

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"budgetPilot/business/patterns"
	"budgetPilot/domain"
	"budgetPilot/pkg/logger"

	"github.com/dgraph-io/badger/v4"
)

var (
	entryPrefix = []byte("pattern/")
	seqKey      = []byte("meta/pattern_seq")
)

type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path       string
	InMemory   bool
	SyncWrites bool
}

// BadgerLog stores entries under an increasing sequence so ReadAll returns
// them in append order.
type BadgerLog struct {
	db  *badger.DB
	seq *badger.Sequence
}

var _ patterns.VectorLog = (*BadgerLog)(nil)

func Open(cfg Config) (*BadgerLog, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent pattern log")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create pattern log directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open pattern log: %w", err)
	}
	seq, err := db.GetSequence(seqKey, 128)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open pattern sequence: %w", err)
	}
	return &BadgerLog{db: db, seq: seq}, nil
}

func (l *BadgerLog) Close() error {
	if err := l.seq.Release(); err != nil {
		logger.Warn("pattern_sequence_release_failed", "error", err)
	}
	return l.db.Close()
}

func entryKey(n uint64) []byte {
	k := make([]byte, len(entryPrefix)+8)
	copy(k, entryPrefix)
	binary.BigEndian.PutUint64(k[len(entryPrefix):], n)
	return k
}

// Append writes all entries in one transaction.
func (l *BadgerLog) Append(ctx context.Context, entries []domain.PatternEntry) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	return l.db.Update(func(txn *badger.Txn) error {
		for _, e := range entries {
			raw, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("marshal pattern %s: %w", e.ID, err)
			}
			n, err := l.seq.Next()
			if err != nil {
				return fmt.Errorf("next pattern sequence: %w", err)
			}
			if err := txn.Set(entryKey(n), raw); err != nil {
				return fmt.Errorf("write pattern %s: %w", e.ID, err)
			}
		}
		return nil
	})
}

func (l *BadgerLog) ReadAll(ctx context.Context) ([]domain.PatternEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	out := make([]domain.PatternEntry, 0)
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = entryPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var e domain.PatternEntry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			})
			if err != nil {
				return fmt.Errorf("decode pattern %x: %w", it.Item().Key(), err)
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read pattern log: %w", err)
	}
	return out, nil
}
