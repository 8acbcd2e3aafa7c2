package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

const keySep = 0x00

// BadgerBackend persists keys in a BadgerDB database as type\x00id.
type BadgerBackend struct {
	db     *badger.DB
	logger *slog.Logger
}

var _ Backend = (*BadgerBackend)(nil)

type badgerLogger struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLogger)(nil)

func (l *badgerLogger) Errorf(msg string, args ...any)   { l.logger.Error(fmt.Sprintf(msg, args...)) }
func (l *badgerLogger) Warningf(msg string, args ...any) { l.logger.Warn(fmt.Sprintf(msg, args...)) }
func (l *badgerLogger) Infof(msg string, args ...any)    { l.logger.Debug(fmt.Sprintf(msg, args...)) }
func (l *badgerLogger) Debugf(msg string, args ...any)   { l.logger.Debug(fmt.Sprintf(msg, args...)) }

// OpenBadger opens (creating if needed) a BadgerDB at dir. An empty dir opens
// an in-memory database.
func OpenBadger(dir string) (*BadgerBackend, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating badger directory: %w", err)
		}
		info, err := os.Stat(dir)
		if err != nil {
			return nil, fmt.Errorf("checking badger directory: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", dir)
		}
		opts = badger.DefaultOptions(dir)
	}
	logger := slog.Default().With("component", "badger")
	opts.Logger = &badgerLogger{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger at %q: %w", dir, err)
	}
	return &BadgerBackend{db: db, logger: logger}, nil
}

func badgerKey(typ, id string) []byte {
	k := make([]byte, 0, len(typ)+1+len(id))
	k = append(k, typ...)
	k = append(k, keySep)
	return append(k, id...)
}

func (b *BadgerBackend) Get(typ, id string) ([]byte, bool, error) {
	var out []byte
	err := b.db.View(func(tx *badger.Txn) error {
		item, err := tx.Get(badgerKey(typ, id))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func (b *BadgerBackend) Put(typ, id string, data []byte) error {
	return b.db.Update(func(tx *badger.Txn) error {
		return tx.Set(badgerKey(typ, id), data)
	})
}

// Scan visits the ids of typ in key order.
func (b *BadgerBackend) Scan(typ string, fn func(id string, data []byte) error) error {
	return b.ScanPrefix(typ, "", fn)
}

// ScanPrefix visits the ids of typ starting with prefix in key order.
func (b *BadgerBackend) ScanPrefix(typ, prefix string, fn func(id string, data []byte) error) error {
	typPrefix := badgerKey(typ, "")
	return b.db.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = badgerKey(typ, prefix)
		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			id := string(item.Key()[len(typPrefix):])
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(id, val); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerBackend) Close() error {
	if b.db.IsClosed() {
		return nil
	}
	return b.db.Close()
}
