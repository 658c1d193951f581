package quota

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// BadgerStore keeps the quota record in an embedded BadgerDB.
type BadgerStore struct {
	db *badger.DB
}

// badgerLogger routes badger's internal logging to zerolog, demoting its
// chatty info output to debug.
type badgerLogger struct {
	logger zerolog.Logger
}

var _ badger.Logger = (*badgerLogger)(nil)

func (l *badgerLogger) Errorf(msg string, items ...any)   { l.logger.Error().Msgf(msg, items...) }
func (l *badgerLogger) Warningf(msg string, items ...any) { l.logger.Warn().Msgf(msg, items...) }
func (l *badgerLogger) Infof(msg string, items ...any)    { l.logger.Debug().Msgf(msg, items...) }
func (l *badgerLogger) Debugf(msg string, items ...any)   { l.logger.Trace().Msgf(msg, items...) }

// OpenBadgerStore opens (creating if needed) a BadgerDB at dir. With inMemory
// set, dir is ignored and nothing touches disk.
func OpenBadgerStore(dir string, inMemory bool) (*BadgerStore, error) {
	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create badger dir: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = &badgerLogger{logger: log.Logger.With().Str("component", "badger").Logger()}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (b *BadgerStore) Load(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return out, err
}

func (b *BadgerStore) Save(_ context.Context, key string, value []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

func (b *BadgerStore) Close() error {
	if b.db.IsClosed() {
		return nil
	}
	return b.db.Close()
}
