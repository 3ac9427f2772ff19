package transcript

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync/atomic"

	badger "github.com/dgraph-io/badger/v4"
)

// turnPrefix namespaces turn keys. A key is the prefix followed by the
// big-endian append time in nanoseconds and a sequence number, so key order
// is append order.
var turnPrefix = []byte("turn/")

// Badger is a Store backed by BadgerDB v4.
type Badger struct {
	db  *badger.DB
	seq atomic.Uint64
}

var _ Store = (*Badger)(nil)

// BadgerOptions configures the BadgerDB store.
type BadgerOptions struct {
	// Dir is the directory for BadgerDB data files. Required unless InMemory.
	Dir string

	// InMemory runs BadgerDB without disk persistence.
	InMemory bool

	// Logger sets the badger logger. If nil, errors and warnings go to the
	// standard logger and everything else is dropped.
	Logger badger.Logger
}

// NewBadger opens a BadgerDB-backed Store.
func NewBadger(opts BadgerOptions) (*Badger, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("transcript: BadgerOptions.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	if opts.Logger != nil {
		dbOpts = dbOpts.WithLogger(opts.Logger)
	} else {
		dbOpts = dbOpts.WithLogger(defaultLogger{})
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("open transcript store: %w", err)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) key(turn Turn) []byte {
	k := make([]byte, 0, len(turnPrefix)+16)
	k = append(k, turnPrefix...)
	k = binary.BigEndian.AppendUint64(k, uint64(turn.Time.UnixNano()))
	k = binary.BigEndian.AppendUint64(k, b.seq.Add(1))
	return k
}

func (b *Badger) Append(_ context.Context, turn Turn) error {
	val, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("encode turn: %w", err)
	}
	k := b.key(turn)
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, val)
	})
	return mapClosed(err)
}

func (b *Badger) List(_ context.Context, limit int) ([]Turn, error) {
	var turns []Turn
	err := b.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = turnPrefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(turnPrefix); it.ValidForPrefix(turnPrefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var turn Turn
			if err := json.Unmarshal(val, &turn); err != nil {
				return fmt.Errorf("decode turn: %w", err)
			}
			turns = append(turns, turn)
		}
		return nil
	})
	if err != nil {
		return nil, mapClosed(err)
	}
	return tail(turns, limit), nil
}

func (b *Badger) Clear(_ context.Context) error {
	return mapClosed(b.db.DropPrefix(turnPrefix))
}

func (b *Badger) Close() error {
	return b.db.Close()
}

func mapClosed(err error) error {
	if errors.Is(err, badger.ErrDBClosed) {
		return ErrClosed
	}
	return err
}

// defaultLogger wraps the standard log package for badger, suppressing
// debug and info level messages.
type defaultLogger struct{}

func (defaultLogger) Errorf(f string, v ...interface{}) { log.Printf("[badger] ERROR: "+f, v...) }
func (defaultLogger) Warningf(f string, v ...interface{}) {
	log.Printf("[badger] WARN: "+f, v...)
}
func (defaultLogger) Infof(string, ...interface{})  {}
func (defaultLogger) Debugf(string, ...interface{}) {}
