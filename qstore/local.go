package qstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/xoltia/karaokeq/queue"
)

const version uint32 = 1

var ErrVersionMismatch = errors.New("version mismatch")

type recordType byte

const (
	recordTypeVersion recordType = iota
	recordTypeQueue
	recordTypeRateLimit
)

// DB is the badger-backed store owned by the actor process. Queue values
// are stored as JSON under a record-type prefix; rate-limit entries get one
// key per (domain, session) so that every write replaces a whole value.
type DB struct {
	db *badger.DB
}

// Open opens (or creates) the store at path. Pass ":memory:" for an
// in-memory store, used in tests.
func Open(path string) (*DB, error) {
	var opts badger.Options
	if path == ":memory:" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	if v, err := checkVersion(db); err != nil {
		return nil, err
	} else if v != version {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrVersionMismatch, version, v)
	}

	return &DB{db: db}, nil
}

func (s *DB) Close() error {
	return s.db.Close()
}

// GC reclaims badger value-log space. Safe to run in the background.
func (s *DB) GC() (err error) {
	err = s.db.RunValueLogGC(0.3)
	for err == nil {
		err = s.db.RunValueLogGC(0.3)
	}
	if err == badger.ErrNoRewrite {
		err = nil
	}
	return
}

func (s *DB) GetQueue(_ context.Context, domain string) (q queue.Queue, ok bool, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(queueKey(domain))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &q)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return q, true, nil
}

func (s *DB) PutQueue(_ context.Context, domain string, q queue.Queue) error {
	if q == nil {
		q = queue.Queue{}
	}
	val, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("cannot encode queue: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(queueKey(domain), val)
	})
}

func (s *DB) DeleteQueue(_ context.Context, domain string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(queueKey(domain))
	})
}

func (s *DB) GetRateLimit(_ context.Context, domain, session string) (ms int64, ok bool, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(rateLimitKey(domain, session))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			ms = int64(binary.BigEndian.Uint64(val))
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return ms, true, nil
}

func (s *DB) PutRateLimit(_ context.Context, domain, session string, ms int64) error {
	var val [8]byte
	binary.BigEndian.PutUint64(val[:], uint64(ms))
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(rateLimitKey(domain, session), val[:])
	})
}

func queueKey(domain string) []byte {
	k := make([]byte, 0, len(domain)+1)
	k = append(k, byte(recordTypeQueue))
	k = append(k, domain...)
	return k
}

// rateLimitKey separates domain and session with a NUL so that one
// domain's entries can never shadow another's.
func rateLimitKey(domain, session string) []byte {
	k := make([]byte, 0, len(domain)+len(session)+2)
	k = append(k, byte(recordTypeRateLimit))
	k = append(k, domain...)
	k = append(k, 0)
	k = append(k, session...)
	return k
}

func checkVersion(db *badger.DB) (v uint32, err error) {
	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte{byte(recordTypeVersion)})
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			v = binary.BigEndian.Uint32(val)
			return nil
		})
	})
	// Set version if not set already (first run)
	if errors.Is(err, badger.ErrKeyNotFound) {
		err = db.Update(func(txn *badger.Txn) error {
			var versionBytes [4]byte
			binary.BigEndian.PutUint32(versionBytes[:], version)
			return txn.Set([]byte{byte(recordTypeVersion)}, versionBytes[:])
		})
		v = version
	}
	return
}
