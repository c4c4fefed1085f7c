// Package sidekv is the side store for per-domain admin tokens and
// tunables. Reads go through a short-TTL cache, so values can be stale for
// up to the TTL; callers must treat the cached path as a fast path only
// and never as authoritative for the queue itself.
package sidekv

import (
	"errors"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/ristretto/v2"
)

const defaultTTL = time.Minute

type KV struct {
	db    *badger.DB
	cache *ristretto.Cache[string, []byte]
	ttl   time.Duration
}

type Option func(*KV)

// WithTTL overrides how long cached reads may lag behind writes from
// other processes.
func WithTTL(ttl time.Duration) Option {
	return func(kv *KV) {
		if ttl > 0 {
			kv.ttl = ttl
		}
	}
}

// Open opens (or creates) the side store at path. Pass ":memory:" for an
// in-memory store, used in tests.
func Open(path string, opts ...Option) (*KV, error) {
	var badgerOpts badger.Options
	if path == ":memory:" {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		badgerOpts = badger.DefaultOptions(path)
	}
	badgerOpts.Logger = nil
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, err
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: 10_000,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	kv := &KV{db: db, cache: cache, ttl: defaultTTL}
	for _, opt := range opts {
		opt(kv)
	}
	return kv, nil
}

func (kv *KV) Close() error {
	kv.cache.Close()
	return kv.db.Close()
}

// Get reads a key through the TTL cache.
func (kv *KV) Get(key string) ([]byte, bool, error) {
	if val, ok := kv.cache.Get(key); ok {
		return val, true, nil
	}
	val, ok, err := kv.GetFresh(key)
	if err != nil || !ok {
		return nil, false, err
	}
	kv.cache.SetWithTTL(key, val, int64(len(val)), kv.ttl)
	return val, true, nil
}

// GetFresh bypasses the cache and reads the stored value directly. Used
// where staleness is not acceptable, such as the self-healing queue read.
func (kv *KV) GetFresh(key string) ([]byte, bool, error) {
	var val []byte
	err := kv.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (kv *KV) Put(key string, val []byte) error {
	if err := kv.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), val)
	}); err != nil {
		return err
	}
	kv.cache.Del(key)
	return nil
}

func (kv *KV) Delete(key string) error {
	if err := kv.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	}); err != nil {
		return err
	}
	kv.cache.Del(key)
	return nil
}
