// BadgerBacking persists warm- and cold-tier records through badger, the
// teacher's primary KV engine (pkg/storage/badger.go). Badger's LSM value
// log is itself memory-mapped, which is what stands in for spec §4.D's
// "append-only memory-mapped file" for the warm tier — see DESIGN.md for why
// this project doesn't hand-roll its own mmap syscalls for that tier.
package storage

import (
	"bytes"
	"encoding/gob"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/chitta-project/chitta/internal/node"
)

// BadgerBacking implements Backing over a single badger.DB.
type BadgerBacking struct {
	db *badger.DB
}

// OpenBadgerBacking opens (creating if absent) a badger store at dir.
// inMemory, when true, skips the filesystem entirely (useful for the cold
// tier in tests, or for ephemeral deployments).
func OpenBadgerBacking(dir string, inMemory bool) (*BadgerBacking, error) {
	opts := badger.DefaultOptions(dir)
	opts = opts.WithLogger(nil)
	opts = opts.WithCompression(options.ZSTD)
	if inMemory {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerBacking{db: db}, nil
}

func (b *BadgerBacking) Put(id node.ID, rec Record) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(id), buf.Bytes())
	})
}

func (b *BadgerBacking) Get(id node.ID) (Record, bool, error) {
	var rec Record
	found := false
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return gob.NewDecoder(bytes.NewReader(val)).Decode(&rec)
		})
	})
	return rec, found, err
}

func (b *BadgerBacking) Delete(id node.ID) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(id))
	})
}

func (b *BadgerBacking) ForEach(fn func(node.ID, Record) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			id := node.ID(append([]byte(nil), item.Key()...))
			var rec Record
			err := item.Value(func(val []byte) error {
				return gob.NewDecoder(bytes.NewReader(val)).Decode(&rec)
			})
			if err != nil {
				return err
			}
			if err := fn(id, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close flushes and closes the underlying badger database. This is also
// where spec §4.D's sync() behavior ("flushes warm mmap") happens in
// practice — badger's own Sync/Flatten does the mmap flush for us.
func (b *BadgerBacking) Close() error {
	return b.db.Close()
}

// Sync forces badger to persist its value log and LSM levels to disk,
// standing in for the "flushes warm mmap" half of spec §4.D's sync().
func (b *BadgerBacking) Sync() error {
	return b.db.Sync()
}
