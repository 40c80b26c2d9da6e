package boltstore

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/crystal-mush/mushkit/pkg/gamedb"
	"github.com/crystal-mush/mushkit/pkg/scripts"
	bbolt "go.etcd.io/bbolt"
)

// Store wraps a bbolt database and the in-memory object table it persists.
type Store struct {
	bolt  *bbolt.DB
	cache *gamedb.Database
}

// openTimeout bounds the wait for the file lock held by another process.
const openTimeout = 2 * time.Second

// Open opens or creates a bbolt database file and ensures all buckets exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketMeta, bucketObjects, bucketScripts} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return tx.Bucket(bucketMeta).Put(keyVersion, intToKey(schemaVersion))
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltstore: create buckets: %w", err)
	}

	return &Store{
		bolt:  db,
		cache: gamedb.NewDatabase(),
	}, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	if s.bolt != nil {
		return s.bolt.Close()
	}
	return nil
}

// DB returns the in-memory object table.
func (s *Store) DB() *gamedb.Database {
	return s.cache
}

// Attach replaces the in-memory table, e.g. with one built by a fixture
// before the store was opened.
func (s *Store) Attach(db *gamedb.Database) {
	s.cache = db
}

// Path returns the filesystem path of the underlying bbolt database.
func (s *Store) Path() string {
	if s.bolt != nil {
		return s.bolt.Path()
	}
	return ""
}

// PutObject persists a single object (write-through).
func (s *Store) PutObject(obj *gamedb.Object) error {
	return s.PutObjects(obj)
}

// PutObjects persists several objects and the allocator position in one
// transaction.
func (s *Store) PutObjects(objs ...*gamedb.Object) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketObjects)
		for _, obj := range objs {
			if obj == nil {
				continue
			}
			data, err := encode(obj)
			if err != nil {
				return fmt.Errorf("boltstore: encode object %s: %w", obj.DBRef, err)
			}
			if err := b.Put(refToKey(obj.DBRef), data); err != nil {
				return err
			}
		}
		return tx.Bucket(bucketMeta).Put(keyNextRef, refToKey(s.cache.NextRef()))
	})
}

// DeleteObject removes an object from bbolt.
func (s *Store) DeleteObject(ref gamedb.DBRef) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketObjects).Delete(refToKey(ref))
	})
}

// SaveAll writes every cached object, batching 1000 per transaction.
func (s *Store) SaveAll() error {
	all := s.cache.All()
	for i := 0; i < len(all); i += 1000 {
		end := min(i+1000, len(all))
		if err := s.PutObjects(all[i:end]...); err != nil {
			return err
		}
	}
	log.Printf("boltstore: saved %d objects", len(all))
	return nil
}

// LoadAll reads every stored object into the in-memory table.
func (s *Store) LoadAll() error {
	count := 0
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketObjects)
		err := b.ForEach(func(k, v []byte) error {
			obj, err := decode[gamedb.Object](v)
			if err != nil {
				return fmt.Errorf("decode object %s: %w", keyToRef(k), err)
			}
			s.cache.Put(obj)
			count++
			return nil
		})
		if err != nil {
			return err
		}
		// Deleted objects at the tail must not have their refs reused.
		if v := tx.Bucket(bucketMeta).Get(keyNextRef); v != nil {
			if next := keyToRef(v); next > 0 {
				s.cache.Reserve(next)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("boltstore: load objects: %w", err)
	}
	log.Printf("boltstore: loaded %d objects from %s", count, s.Path())
	return nil
}

// PutScript persists a script record keyed by its id.
func (s *Store) PutScript(rec *scripts.Record) error {
	data, err := encode(rec)
	if err != nil {
		return fmt.Errorf("boltstore: encode script %d: %w", rec.ID, err)
	}
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketScripts).Put(intToKey(rec.ID), data)
	})
}

// DeleteScript removes a persisted script record.
func (s *Store) DeleteScript(id int) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketScripts).Delete(intToKey(id))
	})
}

// LoadScripts returns every persisted script record in id order.
func (s *Store) LoadScripts() ([]scripts.Record, error) {
	var out []scripts.Record
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketScripts).ForEach(func(k, v []byte) error {
			rec, err := decode[scripts.Record](v)
			if err != nil {
				return fmt.Errorf("boltstore: decode script %d: %w", keyToInt(k), err)
			}
			out = append(out, *rec)
			return nil
		})
	})
	return out, err
}

// Backup creates a hot snapshot of the bbolt database using tx.WriteTo().
func (s *Store) Backup(path string) error {
	return s.bolt.View(func(tx *bbolt.Tx) error {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("boltstore: create backup %s: %w", path, err)
		}
		defer f.Close()
		if _, err := tx.WriteTo(f); err != nil {
			return fmt.Errorf("boltstore: write backup: %w", err)
		}
		log.Printf("boltstore: backup written to %s", path)
		return nil
	})
}

// HasData returns true if the bbolt database contains any objects.
func (s *Store) HasData() bool {
	hasData := false
	s.bolt.View(func(tx *bbolt.Tx) error {
		hasData = tx.Bucket(bucketObjects).Stats().KeyN > 0
		return nil
	})
	return hasData
}
