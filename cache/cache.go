// Package cache persists completed caption sessions in a local Badger store.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/TienVM2004/mai-live/internal/types"
)

// DefaultTTL is how long an archived session is kept.
const DefaultTTL = 7 * 24 * time.Hour

// ErrNotFound is returned when no archive exists for a session uid.
var ErrNotFound = errors.New("cache: session not found")

const keyPrefix = "session:"

// Archive is one completed caption session.
type Archive struct {
	UID       string          `json:"uid"`
	StartedAt time.Time       `json:"startedAt"`
	Segments  []types.Segment `json:"segments"`
	Summary   string          `json:"summary,omitempty"`
}

// Store is a Badger-backed session archive.
type Store struct {
	db *badger.DB
}

// New opens (or creates) the archive at path.
func New(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cache at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close flushes and closes the underlying store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put archives a session under its uid with the default TTL.
func (s *Store) Put(archive Archive) error {
	if archive.UID == "" {
		return errors.New("cache: archive without uid")
	}
	data, err := json.Marshal(archive)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", archive.UID, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(keyPrefix+archive.UID), data).WithTTL(DefaultTTL)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("store session %s: %w", archive.UID, err)
	}
	return nil
}

// Get returns the archived session for uid, or ErrNotFound.
func (s *Store) Get(uid string) (Archive, error) {
	var archive Archive
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + uid))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &archive)
		})
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Archive{}, ErrNotFound
		}
		return Archive{}, fmt.Errorf("load session %s: %w", uid, err)
	}
	return archive, nil
}

// Recent returns up to n archived sessions, newest first.
func (s *Store) Recent(n int) ([]Archive, error) {
	var archives []Archive
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var archive Archive
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &archive)
			})
			if err != nil {
				continue
			}
			archives = append(archives, archive)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	sort.Slice(archives, func(i, j int) bool {
		return archives[i].StartedAt.After(archives[j].StartedAt)
	})
	if n > 0 && len(archives) > n {
		archives = archives[:n]
	}
	return archives, nil
}
