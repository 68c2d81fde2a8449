// Package autosave materializes a circle's photos into device-visible
// media storage at most once per device. Saved-photo markers live in a
// durable local store so the engine stays idempotent across process
// restarts.
package autosave

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Device-local keyspace. Markers are composite "{circleId}:{photoId}"
// keys under the saved/ prefix; the two booleans are the only other
// preferences the engine reads.
const (
	savedKeyPrefix   = "saved/"
	autoSaveKey      = "pref/autosave"
	notificationsKey = "pref/notifications"
)

// MarkerStore is the durable device-local set of already-saved photos
// plus the engine's preference toggles. Markers are written once and
// never removed.
type MarkerStore interface {
	IsSaved(circleID, photoID string) (bool, error)
	MarkSaved(circleID, photoID string) error
	AutoSaveEnabled() (bool, error)
	SetAutoSaveEnabled(enabled bool) error
	NotificationsEnabled() (bool, error)
	SetNotificationsEnabled(enabled bool) error
}

// BadgerStore is the badger-backed marker store.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) the marker database at path.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open marker store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func markerKey(circleID, photoID string) []byte {
	return []byte(savedKeyPrefix + circleID + ":" + photoID)
}

// IsSaved reports whether the photo has already been materialized on
// this device.
func (s *BadgerStore) IsSaved(circleID, photoID string) (bool, error) {
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(markerKey(circleID, photoID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to read marker: %w", err)
	}
	return found, nil
}

// MarkSaved records the photo as materialized. Markers are never
// removed.
func (s *BadgerStore) MarkSaved(circleID, photoID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(markerKey(circleID, photoID), []byte{1})
	})
	if err != nil {
		return fmt.Errorf("failed to write marker: %w", err)
	}
	return nil
}

// AutoSaveEnabled reads the auto-save toggle; absent defaults to true.
func (s *BadgerStore) AutoSaveEnabled() (bool, error) {
	return s.boolPref(autoSaveKey, true)
}

// SetAutoSaveEnabled writes the auto-save toggle.
func (s *BadgerStore) SetAutoSaveEnabled(enabled bool) error {
	return s.setBoolPref(autoSaveKey, enabled)
}

// NotificationsEnabled reads the notifications toggle; absent defaults
// to true.
func (s *BadgerStore) NotificationsEnabled() (bool, error) {
	return s.boolPref(notificationsKey, true)
}

// SetNotificationsEnabled writes the notifications toggle.
func (s *BadgerStore) SetNotificationsEnabled(enabled bool) error {
	return s.setBoolPref(notificationsKey, enabled)
}

func (s *BadgerStore) boolPref(key string, fallback bool) (bool, error) {
	value := fallback
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = len(val) == 1 && val[0] == 1
			return nil
		})
	})
	if err != nil {
		return fallback, fmt.Errorf("failed to read preference %s: %w", key, err)
	}
	return value, nil
}

func (s *BadgerStore) setBoolPref(key string, enabled bool) error {
	val := []byte{0}
	if enabled {
		val = []byte{1}
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), val)
	})
	if err != nil {
		return fmt.Errorf("failed to write preference %s: %w", key, err)
	}
	return nil
}
