package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketSessions = []byte("sessions")
	keyCurrent     = []byte("current")

	// ErrNotFound is returned when no credential has been persisted.
	ErrNotFound = errors.New("session: no stored credential")
	// ErrExpired is returned when the persisted credential is past its
	// expiry or revoked; Load clears it rather than letting a caller
	// attempt reconnection with it.
	ErrExpired = errors.New("session: stored credential expired")
)

// Store persists the session credential across restarts.
type Store struct {
	db *bolt.DB
}

// NewStore opens (and migrates) the credential store at path.
func NewStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("session: open store: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSessions)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("session: migrate store: %w", err)
	}
	return &Store{db: db}, nil
}

// Save persists the credential, replacing any previous one.
func (s *Store) Save(cred *Credential) error {
	if cred == nil {
		return fmt.Errorf("session: credential required")
	}
	payload, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("session: encode credential: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).Put(keyCurrent, payload)
	})
}

// Load returns the persisted credential if it is still usable at the given
// time. An expired or revoked credential is deleted and reported as
// ErrExpired.
func (s *Store) Load(now time.Time) (*Credential, error) {
	var cred *Credential
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketSessions)
		raw := bucket.Get(keyCurrent)
		if raw == nil {
			return ErrNotFound
		}
		var c Credential
		if err := json.Unmarshal(raw, &c); err != nil {
			// A corrupt record is as useless as an expired one.
			_ = bucket.Delete(keyCurrent)
			return ErrExpired
		}
		if !c.Valid(now) {
			if err := bucket.Delete(keyCurrent); err != nil {
				return err
			}
			return ErrExpired
		}
		cred = &c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cred, nil
}

// Clear removes any persisted credential.
func (s *Store) Clear() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).Delete(keyCurrent)
	})
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
