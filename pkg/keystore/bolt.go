package keystore

import (
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var secretsBucket = []byte("secrets")

// Bolt is a secret store persisted in a bbolt database file.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the database at path and ensures the secrets
// bucket exists.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open keystore: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(secretsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init keystore: %w", err)
	}
	return &Bolt{db: db}, nil
}

// Put stores or replaces the secret for an account.
func (b *Bolt) Put(account string, secret []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(secretsBucket).Put([]byte(account), secret)
	})
}

// Delete removes an account's secret. Deleting an absent account is not an
// error.
func (b *Bolt) Delete(account string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(secretsBucket).Delete([]byte(account))
	})
}

// LookupSecret implements sharedkey.SecretResolver. Read failures are
// reported as absence; validation fails closed either way.
func (b *Bolt) LookupSecret(_ context.Context, account string) ([]byte, bool) {
	var secret []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket(secretsBucket).Get([]byte(account))
		if value != nil {
			secret = make([]byte, len(value))
			copy(secret, value)
		}
		return nil
	})
	if err != nil || secret == nil {
		return nil, false
	}
	return secret, true
}

// Close closes the underlying database.
func (b *Bolt) Close() error {
	return b.db.Close()
}
