package docstore

import (
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bolt implements Store on a local bbolt file, one bucket per collection.
// It serves single-node deployments and tests; the consistency guarantees
// of the coherence layer do not depend on which Store backs it, only on
// upsert-by-id being idempotent, which a bucket put is.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt initializes or opens the store file at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("docstore: open %q: %w", path, err)
	}
	return &Bolt{db: db}, nil
}

// Upsert writes doc under (collection, id), creating the collection's
// bucket on first use.
func (b *Bolt) Upsert(_ context.Context, collection, id string, doc []byte) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists([]byte(collection))
		if err != nil {
			return err
		}
		return bkt.Put([]byte(id), doc)
	})
	if err != nil {
		return fmt.Errorf("docstore: upsert %s/%s: %w", collection, id, err)
	}
	return nil
}

// Load reads the document under (collection, id).
func (b *Bolt) Load(_ context.Context, collection, id string) ([]byte, bool, error) {
	var doc []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(collection))
		if bkt == nil {
			return nil
		}
		if v := bkt.Get([]byte(id)); v != nil {
			doc = make([]byte, len(v))
			copy(doc, v)
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("docstore: load %s/%s: %w", collection, id, err)
	}
	return doc, doc != nil, nil
}

// Close closes the underlying database file.
func (b *Bolt) Close(context.Context) error {
	return b.db.Close()
}
