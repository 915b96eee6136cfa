package badger

import (
	"context"
	"encoding/binary"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/scholarquery/core"
	"github.com/poiesic/scholarquery/storage"
)

// ClusteringRepository implements storage.ClusteringRepository for BadgerDB.
// Snapshots are immutable; saving a version overwrites only the latest
// pointer, never an earlier snapshot's content.
type ClusteringRepository struct {
	backend *Backend
}

var _ storage.ClusteringRepository = (*ClusteringRepository)(nil)

// NewClusteringRepository creates a clustering repository over the backend.
func NewClusteringRepository(backend *Backend) (storage.ClusteringRepository, error) {
	return &ClusteringRepository{backend: backend}, nil
}

// Close is a no-op; the backend owns the database handle.
func (r *ClusteringRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *ClusteringRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// SaveClustering stores a clustering snapshot and marks it latest.
func (r *ClusteringRepository) SaveClustering(ctx context.Context, clustering *core.Clustering) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeClusteringKey(clustering.Version)
		if err := tx.Set(key, storage.MarshalClustering(clustering)); err != nil {
			return err
		}

		latest := make([]byte, 8)
		binary.BigEndian.PutUint64(latest, clustering.Version)
		if err := tx.Set(makeClusteringLatestKey(), latest); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetClustering retrieves a snapshot by version.
func (r *ClusteringRepository) GetClustering(ctx context.Context, version uint64) (*core.Clustering, error) {
	var result *core.Clustering
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeClusteringKey(version))
		if err == badger.ErrKeyNotFound {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var err error
			result, err = storage.UnmarshalClustering(val)
			return err
		})
	}, false)
	return result, err
}

// LatestClustering retrieves the most recently saved snapshot.
func (r *ClusteringRepository) LatestClustering(ctx context.Context) (*core.Clustering, error) {
	var version uint64
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeClusteringLatestKey())
		if err == badger.ErrKeyNotFound {
			return storage.ErrNoClustering
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			version = binary.BigEndian.Uint64(val)
			return nil
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return r.GetClustering(ctx, version)
}
