package baseline

import (
	"context"

	"github.com/agubarev/aegis/pkg/codec"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

var profileBucket = []byte("PROFILE")

// BoltRepository keeps profiles in a bbolt file, CBOR-encoded
type BoltRepository struct {
	db *bbolt.DB
}

// NewBoltRepository initializes a bbolt-backed profile repository
func NewBoltRepository(db *bbolt.DB) (*BoltRepository, error) {
	if db == nil {
		return nil, ErrNilDatabase
	}

	r := &BoltRepository{db: db}

	return r, r.Init()
}

// Init creates the buckets if they don't exist yet
func (r *BoltRepository) Init() error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(profileBucket); err != nil {
			return errors.Wrap(err, "failed to create profile bucket")
		}

		return nil
	})
}

// Get returns a stored profile
func (r *BoltRepository) Get(ctx context.Context, deviceID uuid.UUID) (p Profile, err error) {
	err = r.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(profileBucket)
		if b == nil {
			return ErrBucketNotFound
		}

		data := b.Get(deviceID[:])
		if data == nil {
			return ErrProfileNotFound
		}

		// data is only valid within the transaction, decoding copies it
		return codec.Unmarshal(data, &p)
	})

	return p, err
}

// Put stores a profile
func (r *BoltRepository) Put(ctx context.Context, p Profile) error {
	if p.DeviceID == uuid.Nil {
		return ErrInvalidDeviceID
	}

	data, err := codec.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "failed to encode profile")
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(profileBucket)
		if b == nil {
			return ErrBucketNotFound
		}

		return b.Put(p.DeviceID[:], data)
	})
}

// Delete removes a stored profile
func (r *BoltRepository) Delete(ctx context.Context, deviceID uuid.UUID) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(profileBucket)
		if b == nil {
			return ErrBucketNotFound
		}

		return b.Delete(deviceID[:])
	})
}
