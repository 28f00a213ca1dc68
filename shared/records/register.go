// Package records treats the bucket as a state register: a record's stage is
// the folder its key lives under.
package records

import (
	"context"
	"errors"
	"fmt"

	"rawci/shared/model"
	"rawci/shared/objectstore"
	"rawci/shared/stage"
)

var ErrRecordNotFound = errors.New("build record not found")

type Register struct {
	store     objectstore.Store
	locations stage.Locations
}

func NewRegister(store objectstore.Store, locations stage.Locations) *Register {
	return &Register{store: store, locations: locations}
}

func (r *Register) Locations() stage.Locations {
	return r.locations
}

// Put writes record at <stage>/<sha> and returns the key it was written to.
func (r *Register) Put(ctx context.Context, s model.Stage, record *model.BuildRecord) (string, error) {
	body, err := model.Encode(record)
	if err != nil {
		return "", err
	}
	key := r.locations.Key(s, record.GitSha)
	if err := r.store.Put(ctx, key, body, "application/json"); err != nil {
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	return key, nil
}

// Get fetches and decodes the record at key, pinned to generation when given.
func (r *Register) Get(ctx context.Context, key, generation string) (*model.BuildRecord, error) {
	body, err := r.store.Get(ctx, key, generation)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s@%s", ErrRecordNotFound, key, generation)
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return model.Decode(body)
}

// Delete removes exactly the key that was notified, never a key rebuilt from
// stage and sha.
func (r *Register) Delete(ctx context.Context, key string) error {
	if err := r.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// URL is the fully qualified location published to the queue.
func (r *Register) URL(key string) string {
	return r.store.URL(key)
}

func (r *Register) Bucket() string {
	return r.store.Bucket()
}
