// Package objectstore keeps conversion inputs and outputs in a NATS
// JetStream object store bucket.
package objectstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

const (
	bucketDescription  = "PDF narrator inputs and generated audio."
	errFmtCreateBucket = "failed to create object store bucket '%s': %w"
	errFmtBindBucket   = "failed to bind to existing object store bucket '%s': %w"
	errFmtGetObject    = "failed to get object '%s' from bucket '%s': %w"
	errFmtPutObject    = "failed to put object '%s' to bucket '%s': %w"
	errFmtDeleteObject = "failed to delete object '%s' from bucket '%s': %w"
)

// ErrNotFound is returned by Download and Delete for unknown keys.
var ErrNotFound = errors.New("object not found")

// NatsObjectStore implements core.ObjectStore over a JetStream bucket.
type NatsObjectStore struct {
	bucket string
	store  jetstream.ObjectStore
}

// New creates the bucket, or binds to it when it already exists.
func New(ctx context.Context, js jetstream.JetStream, bucketName string) (*NatsObjectStore, error) {
	store, err := js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: bucketDescription,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) {
			return nil, fmt.Errorf(errFmtCreateBucket, bucketName, err)
		}

		store, err = js.ObjectStore(ctx, bucketName)
		if err != nil {
			return nil, fmt.Errorf(errFmtBindBucket, bucketName, err)
		}
	}

	return &NatsObjectStore{bucket: bucketName, store: store}, nil
}

// Download returns the content stored under key.
func (n *NatsObjectStore) Download(ctx context.Context, key string) ([]byte, error) {
	data, err := n.store.GetBytes(ctx, key)
	if err != nil {
		return nil, fmt.Errorf(errFmtGetObject, key, n.bucket, translate(err))
	}

	return data, nil
}

// Upload stores data under key, replacing any previous content.
func (n *NatsObjectStore) Upload(ctx context.Context, key string, data []byte) error {
	_, err := n.store.PutBytes(ctx, key, data)
	if err != nil {
		return fmt.Errorf(errFmtPutObject, key, n.bucket, err)
	}

	return nil
}

// Delete removes key from the bucket.
func (n *NatsObjectStore) Delete(ctx context.Context, key string) error {
	err := n.store.Delete(ctx, key)
	if err != nil {
		return fmt.Errorf(errFmtDeleteObject, key, n.bucket, translate(err))
	}

	return nil
}

func translate(err error) error {
	if errors.Is(err, jetstream.ErrObjectNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	return err
}
