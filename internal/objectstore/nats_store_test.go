// Package objectstore_test tests the NATS object store implementation.
package objectstore_test

import (
	"context"
	"testing"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/pdf-narrator/internal/objectstore"
)

// startJetStream runs an in-process NATS server with JetStream enabled.
func startJetStream(t *testing.T) (*server.Server, jetstream.JetStream) {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	natsServer := test.RunServer(&opts)
	t.Cleanup(natsServer.Shutdown)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	require.NoError(t, err)
	t.Cleanup(natsConnection.Close)

	js, err := jetstream.New(natsConnection)
	require.NoError(t, err)

	return natsServer, js
}

func TestNatsObjectStore_UploadDownloadDelete(t *testing.T) {
	t.Parallel()

	_, js := startJetStream(t)
	ctx := context.Background()

	store, err := objectstore.New(ctx, js, "narrator-test")
	require.NoError(t, err)

	pdf := []byte("%PDF-1.4 not really a pdf")

	require.NoError(t, store.Upload(ctx, "inputs/book.pdf", pdf))

	downloaded, err := store.Download(ctx, "inputs/book.pdf")
	require.NoError(t, err)
	assert.Equal(t, pdf, downloaded)

	require.NoError(t, store.Upload(ctx, "inputs/book.pdf", []byte("replaced")))

	downloaded, err = store.Download(ctx, "inputs/book.pdf")
	require.NoError(t, err)
	assert.Equal(t, "replaced", string(downloaded))

	require.NoError(t, store.Delete(ctx, "inputs/book.pdf"))

	_, err = store.Download(ctx, "inputs/book.pdf")
	require.ErrorIs(t, err, objectstore.ErrNotFound)
}

func TestNatsObjectStore_BindsExistingBucket(t *testing.T) {
	t.Parallel()

	_, js := startJetStream(t)
	ctx := context.Background()

	first, err := objectstore.New(ctx, js, "shared")
	require.NoError(t, err)
	require.NoError(t, first.Upload(ctx, "voice.wav", []byte("RIFF")))

	second, err := objectstore.New(ctx, js, "shared")
	require.NoError(t, err)

	data, err := second.Download(ctx, "voice.wav")
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(data))
}

func TestNatsObjectStore_MissingKey(t *testing.T) {
	t.Parallel()

	_, js := startJetStream(t)
	ctx := context.Background()

	store, err := objectstore.New(ctx, js, "empty")
	require.NoError(t, err)

	_, err = store.Download(ctx, "absent.pdf")
	require.ErrorIs(t, err, objectstore.ErrNotFound)

	err = store.Delete(ctx, "absent.pdf")
	require.ErrorIs(t, err, objectstore.ErrNotFound)
}
