//go:build integration

package natsclient

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semflow/errors"
)

func newTestKV(t *testing.T, bucket string) *KVStore {
	t.Helper()
	tc := NewTestClient(t, WithKVBuckets(bucket))
	kv, err := tc.KVStore(context.Background(), bucket)
	require.NoError(t, err)
	return kv
}

func TestKVStore_BasicOperations(t *testing.T) {
	kv := newTestKV(t, "basic")
	ctx := context.Background()

	_, err := kv.Get(ctx, "missing")
	assert.ErrorIs(t, err, errors.ErrKeyNotFound)

	rev, err := kv.Create(ctx, "flow.a", []byte("one"))
	require.NoError(t, err)

	_, err = kv.Create(ctx, "flow.a", []byte("again"))
	assert.ErrorIs(t, err, ErrKVKeyExists)

	entry, err := kv.Get(ctx, "flow.a")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), entry.Value)
	assert.Equal(t, rev, entry.Revision)

	rev2, err := kv.Update(ctx, "flow.a", []byte("two"), rev)
	require.NoError(t, err)
	assert.Greater(t, rev2, rev)

	_, err = kv.Update(ctx, "flow.a", []byte("stale"), rev)
	assert.ErrorIs(t, err, ErrKVRevisionMismatch)

	_, err = kv.Put(ctx, "flow.b", []byte("x"))
	require.NoError(t, err)

	keys, err := kv.Keys(ctx, "flow.")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"flow.a", "flow.b"}, keys)

	require.NoError(t, kv.Delete(ctx, "flow.a"))
	_, err = kv.Get(ctx, "flow.a")
	assert.ErrorIs(t, err, errors.ErrKeyNotFound)
}

func TestKVStore_KeysEmpty(t *testing.T) {
	kv := newTestKV(t, "empty")
	keys, err := kv.Keys(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestKVStore_ValueTooLarge(t *testing.T) {
	tc := NewTestClient(t, WithKVBuckets("limits"))
	bucket, err := tc.Client.GetKeyValueBucket(context.Background(), "limits")
	require.NoError(t, err)
	kv := tc.Client.NewKVStore(bucket, func(o *KVOptions) { o.MaxValueSize = 4 })

	_, err = kv.Put(context.Background(), "k", []byte("too long"))
	assert.ErrorIs(t, err, ErrKVValueTooLarge)
	assert.True(t, errors.IsInvalid(err))
}

func TestKVStore_UpdateWithRetry(t *testing.T) {
	kv := newTestKV(t, "counter")
	ctx := context.Background()

	increment := func(current []byte) ([]byte, error) {
		n := 0
		if len(current) > 0 {
			var err error
			if n, err = strconv.Atoi(string(current)); err != nil {
				return nil, err
			}
		}
		return []byte(strconv.Itoa(n + 1)), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, kv.UpdateWithRetry(ctx, "count", increment))
		}()
	}
	wg.Wait()

	entry, err := kv.Get(ctx, "count")
	require.NoError(t, err)
	assert.Equal(t, "8", string(entry.Value))
}

func TestKVStore_UpdateFunctionError(t *testing.T) {
	kv := newTestKV(t, "failing")
	boom := errors.New("boom")
	err := kv.UpdateWithRetry(context.Background(), "k", func([]byte) ([]byte, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestKVStore_Watch(t *testing.T) {
	kv := newTestKV(t, "watched")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	watcher, err := kv.Watch(ctx, "flow.>")
	require.NoError(t, err)
	defer func() { _ = watcher.Stop() }()

	// initial values are terminated by a nil entry
	select {
	case entry := <-watcher.Updates():
		require.Nil(t, entry)
	case <-ctx.Done():
		t.Fatal("no initial marker")
	}

	_, err = kv.Put(ctx, "flow.main", []byte("v1"))
	require.NoError(t, err)

	select {
	case entry := <-watcher.Updates():
		require.NotNil(t, entry)
		assert.Equal(t, "flow.main", entry.Key())
		assert.Equal(t, jetstream.KeyValuePut, entry.Operation())
	case <-ctx.Done():
		t.Fatal("no update")
	}
}

func TestClient_CreateBucketTwice(t *testing.T) {
	tc := NewTestClient(t, WithJetStream())
	ctx := context.Background()

	_, err := tc.CreateKVBucket(ctx, "twice")
	require.NoError(t, err)
	_, err = tc.CreateKVBucket(ctx, "twice")
	require.NoError(t, err)

	_, err = tc.Client.GetKeyValueBucket(ctx, "absent")
	assert.ErrorIs(t, err, errors.ErrStorageUnavailable)
}
