//go:build integration

package loader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/natsclient"
)

func TestKVResolver_Published(t *testing.T) {
	tc := natsclient.NewTestClient(t, natsclient.WithKVBuckets("libraries"))
	ctx := context.Background()
	kv, err := tc.KVStore(ctx, "libraries")
	require.NoError(t, err)

	catalog := testCatalog(t)
	n, err := Publish(ctx, kv, catalog)
	require.NoError(t, err)
	assert.Equal(t, 4, n, "root, math, math/trig and geo")

	l := New(NewKVResolver(kv, catalog), nil, WithLogger(quietLogger()), WithRetry(noRetry()))
	h, err := l.LoadHandler(ctx, "math.trig.sin")
	require.NoError(t, err)
	assert.Equal(t, "math.trig.sin", h.Name)

	_, err = l.LoadHandler(ctx, "geo.track")
	require.NoError(t, err)
	_, ok := l.Types().Lookup("point")
	assert.True(t, ok)

	_, err = l.LoadHandler(ctx, "missing.op2")
	assert.ErrorIs(t, err, errors.ErrUnknownLibrary)
}
