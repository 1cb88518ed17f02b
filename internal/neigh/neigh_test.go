package neigh_test

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlbwmon/nlbwmon-go/internal/neigh"
	"github.com/nlbwmon/nlbwmon-go/internal/recstore"
	"github.com/nlbwmon/nlbwmon-go/pkg/errors"
)

type fakeResolver struct {
	mac [6]byte
	ok  bool
}

func (f fakeResolver) Resolve(context.Context, recstore.Family, netip.Addr) ([6]byte, bool, error) {
	return f.mac, f.ok, nil
}

func TestCacheGetSet(t *testing.T) {
	c := neigh.New()
	key := neigh.Key{Family: recstore.FamilyV4, Addr: netip.MustParseAddr("192.168.1.10")}

	_, ok := c.Get(key)
	assert.False(t, ok)

	c.Set(key, [6]byte{1, 2, 3, 4, 5, 6})
	mac, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, [6]byte{1, 2, 3, 4, 5, 6}, mac)
}

func TestDeferredQueueResolvesAndPostsResult(t *testing.T) {
	out := make(chan neigh.Result, 1)
	resolver := fakeResolver{mac: [6]byte{9, 9, 9, 9, 9, 9}, ok: true}
	q := neigh.NewDeferredQueue(0, resolver, out)

	key := neigh.Key{Family: recstore.FamilyV4, Addr: netip.MustParseAddr("10.0.0.1")}
	require.NoError(t, q.Schedule(key))
	assert.Equal(t, 1, q.Len())

	select {
	case res := <-out:
		assert.Equal(t, key, res.Key)
		assert.True(t, res.Found)
		assert.Equal(t, [6]byte{9, 9, 9, 9, 9, 9}, res.MAC)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for deferred result")
	}

	q.Complete(key)
	assert.Equal(t, 0, q.Len())
}

func TestDeferredQueueRejectsPastLimit(t *testing.T) {
	out := make(chan neigh.Result, 4)
	q := neigh.NewDeferredQueue(1, fakeResolver{}, out)

	k1 := neigh.Key{Family: recstore.FamilyV4, Addr: netip.MustParseAddr("10.0.0.1")}
	k2 := neigh.Key{Family: recstore.FamilyV4, Addr: netip.MustParseAddr("10.0.0.2")}

	require.NoError(t, q.Schedule(k1))
	err := q.Schedule(k2)
	require.Error(t, err)
	assert.True(t, errors.IsResourceExhausted(err))

	q.Cancel()
}

func TestDeferredQueueIsIdempotentForSameKey(t *testing.T) {
	out := make(chan neigh.Result, 4)
	q := neigh.NewDeferredQueue(1, fakeResolver{}, out)

	key := neigh.Key{Family: recstore.FamilyV4, Addr: netip.MustParseAddr("10.0.0.1")}
	require.NoError(t, q.Schedule(key))
	require.NoError(t, q.Schedule(key))
	assert.Equal(t, 1, q.Len())

	q.Cancel()
}
