package ingest_test

import (
	"context"
	"net/netip"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlbwmon/nlbwmon-go/internal/catalog"
	"github.com/nlbwmon/nlbwmon-go/internal/conntrack"
	"github.com/nlbwmon/nlbwmon-go/internal/ingest"
	"github.com/nlbwmon/nlbwmon-go/internal/neigh"
	"github.com/nlbwmon/nlbwmon-go/internal/recstore"
	"github.com/nlbwmon/nlbwmon-go/internal/subnet"
)

// noopResolver never finds a match; it exists so tests that schedule a
// deferred task (without waiting for it) don't leave a nil-resolver panic
// armed on a background timer.
type noopResolver struct{}

func (noopResolver) Resolve(context.Context, recstore.Family, netip.Addr) ([6]byte, bool, error) {
	return [6]byte{}, false, nil
}

func newPipeline(cat *catalog.Catalog) (*ingest.Pipeline, *neigh.Cache, *neigh.DeferredQueue, chan neigh.Result) {
	classifier := subnet.New([]netip.Prefix{netip.MustParsePrefix("192.168.1.0/24")})
	cache := neigh.New()
	out := make(chan neigh.Result, 4)
	deferredQueue := neigh.NewDeferredQueue(0, noopResolver{}, out)
	p := ingest.New(ingest.Config{
		Classifier: classifier,
		Catalog:    cat,
		Neigh:      cache,
		Deferred:   deferredQueue,
	})
	return p, cache, deferredQueue, out
}

func newEventMessage(t *testing.T, evType conntrack.EventType) conntrack.Message {
	t.Helper()
	return conntrack.Message{
		Type: evType,
		Orig: conntrack.Tuple{
			Family:  recstore.FamilyV4,
			Proto:   6,
			SrcAddr: netip.MustParseAddr("192.168.1.10"),
			DstAddr: netip.MustParseAddr("8.8.8.8"),
			SrcPort: 54321,
			DstPort: 443,
			Packets: 1,
			Bytes:   64,
		},
		Reply: conntrack.Tuple{
			Family:  recstore.FamilyV4,
			Proto:   6,
			SrcAddr: netip.MustParseAddr("8.8.8.8"),
			DstAddr: netip.MustParseAddr("192.168.1.10"),
			SrcPort: 443,
			DstPort: 54321,
			Packets: 1,
			Bytes:   1024,
		},
	}
}

// Scenario 1 from spec.md §8: classification of a local->remote NEW flow.
func TestHandleClassifiesLocalToRemoteNewFlow(t *testing.T) {
	cat, err := catalog.Parse(strings.NewReader("6 443 https\n"))
	require.NoError(t, err)
	p, cache, _, _ := newPipeline(cat)
	cache.Set(neigh.Key{Family: recstore.FamilyV4, Addr: netip.MustParseAddr("192.168.1.10")}, [6]byte{1, 2, 3, 4, 5, 6})

	store := recstore.NewPeriodStore(20250101, false, 0)
	msg := newEventMessage(t, conntrack.EventNew)

	require.NoError(t, p.Handle(store, msg, ingest.ModeLive))
	require.Equal(t, 1, store.Len())

	var rec *recstore.Record
	for r := range store.Iter() {
		rec = r
	}
	require.NotNil(t, rec)
	assert.Equal(t, recstore.FamilyV4, rec.Family)
	assert.EqualValues(t, 6, rec.Proto)
	assert.EqualValues(t, 443, rec.DstPort)
	assert.EqualValues(t, 1, rec.OutPkts)
	assert.EqualValues(t, 64, rec.OutBytes)
	assert.EqualValues(t, 1, rec.InPkts)
	assert.EqualValues(t, 1024, rec.InBytes)
	assert.EqualValues(t, 1, rec.Count)
}

// Scenario 2 from spec.md §8: merging a subsequent UPDATE event.
func TestHandleMergesSubsequentUpdate(t *testing.T) {
	p, cache, _, _ := newPipeline(catalog.Empty())
	key := neigh.Key{Family: recstore.FamilyV4, Addr: netip.MustParseAddr("192.168.1.10")}
	cache.Set(key, [6]byte{1, 2, 3, 4, 5, 6})

	store := recstore.NewPeriodStore(20250101, false, 0)
	require.NoError(t, p.Handle(store, newEventMessage(t, conntrack.EventNew), ingest.ModeLive))

	update := newEventMessage(t, conntrack.EventUpdate)
	update.Orig.Packets, update.Orig.Bytes = 2, 100
	update.Reply.Packets, update.Reply.Bytes = 2, 2000
	require.NoError(t, p.Handle(store, update, ingest.ModeLive))

	var rec *recstore.Record
	for r := range store.Iter() {
		rec = r
	}
	assert.EqualValues(t, 3, rec.OutPkts)
	assert.EqualValues(t, 164, rec.OutBytes)
	assert.EqualValues(t, 3, rec.InPkts)
	assert.EqualValues(t, 3024, rec.InBytes)
	assert.EqualValues(t, 1, rec.Count)
}

// Scenario 3 from spec.md §8: unknown app bucketing clobbers proto/port to 0.
func TestHandleBucketsUnknownApplicationToZero(t *testing.T) {
	p, cache, _, _ := newPipeline(catalog.Empty())
	cache.Set(neigh.Key{Family: recstore.FamilyV4, Addr: netip.MustParseAddr("192.168.1.20")}, [6]byte{})

	store := recstore.NewPeriodStore(20250101, false, 0)
	msg := conntrack.Message{
		Type: conntrack.EventNew,
		Orig: conntrack.Tuple{
			Family: recstore.FamilyV4, Proto: 17,
			SrcAddr: netip.MustParseAddr("192.168.1.20"), DstAddr: netip.MustParseAddr("1.1.1.1"),
			SrcPort: 1234, DstPort: 9999, Packets: 1, Bytes: 50,
		},
		Reply: conntrack.Tuple{
			Family: recstore.FamilyV4, Proto: 17,
			SrcAddr: netip.MustParseAddr("1.1.1.1"), DstAddr: netip.MustParseAddr("192.168.1.20"),
			SrcPort: 9999, DstPort: 1234, Packets: 1, Bytes: 80,
		},
	}

	require.NoError(t, p.Handle(store, msg, ingest.ModeLive))
	var rec *recstore.Record
	for r := range store.Iter() {
		rec = r
	}
	assert.EqualValues(t, 0, rec.Proto)
	assert.EqualValues(t, 0, rec.DstPort)
}

func TestHandleDropsLocalToLocalTraffic(t *testing.T) {
	p, _, _, _ := newPipeline(catalog.Empty())
	store := recstore.NewPeriodStore(20250101, false, 0)

	msg := conntrack.Message{
		Type: conntrack.EventNew,
		Orig: conntrack.Tuple{
			Family: recstore.FamilyV4, Proto: 6,
			SrcAddr: netip.MustParseAddr("192.168.1.10"), DstAddr: netip.MustParseAddr("192.168.1.11"),
			SrcPort: 1111, DstPort: 80,
		},
		Reply: conntrack.Tuple{
			Family: recstore.FamilyV4, Proto: 6,
			SrcAddr: netip.MustParseAddr("192.168.1.11"), DstAddr: netip.MustParseAddr("192.168.1.10"),
			SrcPort: 80, DstPort: 1111,
		},
	}
	require.NoError(t, p.Handle(store, msg, ingest.ModeLive))
	assert.Equal(t, 0, store.Len())
}

func TestHandleDefersMacResolutionOnCacheMiss(t *testing.T) {
	p, _, deferredQueue, _ := newPipeline(catalog.Empty())

	store := recstore.NewPeriodStore(20250101, false, 0)
	msg := newEventMessage(t, conntrack.EventNew)

	require.NoError(t, p.Handle(store, msg, ingest.ModeLive))
	assert.Equal(t, 0, store.Len(), "record should wait for deferred mac resolution")
	assert.Equal(t, 1, deferredQueue.Len())

	result := neigh.Result{
		Key:   neigh.Key{Family: recstore.FamilyV4, Addr: netip.MustParseAddr("192.168.1.10")},
		MAC:   [6]byte{1, 1, 1, 1, 1, 1},
		Found: true,
	}
	require.NoError(t, p.HandleDeferred(store, result))
	assert.Equal(t, 1, store.Len())
}

func TestHandleUpdateModeSilentlyDropsMissingIdentity(t *testing.T) {
	p, cache, _, _ := newPipeline(catalog.Empty())
	cache.Set(neigh.Key{Family: recstore.FamilyV4, Addr: netip.MustParseAddr("192.168.1.10")}, [6]byte{1, 2, 3, 4, 5, 6})

	store := recstore.NewPeriodStore(20250101, false, 0)
	err := p.Handle(store, newEventMessage(t, conntrack.EventUpdate), ingest.ModeLive)
	require.NoError(t, err)
	assert.Equal(t, 0, store.Len())
}
