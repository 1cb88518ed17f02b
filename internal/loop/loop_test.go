package loop_test

import (
	"context"
	"net/netip"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlbwmon/nlbwmon-go/internal/catalog"
	"github.com/nlbwmon/nlbwmon-go/internal/conntrack"
	"github.com/nlbwmon/nlbwmon-go/internal/ingest"
	"github.com/nlbwmon/nlbwmon-go/internal/interval"
	"github.com/nlbwmon/nlbwmon-go/internal/loop"
	"github.com/nlbwmon/nlbwmon-go/internal/neigh"
	"github.com/nlbwmon/nlbwmon-go/internal/period"
	"github.com/nlbwmon/nlbwmon-go/internal/recstore"
	"github.com/nlbwmon/nlbwmon-go/internal/subnet"
)

type chanSource struct {
	events chan conntrack.Message
	errs   chan error
}

func (s *chanSource) Listen(context.Context) (<-chan conntrack.Message, <-chan error, error) {
	return s.events, s.errs, nil
}

func (s *chanSource) Dump(context.Context, bool) (<-chan conntrack.Message, error) {
	ch := make(chan conntrack.Message)
	close(ch)
	return ch, nil
}

func (s *chanSource) Close() error { return nil }

func TestRunProcessesEventAndCommitsOnShutdown(t *testing.T) {
	dir := t.TempDir()
	store := recstore.NewPeriodStore(20250101, false, 0)

	src := &chanSource{events: make(chan conntrack.Message, 1), errs: make(chan error, 1)}
	cache := neigh.New()
	cache.Set(neigh.Key{Family: recstore.FamilyV4, Addr: netip.MustParseAddr("192.168.1.10")}, [6]byte{1, 2, 3, 4, 5, 6})
	deferred := neigh.NewDeferredQueue(0, nil, nil)
	pipeline := ingest.New(ingest.Config{
		Classifier: subnet.New([]netip.Prefix{netip.MustParsePrefix("192.168.1.0/24")}),
		Catalog:    catalog.Empty(),
		Neigh:      cache,
		Deferred:   deferred,
	})
	mgr := period.New(interval.Monthly{Day: 1}, period.Config{
		Store:      store,
		Source:     src,
		Pipeline:   pipeline,
		PersistDir: dir,
		Now:        func() time.Time { return time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC) },
	})

	l := loop.New(loop.Config{
		Store:           store,
		Source:          src,
		Pipeline:        pipeline,
		Period:          mgr,
		Deferred:        deferred,
		DeferredResults: make(chan neigh.Result),
		RefreshInterval: time.Hour,
		CommitInterval:  time.Hour,
	})

	src.events <- conntrack.Message{
		Type: conntrack.EventNew,
		Orig: conntrack.Tuple{
			Family: recstore.FamilyV4, Proto: 6,
			SrcAddr: netip.MustParseAddr("192.168.1.10"), DstAddr: netip.MustParseAddr("8.8.8.8"),
			SrcPort: 54321, DstPort: 443, Packets: 1, Bytes: 64,
		},
		Reply: conntrack.Tuple{
			Family: recstore.FamilyV4, Proto: 6,
			SrcAddr: netip.MustParseAddr("8.8.8.8"), DstAddr: netip.MustParseAddr("192.168.1.10"),
			SrcPort: 443, DstPort: 54321, Packets: 1, Bytes: 1024,
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool { return store.Len() == 1 }, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	_, err := os.Stat(dir + "/20250101.db")
	assert.NoError(t, err, "shutdown must commit the live store under its current stamp")
}
