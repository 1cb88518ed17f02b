// Package period implements the accounting period lifecycle (spec.md
// §4.4): the current interval stamp, rollover detection and atomic
// archival, and the refresh/commit timer semantics the event loop drives.
package period

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nlbwmon/nlbwmon-go/internal/conntrack"
	"github.com/nlbwmon/nlbwmon-go/internal/ingest"
	"github.com/nlbwmon/nlbwmon-go/internal/interval"
	"github.com/nlbwmon/nlbwmon-go/internal/persist"
	"github.com/nlbwmon/nlbwmon-go/internal/recstore"
	"github.com/nlbwmon/nlbwmon-go/pkg/errors"
)

// Config bundles the period manager's collaborators.
type Config struct {
	Store       *recstore.Store
	Source      conntrack.Source
	Pipeline    *ingest.Pipeline
	PersistDir  string
	Compress    bool
	Generations int
	Log         *zap.SugaredLogger

	// Now overrides the manager's clock; nil uses time.Now. Exists for
	// deterministic tests of rollover behaviour (spec.md §8 scenario 4).
	Now func() time.Time
}

// Manager owns the current period stamp and implements the archive
// protocol spec.md §4.4 describes.
type Manager struct {
	cfg     Config
	ivl     interval.Descriptor
	current uint32
}

// New creates a Manager for ivl, starting from cfg.Store's current
// timestamp (which may be 0, the scratch stamp, on a fresh start).
func New(ivl interval.Descriptor, cfg Config) *Manager {
	return &Manager{cfg: cfg, ivl: ivl, current: cfg.Store.Timestamp}
}

// Current returns the stamp the live store currently accumulates under.
func (m *Manager) Current() uint32 { return m.current }

func (m *Manager) now() time.Time {
	if m.cfg.Now != nil {
		return m.cfg.Now()
	}
	return time.Now()
}

// Tick implements archive(store) from spec.md §4.4: if the interval's
// current stamp (offset 0) has advanced past the store's stamp, the live
// store is saved under its old stamp, reset in place to the new one, and
// repopulated by a zeroing conntrack dump with insert semantics. On
// rollover it returns a Stale error describing the transition — a control
// signal, not a failure — so Refresh knows to skip its own update-only
// re-dump for this tick.
func (m *Manager) Tick(ctx context.Context) error {
	newStamp := m.ivl.Stamp(m.now(), 0)
	if newStamp <= m.current {
		return nil
	}
	oldStamp := m.current

	if err := persist.Save(persist.Config{Log: m.cfg.Log}, m.cfg.PersistDir, oldStamp, m.ivl, m.cfg.Compress, m.cfg.Store); err != nil {
		return err
	}

	m.cfg.Store.ResetForPeriod(newStamp)
	m.current = newStamp

	if err := m.redump(ctx, true, ingest.ModeDumpInsert); err != nil {
		return err
	}

	if m.cfg.Log != nil {
		m.cfg.Log.Infow("period rolled over", "old_stamp", oldStamp, "new_stamp", newStamp)
	}
	return errors.NewStaleError(oldStamp, newStamp)
}

// Refresh implements the refresh timer (spec.md §4.4, default 30s): Tick
// first; if it rolled over, the rollover's own dump already repopulated
// the store, so Refresh returns without further action. Otherwise it
// issues an update-only re-dump to resync counters for flows still open,
// then snapshots the live store to the scratch stamp (0).
func (m *Manager) Refresh(ctx context.Context) error {
	if err := m.Tick(ctx); err != nil {
		if errors.IsStale(err) {
			return nil
		}
		return err
	}

	if err := m.redump(ctx, true, ingest.ModeDumpUpdate); err != nil {
		return err
	}

	return persist.Save(persist.Config{Log: m.cfg.Log}, m.cfg.PersistDir, 0, m.ivl, m.cfg.Compress, m.cfg.Store)
}

// Commit implements the commit timer and the control endpoint's `commit`
// command (spec.md §4.4, §4.6): save the live store under its current
// stamp in the persistent directory. Per spec.md §8 scenario 5 (pristine
// merge), a Conflict on a pristine store — a persistent directory that
// appeared with pre-existing data after the daemon started — is resolved
// by loading the existing file (which merges it into the live store) and
// retrying the save once.
func (m *Manager) Commit(ctx context.Context) error {
	err := persist.Save(persist.Config{Log: m.cfg.Log}, m.cfg.PersistDir, m.current, m.ivl, m.cfg.Compress, m.cfg.Store)
	if err == nil || !errors.IsConflict(err) {
		return err
	}

	if err := persist.Load(persist.Config{Log: m.cfg.Log}, m.cfg.PersistDir, m.current, m.cfg.Store); err != nil {
		return err
	}
	return persist.Save(persist.Config{Log: m.cfg.Log}, m.cfg.PersistDir, m.current, m.ivl, m.cfg.Compress, m.cfg.Store)
}

// Cleanup removes on-disk periods outside the retention window, relative
// to the manager's current stamp.
func (m *Manager) Cleanup() error {
	return persist.Cleanup(m.cfg.Log, m.cfg.PersistDir, m.current, m.cfg.Generations, m.ivl)
}

func (m *Manager) redump(ctx context.Context, zero bool, mode ingest.Mode) error {
	msgs, err := m.cfg.Source.Dump(ctx, zero)
	if err != nil {
		return err
	}
	for msg := range msgs {
		if err := m.cfg.Pipeline.Handle(m.cfg.Store, msg, mode); err != nil && m.cfg.Log != nil {
			m.cfg.Log.Warnw("dump handling failed", "error", err)
		}
	}
	return nil
}
