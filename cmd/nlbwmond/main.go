// Command nlbwmond is the accounting daemon: it listens for conntrack
// events, attributes traffic to local hosts, aggregates counters per
// accounting period, and serves the control endpoint a reporting client
// connects to. Flags follow spec.md §6's server CLI surface.
package main

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nlbwmon/nlbwmon-go/internal/catalog"
	"github.com/nlbwmon/nlbwmon-go/internal/conntrack/nfct"
	"github.com/nlbwmon/nlbwmon-go/internal/control"
	"github.com/nlbwmon/nlbwmon-go/internal/ingest"
	"github.com/nlbwmon/nlbwmon-go/internal/interval"
	"github.com/nlbwmon/nlbwmon-go/internal/loop"
	"github.com/nlbwmon/nlbwmon-go/internal/neigh"
	"github.com/nlbwmon/nlbwmon-go/internal/period"
	"github.com/nlbwmon/nlbwmon-go/internal/persist"
	"github.com/nlbwmon/nlbwmon-go/internal/recstore"
	"github.com/nlbwmon/nlbwmon-go/internal/subnet"
	"github.com/nlbwmon/nlbwmon-go/pkg/errors"
	"github.com/nlbwmon/nlbwmon-go/pkg/logger"
	"github.com/nlbwmon/nlbwmon-go/pkg/options"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		bufferSize   int
		commitStr    string
		refreshStr   string
		prefixes     []string
		persistDir   string
		catalogPath  string
		generations  int
		intervalSpec string
		prealloc     bool
		limit        int
		compress     bool
		socketPath   string
		devLog       bool
	)

	cmd := &cobra.Command{
		Use:   "nlbwmond",
		Short: "per-host network bandwidth accounting daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			commitIvl, err := parseDuration(commitStr)
			if err != nil {
				return fmt.Errorf("invalid --commit-interval: %w", err)
			}
			refreshIvl, err := parseDuration(refreshStr)
			if err != nil {
				return fmt.Errorf("invalid --refresh-interval: %w", err)
			}
			localPrefixes, err := parsePrefixes(prefixes)
			if err != nil {
				return err
			}
			ivl, err := interval.ParseSpec(intervalSpec)
			if err != nil {
				return err
			}

			opts := options.Apply(
				options.WithNetlinkBufferSize(bufferSize),
				options.WithRefreshInterval(refreshIvl),
				options.WithCommitInterval(commitIvl),
				options.WithLocalPrefixes(localPrefixes),
				options.WithPersistDir(persistDir),
				options.WithCatalogPath(catalogPath),
				options.WithGenerations(generations),
				options.WithInterval(ivl),
				options.WithPreallocate(prealloc),
				options.WithLimit(limit),
				options.WithCompress(compress),
				options.WithSocketPath(socketPath),
			)

			return run(cmd.Context(), opts, devLog)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&bufferSize, "netlink-buffer", 212992, "conntrack netlink socket receive buffer size, in bytes")
	flags.StringVar(&commitStr, "commit-interval", "24h", "how often to persist the live period (suffix s|m|h|d|w)")
	flags.StringVar(&refreshStr, "refresh-interval", "30s", "how often to refresh open-flow counters (suffix s|m|h|d|w)")
	flags.StringSliceVarP(&prefixes, "local", "l", nil, "local subnet prefix (repeatable), CIDR or address/netmask")
	flags.StringVarP(&persistDir, "directory", "d", "/var/lib/nlbwmon", "persistent directory for closed periods")
	flags.StringVarP(&catalogPath, "protocols", "p", "/usr/share/nlbwmon/protocols", "protocol catalog file path")
	flags.IntVarP(&generations, "generations", "g", 0, "number of past periods to retain (0 disables cleanup)")
	flags.StringVarP(&intervalSpec, "interval", "i", "1", "accounting interval: \"N\" (monthly day-of-month) or \"YYYY-MM-DD/N\" (fixed stride)")
	flags.BoolVar(&prealloc, "prealloc", false, "preallocate the live store's full capacity (requires --limit)")
	flags.IntVar(&limit, "limit", 0, "hard entry cap on the live store (0 is unbounded)")
	flags.BoolVarP(&compress, "compress", "c", false, "use gzip-compressed on-disk encoding")
	flags.StringVarP(&socketPath, "socket", "s", "/var/run/nlbwmon.sock", "control endpoint unix socket path")
	flags.BoolVar(&devLog, "dev-log", false, "use human-readable development logging instead of JSON")

	return cmd
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	unit := s[len(s)-1]
	switch unit {
	case 's', 'm', 'h':
		return time.ParseDuration(s)
	case 'd':
		n, err := time.ParseDuration(strings.TrimSuffix(s, "d") + "h")
		if err != nil {
			return 0, err
		}
		return n * 24, nil
	case 'w':
		n, err := time.ParseDuration(strings.TrimSuffix(s, "w") + "h")
		if err != nil {
			return 0, err
		}
		return n * 24 * 7, nil
	default:
		return time.ParseDuration(s)
	}
}

func parsePrefixes(specs []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(specs))
	for _, s := range specs {
		p, err := parsePrefix(s)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// parsePrefix accepts either CIDR notation or "address/netmask" (spec.md
// §6: "IPv4 or IPv6 with CIDR or netmask").
func parsePrefix(s string) (netip.Prefix, error) {
	if p, err := netip.ParsePrefix(s); err == nil {
		return p, nil
	}

	idx := strings.IndexByte(s, '/')
	if idx < 0 {
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("invalid local prefix %q", s)
		}
		return netip.PrefixFrom(addr, addr.BitLen()), nil
	}

	addrStr, maskStr := s[:idx], s[idx+1:]
	addr, err := netip.ParseAddr(addrStr)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid local prefix %q", s)
	}
	maskAddr, err := netip.ParseAddr(maskStr)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid netmask %q", maskStr)
	}
	bits := netmaskBits(maskAddr)
	return netip.PrefixFrom(addr, bits).Masked(), nil
}

func netmaskBits(mask netip.Addr) int {
	bits := 0
	for _, b := range mask.AsSlice() {
		for i := 7; i >= 0; i-- {
			if b&(1<<uint(i)) == 0 {
				return bits
			}
			bits++
		}
	}
	return bits
}

func run(ctx context.Context, opts *options.Options, devLog bool) error {
	log := logger.New("nlbwmond")
	if devLog {
		log = logger.NewDevelopment("nlbwmond")
	}

	cat, err := catalog.Load(opts.CatalogPath)
	if err != nil {
		log.Warnw("loading protocol catalog failed, traffic will bucket into \"other\"", "path", opts.CatalogPath, "error", err)
		cat = catalog.Empty()
	}

	store := recstore.NewPeriodStore(0, opts.Preallocate, opts.Limit)
	if err := persist.Load(persist.Config{Log: log}, opts.PersistDir, 0, store); err != nil && !errors.IsMissing(err) {
		return fmt.Errorf("loading scratch snapshot: %w", err)
	}
	if store.Timestamp == 0 {
		store.Timestamp = opts.Interval.Stamp(time.Now(), 0)
	}

	src, err := nfct.Dial(nfct.Config{BufferSize: opts.NetlinkBufferSize, Log: log.Named("conntrack")})
	if err != nil {
		return err
	}
	defer src.Close()

	deferredResults := make(chan neigh.Result, 64)
	cache := neigh.New()
	deferred := neigh.NewDeferredQueue(opts.Limit, neigh.NetlinkResolver{}, deferredResults)

	classifier := subnet.New(opts.LocalPrefixes)
	pipeline := ingest.New(ingest.Config{
		Classifier: classifier,
		Catalog:    cat,
		Neigh:      cache,
		Deferred:   deferred,
		Log:        log.Named("ingest"),
	})

	mgr := period.New(opts.Interval, period.Config{
		Store:       store,
		Source:      src,
		Pipeline:    pipeline,
		PersistDir:  opts.PersistDir,
		Compress:    opts.Compress,
		Generations: opts.Generations,
		Log:         log.Named("period"),
	})

	if err := mgr.Cleanup(); err != nil {
		log.Warnw("startup retention cleanup failed", "error", err)
	}

	requests := make(chan control.Request)

	ctrl, err := control.Listen(control.Config{
		SocketPath:  opts.SocketPath,
		Store:       func() *recstore.Store { return store },
		PersistDir:  opts.PersistDir,
		Interval:    opts.Interval,
		Generations: opts.Generations,
		Compress:    opts.Compress,
		Commit:      mgr.Commit,
		Requests:    requests,
		Log:         log.Named("control"),
	})
	if err != nil {
		return err
	}
	defer ctrl.Close()

	l := loop.New(loop.Config{
		Store:           store,
		Source:          src,
		Pipeline:        pipeline,
		Period:          mgr,
		Deferred:        deferred,
		DeferredResults: deferredResults,
		Control:         ctrl,
		Requests:        requests,
		RefreshInterval: opts.RefreshInterval,
		CommitInterval:  opts.CommitInterval,
		Log:             log.Named("loop"),
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var clearScratch atomic.Bool
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT, syscall.SIGUSR1)
	go func() {
		sig := <-sigs
		if sig == syscall.SIGUSR1 {
			log.Infow("received SIGUSR1, will clear scratch snapshot on exit")
			clearScratch.Store(true)
		}
		cancel()
	}()

	runErr := l.Run(runCtx)

	if clearScratch.Load() {
		if err := l.ClearScratch(func() error {
			_ = os.Remove(opts.PersistDir + "/0.db")
			_ = os.Remove(opts.PersistDir + "/0.db.gz")
			return nil
		}); err != nil {
			log.Warnw("clearing scratch snapshot failed", "error", err)
		}
	}

	return runErr
}
