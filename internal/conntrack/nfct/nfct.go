// Package nfct implements internal/conntrack.Source over the Linux
// conntrack netlink subsystem, using github.com/ti-mo/conntrack for event
// streaming and table dumps and github.com/ti-mo/netfilter for the
// underlying netlink group subscriptions. This is the daemon's sole
// dependency on an actual kernel conntrack socket; every other package
// talks to the conntrack.Source interface.
package nfct

import (
	"context"
	"net/netip"
	"os"
	"strconv"
	"strings"

	"github.com/ti-mo/conntrack"
	"github.com/ti-mo/netfilter"
	"go.uber.org/zap"

	ctiface "github.com/nlbwmon/nlbwmon-go/internal/conntrack"
	"github.com/nlbwmon/nlbwmon-go/internal/recstore"
	"github.com/nlbwmon/nlbwmon-go/pkg/errors"
)

// Config configures the netlink-backed conntrack source, in the teacher's
// Config-struct idiom.
type Config struct {
	// BufferSize is the requested socket receive buffer size, compared
	// against /proc/sys/net/core/rmem_max at Dial time (spec.md §5
	// resource policy).
	BufferSize int
	Log        *zap.SugaredLogger
}

// Source wraps a *conntrack.Conn to implement ctiface.Source.
type Source struct {
	conn *conntrack.Conn
	log  *zap.SugaredLogger
}

// Dial opens the conntrack netlink socket and checks the configured
// buffer size against the kernel's rmem_max, logging a diagnostic (never
// failing) when it's exceeded.
func Dial(cfg Config) (*Source, error) {
	conn, err := conntrack.Dial(nil)
	if err != nil {
		return nil, errors.NewIOError(err, "dialing conntrack netlink socket")
	}

	if cfg.BufferSize > 0 {
		checkRmemMax(cfg.Log, cfg.BufferSize)
	}

	return &Source{conn: conn, log: cfg.Log}, nil
}

// checkRmemMax reads the kernel's net.core.rmem_max sysctl and logs a
// warning, without failing, when the configured buffer size exceeds it —
// grounded on original_source/nfnetlink.c's socket-buffer-size versus
// rmem_max comparison.
func checkRmemMax(log *zap.SugaredLogger, requested int) {
	raw, err := os.ReadFile("/proc/sys/net/core/rmem_max")
	if err != nil {
		return
	}
	max, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return
	}
	if requested > max && log != nil {
		log.Warnw("netlink buffer size exceeds kernel rmem_max",
			"requested", requested, "rmem_max", max)
	}
}

// Listen implements ctiface.Source. Nothing is ever sent on the returned
// error channel: transport errors after subscription are not reported.
func (s *Source) Listen(ctx context.Context) (<-chan ctiface.Message, <-chan error, error) {
	events := make(chan conntrack.Event, 64)
	errs := make(chan error, 1)

	if err := s.conn.Listen(events, 4, []netfilter.NetlinkGroup{
		netfilter.GroupCTNew,
		netfilter.GroupCTUpdate,
		netfilter.GroupCTDestroy,
	}); err != nil {
		return nil, nil, errors.NewIOError(err, "subscribing to conntrack netlink groups")
	}

	out := make(chan ctiface.Message, 64)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				msg, ok := toMessage(ev)
				if !ok {
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, errs, nil
}

// Dump implements ctiface.Source. zeroCounters requests the kernel zero
// each flow's counters as they're read, matching spec.md's zeroing-dump
// semantics used on period rollover and refresh.
func (s *Source) Dump(ctx context.Context, zeroCounters bool) (<-chan ctiface.Message, error) {
	var (
		flows []conntrack.Flow
		err   error
	)
	if zeroCounters {
		flows, err = s.conn.DumpZero()
	} else {
		flows, err = s.conn.Dump()
	}
	if err != nil {
		return nil, errors.NewIOError(err, "dumping conntrack table")
	}

	out := make(chan ctiface.Message, len(flows))
	go func() {
		defer close(out)
		for _, f := range flows {
			msg, ok := flowToMessage(f)
			if !ok {
				continue
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close implements ctiface.Source.
func (s *Source) Close() error {
	return s.conn.Close()
}

func toMessage(ev conntrack.Event) (ctiface.Message, bool) {
	var typ ctiface.EventType
	switch ev.Type {
	case conntrack.EventNew:
		typ = ctiface.EventNew
	case conntrack.EventUpdate:
		typ = ctiface.EventUpdate
	case conntrack.EventDestroy:
		typ = ctiface.EventDestroy
	default:
		return ctiface.Message{}, false
	}

	msg, ok := flowToMessage(ev.Flow)
	if !ok {
		return ctiface.Message{}, false
	}
	msg.Type = typ
	return msg, true
}

func flowToMessage(f conntrack.Flow) (ctiface.Message, bool) {
	origAddr, ok := netip.AddrFromSlice(f.TupleOrig.IP.SourceAddress)
	if !ok {
		return ctiface.Message{}, false
	}
	origDst, ok := netip.AddrFromSlice(f.TupleOrig.IP.DestinationAddress)
	if !ok {
		return ctiface.Message{}, false
	}
	replyAddr, ok := netip.AddrFromSlice(f.TupleReply.IP.SourceAddress)
	if !ok {
		return ctiface.Message{}, false
	}
	replyDst, ok := netip.AddrFromSlice(f.TupleReply.IP.DestinationAddress)
	if !ok {
		return ctiface.Message{}, false
	}

	family := recstore.FamilyV4
	if origAddr.Is6() {
		family = recstore.FamilyV6
	}

	return ctiface.Message{
		Orig: ctiface.Tuple{
			Family:  family,
			Proto:   f.TupleOrig.Proto.Protocol,
			SrcAddr: origAddr.Unmap(),
			DstAddr: origDst.Unmap(),
			SrcPort: f.TupleOrig.Proto.SourcePort,
			DstPort: f.TupleOrig.Proto.DestinationPort,
			Packets: f.CountersOrig.Packets,
			Bytes:   f.CountersOrig.Bytes,
		},
		Reply: ctiface.Tuple{
			Family:  family,
			Proto:   f.TupleReply.Proto.Protocol,
			SrcAddr: replyAddr.Unmap(),
			DstAddr: replyDst.Unmap(),
			SrcPort: f.TupleReply.Proto.SourcePort,
			DstPort: f.TupleReply.Proto.DestinationPort,
			Packets: f.CountersReply.Packets,
			Bytes:   f.CountersReply.Bytes,
		},
	}, true
}
