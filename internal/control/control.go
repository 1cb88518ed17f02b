// Package control implements the control endpoint (spec.md §4.6): a local
// unix stream socket, connection-per-request, serving `dump [stamp]`,
// `list`, and `commit` to the reporting client. Single-accept per spec.md
// §4.6 and §9 ("preserve the contract that at most one client is in
// flight"): the listener is removed from the accept loop while a session
// is in progress and re-armed once it ends. Each session is bounded by a
// short idle deadline since clients are non-interactive.
package control

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nlbwmon/nlbwmon-go/internal/interval"
	"github.com/nlbwmon/nlbwmon-go/internal/persist"
	"github.com/nlbwmon/nlbwmon-go/internal/recstore"
	"github.com/nlbwmon/nlbwmon-go/pkg/errors"
)

// IdleTimeout bounds how long a single client session may remain open,
// per spec.md §4.6 ("~100 ms after which the session is closed regardless
// of remaining work").
const IdleTimeout = 100 * time.Millisecond

// Request is a unit of work the control endpoint needs to run with
// exclusive access to the live store. spec.md §5 reserves all store
// mutation and access — "ingest, timers, archive, the control endpoint" —
// to the single event-loop goroutine; Request is how the control
// endpoint's own goroutine hands that work back to the loop instead of
// touching the store itself. The event loop runs Run and closes Done;
// dispatch blocks the control goroutine on Done so the request completes
// before the response is written to the client.
type Request struct {
	Run  func()
	Done chan struct{}
}

// Config bundles the control endpoint's collaborators, in the teacher's
// Config-struct idiom.
type Config struct {
	SocketPath  string
	Store       func() *recstore.Store // returns the live store; only call from within dispatch
	PersistDir  string
	Interval    interval.Descriptor
	Generations int
	Compress    bool
	Commit      func(ctx context.Context) error
	// Requests is where dispatch posts live-store work for the event loop
	// to run. Nil means no event loop is driving this server (e.g. tests
	// exercising the control endpoint standalone), in which case dispatch
	// runs the work inline.
	Requests chan Request
	Log      *zap.SugaredLogger
}

// Server is the control endpoint's unix-socket listener.
type Server struct {
	cfg Config
	ln  net.Listener
}

// Listen opens the unix socket at cfg.SocketPath, removing any stale
// socket file left behind by an unclean shutdown first.
func Listen(cfg Config) (*Server, error) {
	_ = os.Remove(cfg.SocketPath)

	ln, err := net.Listen("unix", cfg.SocketPath)
	if err != nil {
		return nil, errors.NewIOError(err, "listening on control socket").WithPath(cfg.SocketPath)
	}
	return &Server{cfg: cfg, ln: ln}, nil
}

// Close releases the listener and removes the socket file.
func (s *Server) Close() error {
	err := s.ln.Close()
	_ = os.Remove(s.cfg.SocketPath)
	return err
}

// Serve runs the single-accept loop described in spec.md §4.6 and §9: the
// listener accepts one connection, services it to completion, then
// accepts the next. It returns when ctx is cancelled or the listener is
// closed.
func (s *Server) Serve(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		s.ln.Close()
		close(done)
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-done:
				return nil
			default:
			}
			return errors.NewIOError(err, "accepting control connection")
		}

		s.handle(ctx, conn)
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(IdleTimeout))

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		line = strings.TrimSpace(line)
		if line == "" {
			return
		}
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	fields := strings.Fields(line)
	cmd := fields[0]
	var arg string
	if len(fields) > 1 {
		arg = fields[1]
	}

	var handleErr error
	switch cmd {
	case "dump":
		handleErr = s.handleDump(conn, arg)
	case "list":
		handleErr = s.handleList(conn)
	case "commit":
		handleErr = s.handleCommit(ctx, conn)
	default:
		handleErr = fmt.Errorf("unknown command %q", cmd)
	}

	if handleErr != nil && s.cfg.Log != nil {
		s.cfg.Log.Warnw("control request failed", "command", cmd, "error", handleErr)
	}
}

// dispatch runs fn with exclusive access to the live store. When an event
// loop is driving this server, fn is posted to cfg.Requests and dispatch
// blocks until the loop goroutine has run it — the control goroutine
// itself never touches the live store, per spec.md §5. With no event loop
// configured (cfg.Requests nil), fn runs inline.
func (s *Server) dispatch(fn func()) {
	if s.cfg.Requests == nil {
		fn()
		return
	}
	done := make(chan struct{})
	s.cfg.Requests <- Request{Run: fn, Done: done}
	<-done
}

// handleDump implements `dump [stamp]`: stamp 0 or absent streams the live
// store; a non-zero stamp loads the archived period on the fly and
// streams that instead, per spec.md §4.6. The live-store branch runs
// through dispatch so the read happens on the event-loop goroutine instead
// of racing with ingest/timer mutation of the same store.
func (s *Server) handleDump(conn net.Conn, arg string) error {
	stamp := uint32(0)
	if arg != "" {
		v, err := strconv.ParseUint(arg, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid stamp %q: %w", arg, err)
		}
		stamp = uint32(v)
	}

	var buf []byte
	if stamp == 0 {
		s.dispatch(func() {
			live := s.cfg.Store()
			buf = s.encodeDump(live, live.Timestamp)
		})
	} else {
		store := recstore.NewIdentityMemStore()
		if err := persist.Load(persist.Config{Log: s.cfg.Log}, s.cfg.PersistDir, stamp, store); err != nil {
			return err
		}
		buf = s.encodeDump(store, stamp)
	}

	return fullWrite(conn, buf)
}

// encodeDump serialises store's header+records for the given stamp, per
// spec.md §3/§6's on-disk/wire database layout.
func (s *Server) encodeDump(store *recstore.Store, stamp uint32) []byte {
	typ, val, base := s.cfg.Interval.Encode()
	header := recstore.Header{
		Entries:     uint32(store.Len()),
		Timestamp:   stamp,
		IntervalTyp: typ,
		IntervalVal: val,
		IntervalBas: base,
	}

	buf := make([]byte, recstore.HeaderSize+store.Len()*recstore.RecSize)
	header.EncodeTo(buf[:recstore.HeaderSize])
	offset := recstore.HeaderSize
	for rec := range store.Iter() {
		rec.EncodeTo(buf[offset : offset+recstore.RecSize])
		offset += recstore.RecSize
	}
	return buf
}

// handleList implements `list`: stream u32 stamps in native byte order,
// descending, starting from the current period and walking backward one
// period at a time via interval.Descriptor.Prev, stopping at the first
// stamp whose file is absent (spec.md §4.6). Reading the live store's
// current stamp is dispatched to the event-loop goroutine for the same
// reason as handleDump.
func (s *Server) handleList(conn net.Conn) error {
	var stamp uint32
	s.dispatch(func() { stamp = s.cfg.Store().Timestamp })

	for {
		if err := fullWriteNative(conn, stamp); err != nil {
			return err
		}

		prev := s.cfg.Interval.Prev(stamp)
		if err := persist.Load(persist.Config{}, s.cfg.PersistDir, prev, nil); err != nil {
			if errors.IsMissing(err) {
				return nil
			}
			return err
		}
		stamp = prev
	}
}

// handleCommit implements `commit`: save the live store under its current
// stamp, replying "<neg_errno> <message>" — "0 ok" on success, per spec.md
// §4.6. The client parses the first integer as the negative of the
// server's error code. The save itself is dispatched to the event-loop
// goroutine, since it reads and marks the live store.
func (s *Server) handleCommit(ctx context.Context, conn net.Conn) error {
	var err error
	s.dispatch(func() { err = s.cfg.Commit(ctx) })

	if err != nil {
		code := errors.GetErrorCode(err)
		resp := fmt.Sprintf("%d %s\n", -errnoFor(code), err.Error())
		return fullWrite(conn, []byte(resp))
	}
	return fullWrite(conn, []byte("0 ok\n"))
}

// errnoFor maps an error category onto a small positive errno value;
// handleCommit negates it for the commit response, matching the protocol
// the original nlbwmon client expects to parse (spec.md §4.6, §6).
func errnoFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrorCodeInvalid:
		return 22 // EINVAL
	case errors.ErrorCodeMissing:
		return 2 // ENOENT
	case errors.ErrorCodeConflict:
		return 17 // EEXIST
	case errors.ErrorCodeResourceExhausted:
		return 28 // ENOSPC
	case errors.ErrorCodeStale:
		return 11 // EAGAIN
	default:
		return 5 // EIO
	}
}

// fullWrite loops on conn.Write to tolerate partial writes, per spec.md
// §4.6 ("Full send loops tolerate partial writes and resume until length
// is satisfied").
func fullWrite(conn net.Conn, buf []byte) error {
	for len(buf) > 0 {
		n, err := conn.Write(buf)
		if err != nil {
			return errors.NewIOError(err, "writing control response")
		}
		buf = buf[n:]
	}
	return nil
}

func fullWriteNative(conn net.Conn, v uint32) error {
	var buf [4]byte
	binary.NativeEndian.PutUint32(buf[:], v)
	return fullWrite(conn, buf[:])
}
