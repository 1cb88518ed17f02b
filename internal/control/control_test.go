package control_test

import (
	"bufio"
	"context"
	"encoding/binary"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlbwmon/nlbwmon-go/internal/control"
	"github.com/nlbwmon/nlbwmon-go/internal/interval"
	"github.com/nlbwmon/nlbwmon-go/internal/persist"
	"github.com/nlbwmon/nlbwmon-go/internal/recstore"
)

func newLiveStore(t *testing.T) *recstore.Store {
	t.Helper()
	s := recstore.NewPeriodStore(20250101, false, 0)
	rec := &recstore.Record{Family: recstore.FamilyV4, Proto: 6, DstPort: 443, Count: 1, OutBytes: 64}
	rec.SrcAddr[15] = 10
	require.NoError(t, s.Insert(rec))
	return s
}

func startServer(t *testing.T, store *recstore.Store, dir string, ivl interval.Descriptor) (*control.Server, string) {
	t.Helper()
	sockPath := filepath.Join(t.TempDir(), "nlbwmon.sock")

	srv, err := control.Listen(control.Config{
		SocketPath:  sockPath,
		Store:       func() *recstore.Store { return store },
		PersistDir:  dir,
		Interval:    ivl,
		Generations: 0,
		Commit: func(ctx context.Context) error {
			return persist.Save(persist.Config{}, dir, store.Timestamp, ivl, false, store)
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	go srv.Serve(ctx)
	return srv, sockPath
}

func TestDumpLiveStore(t *testing.T) {
	store := newLiveStore(t)
	ivl := interval.Monthly{Day: 1}
	_, sockPath := startServer(t, store, t.TempDir(), ivl)

	conn, err := net.DialTimeout("unix", sockPath, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("dump\n"))
	require.NoError(t, err)

	header := make([]byte, recstore.HeaderSize)
	_, err = readFull(conn, header)
	require.NoError(t, err)

	h := recstore.DecodeHeader(header)
	assert.EqualValues(t, 1, h.Entries)

	recBuf := make([]byte, recstore.RecSize)
	_, err = readFull(conn, recBuf)
	require.NoError(t, err)
	rec := recstore.DecodeRecord(recBuf)
	assert.EqualValues(t, 64, rec.OutBytes)
}

func TestCommitThenList(t *testing.T) {
	store := newLiveStore(t)
	ivl := interval.Monthly{Day: 1}
	dir := t.TempDir()
	_, sockPath := startServer(t, store, dir, ivl)

	conn, err := net.DialTimeout("unix", sockPath, time.Second)
	require.NoError(t, err)
	_, err = conn.Write([]byte("commit\n"))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "0 ok\n", line)
	conn.Close()

	conn2, err := net.DialTimeout("unix", sockPath, time.Second)
	require.NoError(t, err)
	defer conn2.Close()
	_, err = conn2.Write([]byte("list\n"))
	require.NoError(t, err)

	buf := make([]byte, 4)
	_, err = readFull(conn2, buf)
	require.NoError(t, err)
	stamp := binary.NativeEndian.Uint32(buf)
	assert.EqualValues(t, 20250101, stamp)
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	conn.SetDeadline(time.Now().Add(2 * time.Second))
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
