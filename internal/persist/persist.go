// Package persist implements the accounting engine's on-disk database
// format: a fixed header followed by packed records, written either raw or
// gzip-compressed, one file per accounting period. It is adapted from the
// teacher's segment-file save/load pair (internal/storage), trading the
// teacher's chunked segment layout for a single whole-period file since
// accounting periods are small and bounded.
package persist

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/nlbwmon/nlbwmon-go/internal/interval"
	"github.com/nlbwmon/nlbwmon-go/internal/recstore"
	"github.com/nlbwmon/nlbwmon-go/pkg/errors"
	"github.com/nlbwmon/nlbwmon-go/pkg/filesys"
)

// Config bundles the collaborators a persist call needs, in the teacher's
// Config-struct idiom.
type Config struct {
	Log *zap.SugaredLogger
}

func rawName(ts uint32) string { return fmt.Sprintf("%d.db", ts) }
func gzName(ts uint32) string  { return fmt.Sprintf("%d.db.gz", ts) }

// locate returns the path a stamp is stored under and whether it's
// gzip-compressed, probing the compressed variant first and falling back
// to the raw file, per spec.md §4.5 ("Probe <stamp>.db.gz first, then
// <stamp>.db").
func locate(dir string, ts uint32) (path string, compressed bool, ok bool) {
	gz := filepath.Join(dir, gzName(ts))
	if exists, _ := filesys.Exists(gz); exists {
		return gz, true, true
	}
	raw := filepath.Join(dir, rawName(ts))
	if exists, _ := filesys.Exists(raw); exists {
		return raw, false, true
	}
	return "", false, false
}

// Save writes store's live records to dir under stamp ts, using ivl to
// populate the header's interval descriptor. If store is pristine (never
// previously loaded from or saved to disk) and a file already exists for
// ts, Save refuses and returns a Conflict error instead of overwriting:
// the caller is expected to Load the existing file first (which merges its
// records into store) and retry.
func Save(cfg Config, dir string, ts uint32, ivl interval.Descriptor, compress bool, store *recstore.Store) error {
	name := rawName(ts)
	if compress {
		name = gzName(ts)
	}
	path := filepath.Join(dir, name)

	if store.Pristine() {
		if _, _, found := locate(dir, ts); found {
			return errors.NewConflictError(path, ts)
		}
	}

	typ, val, base := ivl.Encode()
	header := recstore.Header{
		Entries:     uint32(store.Len()),
		Timestamp:   ts,
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

	if err := filesys.CreateDir(dir, 0755, true); err != nil {
		return errors.NewIOError(err, "creating persistent directory").WithPath(dir)
	}

	var payload []byte
	if compress {
		var gzBuf bytes.Buffer
		gw := gzip.NewWriter(&gzBuf)
		if _, err := gw.Write(buf); err != nil {
			return errors.NewIOError(err, "compressing database").WithPath(path)
		}
		if err := gw.Close(); err != nil {
			return errors.NewIOError(err, "closing gzip writer").WithPath(path)
		}
		payload = gzBuf.Bytes()
	} else {
		payload = buf
	}

	tmp, err := os.CreateTemp(dir, ".nlbwmon-db-*")
	if err != nil {
		return errors.NewIOError(err, "creating temp file").WithPath(dir)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return errors.NewIOError(err, "writing database").WithPath(tmpName)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.NewIOError(err, "syncing database").WithPath(tmpName)
	}
	if err := tmp.Close(); err != nil {
		return errors.NewIOError(err, "closing temp file").WithPath(tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.NewIOError(err, "renaming database into place").WithPath(path).WithFileName(name)
	}

	store.MarkSaved(ts)
	if cfg.Log != nil {
		cfg.Log.Infow("saved period", "stamp", ts, "entries", header.Entries, "path", path, "compressed", compress)
	}
	return nil
}

// Load reads the file persisted for stamp ts in dir and merges its records
// into store via Insert. If store is nil, Load acts as an existence probe:
// it validates the file's header and returns nil without allocating any
// record state. Load returns a Missing error if no file exists for ts.
func Load(cfg Config, dir string, ts uint32, store *recstore.Store) error {
	path, compressed, found := locate(dir, ts)
	if !found {
		return errors.NewMissingError("no database for stamp").WithKey(fmt.Sprintf("%d", ts)).WithPath(dir)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.NewIOError(err, "reading database").WithPath(path)
	}

	if compressed {
		gr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return errors.NewIOError(err, "opening gzip database").WithPath(path)
		}
		defer gr.Close()
		raw, err = io.ReadAll(gr)
		if err != nil {
			return errors.NewIOError(err, "decompressing database").WithPath(path)
		}
	}

	if len(raw) < recstore.HeaderSize || !recstore.MagicValid(raw) {
		return errors.NewInvalidError(nil, "invalid database magic").WithField("magic").WithProvided(path)
	}

	header := recstore.DecodeHeader(raw)
	if header.IntervalTyp == interval.TypeUnset {
		return errors.NewInvalidError(nil, "interval descriptor type is zero").WithField("interval_type").WithProvided(path)
	}
	if header.Timestamp != ts {
		return errors.NewInvalidError(nil, "stamp mismatch").WithField("timestamp").WithProvided(header.Timestamp)
	}

	want := recstore.HeaderSize + int(header.Entries)*recstore.RecSize
	if len(raw) < want {
		return errors.NewIOError(nil, "truncated database").WithPath(path).WithOffset(int64(len(raw)))
	}

	if store == nil {
		return nil
	}

	offset := recstore.HeaderSize
	for i := uint32(0); i < header.Entries; i++ {
		rec := recstore.DecodeRecord(raw[offset : offset+recstore.RecSize])
		if err := store.Insert(&rec); err != nil {
			return err
		}
		offset += recstore.RecSize
	}
	store.MarkLoaded()

	if cfg.Log != nil {
		cfg.Log.Infow("loaded period", "stamp", ts, "entries", header.Entries, "path", path)
	}
	return nil
}
