package persist

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/nlbwmon/nlbwmon-go/internal/interval"
	"github.com/nlbwmon/nlbwmon-go/pkg/filesys"
)

// Cleanup removes on-disk periods older than the retention window: walking
// back generations steps from nowStamp via ivl.Prev, every stamp reached is
// kept, and every other *.db/*.db.gz file in dir is deleted. generations<=0
// disables cleanup entirely (unbounded retention).
func Cleanup(log *zap.SugaredLogger, dir string, nowStamp uint32, generations int, ivl interval.Descriptor) error {
	if generations <= 0 {
		return nil
	}

	keep := make(map[uint32]bool, generations)
	stamp := nowStamp
	for i := 0; i < generations; i++ {
		keep[stamp] = true
		stamp = ivl.Prev(stamp)
	}

	files, err := filesys.ReadDir(fmt.Sprintf("%s/*.db*", dir))
	if err != nil {
		return err
	}

	for _, path := range files {
		stamp, ok := stampFromPath(path)
		if !ok || keep[stamp] {
			continue
		}
		if err := filesys.DeleteFile(path); err != nil {
			return err
		}
		if log != nil {
			log.Infow("removed expired period", "stamp", stamp, "path", path)
		}
	}
	return nil
}

// stampFromPath extracts the yyyymmdd stamp from a "<stamp>.db" or
// "<stamp>.db.gz" basename.
func stampFromPath(path string) (uint32, bool) {
	base := path
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		base = path[idx+1:]
	}
	base = strings.TrimSuffix(base, ".gz")
	base = strings.TrimSuffix(base, ".db")
	n, err := strconv.ParseUint(base, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}
