package msglog

import (
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"
)

// scanRoster lists the base offsets of every segment pair already present
// under dir, sorted ascending — how a topic recovers its segment list
// after a broker restart.
func scanRoster(dir string) ([]uint64, error) {
	bases := map[uint64]struct{}{}

	err := godirwalk.Walk(dir, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				return nil
			}
			name := filepath.Base(path)
			ext := filepath.Ext(name)
			if ext != ".data" && ext != ".index" {
				return nil
			}
			stem := strings.TrimSuffix(name, ext)
			base, err := strconv.ParseUint(stem, 10, 64)
			if err != nil {
				return nil
			}
			bases[base] = struct{}{}
			return nil
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "msglog: scan segment roster")
	}

	out := make([]uint64, 0, len(bases))
	for b := range bases {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
