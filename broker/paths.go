package broker

import (
	"path/filepath"
	"strings"
)

// topicDir maps a validated "<namespace>/<topic>" path to its segment
// directory: <root>/<namespace>/<topic>/<base_offset>.{data,index}.
func topicDir(root, path string) string {
	ns, topic, _ := strings.Cut(path, "/")
	return filepath.Join(root, ns, topic)
}
