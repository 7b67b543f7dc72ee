package desktoplog

import (
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/google/uuid"
)

// codex-desktop-<uuid>-<pid>-t<tid>-i<instance>-<seq>.log
var filenamePattern = regexp.MustCompile(`^codex-desktop-([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})-(\d+)-t(\d+)-i(\d+)-(\d+)\.log$`)

// FileMeta is derived from a desktop log's filename. All fields are nil when
// the name does not follow the naming scheme.
type FileMeta struct {
	AppSessionID *string
	ProcessID    *int
	ThreadID     *int
	InstanceID   *int
	SegmentIndex *int
}

// ParseFilename extracts FileMeta from path's base name
func ParseFilename(path string) FileMeta {
	m := filenamePattern.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return FileMeta{}
	}

	id, err := uuid.Parse(m[1])
	if err != nil {
		return FileMeta{}
	}
	ints := make([]*int, 4)
	for i := range ints {
		v, err := strconv.Atoi(m[i+2])
		if err != nil {
			return FileMeta{}
		}
		ints[i] = &v
	}

	session := id.String()
	return FileMeta{
		AppSessionID: &session,
		ProcessID:    ints[0],
		ThreadID:     ints[1],
		InstanceID:   ints[2],
		SegmentIndex: ints[3],
	}
}
