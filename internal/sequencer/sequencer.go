// Package sequencer decides which files a run processes, and in what order.
package sequencer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrNotFound indicates the starting file does not exist or is not a
// regular file.
var ErrNotFound = errors.New("starting file not found")

// ErrUnreadableDir indicates the starting file's directory cannot be listed.
var ErrUnreadableDir = errors.New("cannot list directory")

// FileInfo identifies one file in the plan.
type FileInfo struct {
	Path    string
	Inode   uint64
	Size    int64
	ModTime time.Time
}

// Plan enumerates the files to process: the starting file itself, followed
// by every sibling whose modification time is greater than or equal to the
// starting file's, ascending by mtime with lexical name order breaking
// ties. The plan is computed once; files appearing later are not picked up.
func Plan(startPath string) ([]FileInfo, error) {
	start, err := statFile(startPath)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(startPath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrUnreadableDir, dir, err)
	}

	plan := []FileInfo{start}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if samePath(path, startPath) {
			continue
		}
		info, err := statFile(path)
		if err != nil {
			// A sibling vanishing between ReadDir and Stat is not fatal.
			log.Warn().Err(err).Str("path", path).Msg("Skipping unreadable sibling")
			continue
		}
		if info.ModTime.Before(start.ModTime) {
			continue
		}
		plan = append(plan, info)
	}

	rest := plan[1:]
	sort.Slice(rest, func(i, j int) bool {
		if !rest[i].ModTime.Equal(rest[j].ModTime) {
			return rest[i].ModTime.Before(rest[j].ModTime)
		}
		return rest[i].Path < rest[j].Path
	})

	log.Debug().
		Str("start", startPath).
		Int("files", len(plan)).
		Msg("File plan computed")

	return plan, nil
}

func statFile(path string) (FileInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileInfo{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return FileInfo{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !fi.Mode().IsRegular() {
		return FileInfo{}, fmt.Errorf("%w: %s is not a regular file", ErrNotFound, path)
	}
	return FileInfo{
		Path:    path,
		Inode:   inodeOf(fi),
		Size:    fi.Size(),
		ModTime: fi.ModTime(),
	}, nil
}

func samePath(a, b string) bool {
	ra, err := filepath.Abs(a)
	if err != nil {
		return a == b
	}
	rb, err := filepath.Abs(b)
	if err != nil {
		return a == b
	}
	return ra == rb
}

// inodeOf extracts the inode from FileInfo, or 0 where unsupported.
func inodeOf(fi os.FileInfo) uint64 {
	if stat, ok := fi.Sys().(*syscall.Stat_t); ok {
		return stat.Ino
	}
	return 0
}
