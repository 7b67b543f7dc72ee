// Package linereader reads complete lines appended to a file since a byte
// offset. Trailing partial lines are left unconsumed so they are re-read whole
// on the next call.
package linereader

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// ErrNotRegular is returned when the path is a directory or device
var ErrNotRegular = errors.New("not a regular file")

// Line is one complete, non-empty line. Number is 1-based and absolute within
// the file; Offset is the byte offset of the line's first byte.
type Line struct {
	Number int
	Offset int64
	Text   string // trimmed
	Raw    string // without the line terminator, otherwise untouched
}

// Result describes one read
type Result struct {
	Path       string
	FromOffset int64 // effective start offset after any reset
	NewOffset  int64 // offset just past the last consumed newline
	Size       int64
	ModTime    time.Time
	WasReset   bool // the file shrank below the requested offset
	Fragment   bool // the first line started mid-line and was skipped
	Lines      []Line
}

// Read returns every complete line in [fromOffset, EOF). If the file is now
// smaller than fromOffset it was truncated or replaced, so reading restarts at 0
// and WasReset is set.
func Read(path string, fromOffset int64) (*Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: %w", path, ErrNotRegular)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	result := &Result{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}

	if fromOffset < 0 {
		fromOffset = 0
	}
	if fromOffset > info.Size() {
		fromOffset = 0
		result.WasReset = true
	}
	result.FromOffset = fromOffset
	result.NewOffset = fromOffset

	onBoundary, err := startsOnBoundary(file, fromOffset)
	if err != nil {
		return nil, err
	}
	linesBefore, err := countNewlines(file, fromOffset)
	if err != nil {
		return nil, err
	}

	// Bound the read by the size observed at stat time; anything appended
	// meanwhile is picked up by the next run.
	buf, err := io.ReadAll(io.NewSectionReader(file, fromOffset, info.Size()-fromOffset))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	last := bytes.LastIndexByte(buf, '\n')
	if last < 0 {
		return result, nil
	}
	consumed := buf[:last+1]
	result.NewOffset = fromOffset + int64(len(consumed))

	lineNumber := linesBefore + 1
	offset := fromOffset
	first := true
	for len(consumed) > 0 {
		idx := bytes.IndexByte(consumed, '\n')
		segment := consumed[:idx+1]
		consumed = consumed[idx+1:]

		raw := strings.TrimSuffix(string(segment[:len(segment)-1]), "\r")
		if first && !onBoundary {
			result.Fragment = true
		} else if text := strings.TrimSpace(raw); text != "" {
			result.Lines = append(result.Lines, Line{
				Number: lineNumber,
				Offset: offset,
				Text:   text,
				Raw:    raw,
			})
		}

		first = false
		lineNumber++
		offset += int64(len(segment))
	}

	return result, nil
}

// startsOnBoundary reports whether offset sits right after a newline
func startsOnBoundary(file *os.File, offset int64) (bool, error) {
	if offset == 0 {
		return true, nil
	}
	prev := make([]byte, 1)
	if _, err := file.ReadAt(prev, offset-1); err != nil {
		return false, fmt.Errorf("failed to inspect byte before offset %d: %w", offset, err)
	}
	return prev[0] == '\n', nil
}

// countNewlines counts newlines in [0, limit) with a single forward scan
func countNewlines(file *os.File, limit int64) (int, error) {
	if limit == 0 {
		return 0, nil
	}
	reader := bufio.NewReaderSize(io.NewSectionReader(file, 0, limit), 64*1024)
	chunk := make([]byte, 64*1024)
	count := 0
	for {
		n, err := reader.Read(chunk)
		count += bytes.Count(chunk[:n], []byte{'\n'})
		if err == io.EOF {
			return count, nil
		}
		if err != nil {
			return 0, fmt.Errorf("failed to count lines: %w", err)
		}
	}
}
