// Package sink writes reassembled bytes to the output file. A sink has no
// notion of offsets: every write lands at the current end of the stream, so
// callers are responsible for writing in byte order.
package sink

import (
	"bufio"
	"fmt"
	"os"

	"github.com/tanq16/surge/internal/utils"
)

type OpenMode string

const (
	ModeOverwrite    OpenMode = "overwrite"
	ModeAppend       OpenMode = "append"
	ModeFailIfExists OpenMode = "fail-if-exists"
	// ModeRename writes to "name-(N).ext" when the path is taken.
	ModeRename OpenMode = "rename"
)

func ParseOpenMode(s string) (OpenMode, error) {
	switch OpenMode(s) {
	case ModeOverwrite, ModeAppend, ModeFailIfExists, ModeRename:
		return OpenMode(s), nil
	case "":
		return ModeOverwrite, nil
	}
	return "", fmt.Errorf("unknown open mode %q (want overwrite, append, fail-if-exists or rename)", s)
}

func (m OpenMode) flags() int {
	switch m {
	case ModeAppend:
		return os.O_WRONLY | os.O_CREATE | os.O_APPEND
	case ModeFailIfExists, ModeRename:
		return os.O_WRONLY | os.O_CREATE | os.O_EXCL
	default:
		return os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
}

// File is an append-only, buffered output file.
type File struct {
	path    string
	f       *os.File
	w       *bufio.Writer
	written int64
	closed  bool
}

func Open(path string, mode OpenMode) (*File, error) {
	if mode == ModeRename {
		if _, err := os.Stat(path); err == nil {
			path = utils.RenewOutputPath(path)
		}
	}
	f, err := os.OpenFile(path, mode.flags(), 0644)
	if err != nil {
		return nil, &utils.IOError{Op: "open", Path: path, Err: err}
	}
	return &File{
		path: path,
		f:    f,
		w:    bufio.NewWriterSize(f, utils.DefaultBufferSize),
	}, nil
}

func (s *File) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	s.written += int64(n)
	if err != nil {
		return n, &utils.IOError{Op: "write", Path: s.path, Err: err}
	}
	return n, nil
}

// Flush drains the buffer and syncs the file to stable storage.
func (s *File) Flush() error {
	if err := s.w.Flush(); err != nil {
		return &utils.IOError{Op: "flush", Path: s.path, Err: err}
	}
	if err := s.f.Sync(); err != nil {
		return &utils.IOError{Op: "sync", Path: s.path, Err: err}
	}
	return nil
}

func (s *File) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	flushErr := s.w.Flush()
	if err := s.f.Close(); err != nil {
		return &utils.IOError{Op: "close", Path: s.path, Err: err}
	}
	if flushErr != nil {
		return &utils.IOError{Op: "flush", Path: s.path, Err: flushErr}
	}
	return nil
}

// Written returns the number of bytes accepted by Write since Open.
func (s *File) Written() int64 {
	return s.written
}

func (s *File) Path() string {
	return s.path
}
