package pki

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// Source supplies PEM material on demand.
type Source interface {
	io.Reader
	// Origin describes where the bytes come from, for diagnostics.
	Origin() string
}

// SourceError reports a failure to open or read a path backed Source.
type SourceError struct {
	Path string
	Err  error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("error reading file (%q): %v", e.Path, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// LazyFile is a Source that does not touch the filesystem until the first Read.
// Once opened, the file stays open for subsequent reads until Close.
type LazyFile struct {
	path string
	file *os.File
}

var _ Source = (*LazyFile)(nil)
var _ io.Closer = (*LazyFile)(nil)

func FromPath(path string) *LazyFile {
	return &LazyFile{
		path: path,
	}
}

func (l *LazyFile) Read(b []byte) (int, error) {
	if l.file == nil {
		f, err := os.Open(l.path)
		if err != nil {
			return 0, &SourceError{Path: l.path, Err: err}
		}
		l.file = f
	}
	n, err := l.file.Read(b)
	if err != nil && err != io.EOF {
		return n, &SourceError{Path: l.path, Err: err}
	}
	return n, err
}

func (l *LazyFile) Origin() string {
	return l.path
}

// Opened reports whether the underlying file has been opened.
func (l *LazyFile) Opened() bool {
	return l.file != nil
}

func (l *LazyFile) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

type memory struct {
	*bytes.Reader
}

func (memory) Origin() string {
	return "memory"
}

// FromBytes returns a Source over a private copy of b. It never fails.
func FromBytes(b []byte) Source {
	return memory{
		Reader: bytes.NewReader(append([]byte(nil), b...)),
	}
}

// Empty returns a Source with no content.
func Empty() Source {
	return FromBytes(nil)
}

// ReadAll drains src and closes it when it holds a file.
func ReadAll(src Source) ([]byte, error) {
	if c, ok := src.(io.Closer); ok {
		defer c.Close()
	}
	return io.ReadAll(src)
}
