package leafstream

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// FileSource is a Source backed by a file on disk.
// Safe for repeated range reads.
type FileSource struct {
	file        *os.File
	name        string
	size        int64
	contentType string
}

// OpenFileSource opens the file at path and derives the content type from
// the file extension, falling back to application/octet-stream.
func OpenFileSource(path string) (*FileSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close() //nolint:errcheck
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		file.Close() //nolint:errcheck
		return nil, fmt.Errorf("%s is a directory", path)
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	// Strip optional parameters such as "; charset=utf-8"
	if i := strings.Index(contentType, ";"); i != -1 {
		contentType = strings.TrimSpace(contentType[:i])
	}

	return &FileSource{
		file:        file,
		name:        filepath.Base(path),
		size:        info.Size(),
		contentType: contentType,
	}, nil
}

// Name returns the base name of the file.
func (s *FileSource) Name() string {
	return s.name
}

// Size returns the file size in bytes.
func (s *FileSource) Size() int64 {
	return s.size
}

// ContentType returns the MIME type derived from the file extension.
func (s *FileSource) ContentType() string {
	return s.contentType
}

// ReadRange returns the exact bytes of the range [offset, offset+length).
func (s *FileSource) ReadRange(offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > s.size {
		return nil, fmt.Errorf("range [%d, %d) out of bounds for size %d", offset, offset+length, s.size)
	}

	buf := make([]byte, length)
	n, err := s.file.ReadAt(buf, offset)
	if err != nil && !(err == io.EOF && int64(n) == length) {
		return nil, fmt.Errorf("read range at %d: %w", offset, err)
	}
	return buf, nil
}

// Close closes the underlying file.
func (s *FileSource) Close() error {
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

// BytesSource is an in-memory Source, mainly useful in tests.
type BytesSource struct {
	name        string
	contentType string
	data        []byte
}

// NewBytesSource creates a Source over the given byte slice.
func NewBytesSource(name, contentType string, data []byte) *BytesSource {
	return &BytesSource{name: name, contentType: contentType, data: data}
}

// Name returns the source's file name.
func (s *BytesSource) Name() string {
	return s.name
}

// Size returns the length of the underlying slice.
func (s *BytesSource) Size() int64 {
	return int64(len(s.data))
}

// ContentType returns the source's MIME type.
func (s *BytesSource) ContentType() string {
	return s.contentType
}

// ReadRange returns the exact bytes of the range [offset, offset+length).
func (s *BytesSource) ReadRange(offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > int64(len(s.data)) {
		return nil, fmt.Errorf("range [%d, %d) out of bounds for size %d", offset, offset+length, len(s.data))
	}
	out := make([]byte, length)
	copy(out, s.data[offset:offset+length])
	return out, nil
}
