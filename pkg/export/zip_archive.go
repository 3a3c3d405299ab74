package export

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
)

// ZipArchive accumulates files into an in-memory zip archive.
type ZipArchive struct {
	buf     *bytes.Buffer
	writer  *zip.Writer
	entries map[string]struct{}
	closed  bool
}

// NewZipArchive starts an empty archive.
func NewZipArchive() *ZipArchive {
	buf := &bytes.Buffer{}
	return &ZipArchive{
		buf:     buf,
		writer:  zip.NewWriter(buf),
		entries: make(map[string]struct{}),
	}
}

// AddFile writes a complete file under name.
func (a *ZipArchive) AddFile(name string, data []byte, modified time.Time) error {
	return a.AddStream(name, bytes.NewReader(data), modified)
}

// AddStream copies r into the archive under name. Duplicate names get a numeric suffix.
func (a *ZipArchive) AddStream(name string, r io.Reader, modified time.Time) error {
	if a.closed {
		return fmt.Errorf("zip archive already closed")
	}
	name = a.uniqueName(cleanEntryName(name))
	header := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modified,
	}
	w, err := a.writer.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("create zip entry %s: %w", name, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("write zip entry %s: %w", name, err)
	}
	return nil
}

// Len reports how many entries were written.
func (a *ZipArchive) Len() int {
	return len(a.entries)
}

// Bytes finalises the archive and returns its content.
func (a *ZipArchive) Bytes() ([]byte, error) {
	if !a.closed {
		if err := a.writer.Close(); err != nil {
			return nil, fmt.Errorf("close zip archive: %w", err)
		}
		a.closed = true
	}
	return a.buf.Bytes(), nil
}

func (a *ZipArchive) uniqueName(name string) string {
	candidate := name
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		if _, exists := a.entries[candidate]; !exists {
			a.entries[candidate] = struct{}{}
			return candidate
		}
		candidate = fmt.Sprintf("%s_%d%s", base, i, ext)
	}
}

func cleanEntryName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Clean("/" + name)
	name = strings.TrimPrefix(name, "/")
	if name == "" || name == "." {
		return "file"
	}
	return name
}
