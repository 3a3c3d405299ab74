package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsafeFilename is returned for names that would escape the target directory.
var ErrUnsafeFilename = errors.New("archive: unsafe filename")

const maxSaveAttempts = 1000

// FileSaver persists a downloaded artifact and returns where it went.
type FileSaver interface {
	Save(ctx context.Context, artifact Artifact) (string, error)
}

// DirSaver writes artifacts into Dir without ever overwriting an existing file.
type DirSaver struct {
	Dir  string
	Perm fs.FileMode
}

// Save writes the artifact as Dir/Filename, adding " (1)", " (2)"... before the extension on collision.
func (s DirSaver) Save(ctx context.Context, artifact Artifact) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := artifact.Filename
	if !SafeFilename(name) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeFilename, name)
	}
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}
	perm := s.Perm
	if perm == 0 {
		perm = 0o644
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 0; i < maxSaveAttempts; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", base, i, ext)
		}
		path := filepath.Join(dir, candidate)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create %s: %w", candidate, err)
		}
		if _, err := f.Write(artifact.Payload); err != nil {
			f.Close()
			os.Remove(path)
			return "", fmt.Errorf("write %s: %w", candidate, err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("close %s: %w", candidate, err)
		}
		return path, nil
	}
	return "", fmt.Errorf("no free filename for %q", name)
}

// SafeFilename reports whether name is a plain file name with no directory component.
func SafeFilename(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return false
	}
	return filepath.Base(name) == name && !filepath.IsAbs(name)
}
