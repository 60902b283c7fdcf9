package filestore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Disk stores uploaded images under Root. Writes are durable before Save
// returns: the data is fsynced and then renamed into place.
type Disk struct {
	Root     string
	MaxBytes int64
}

// NewDisk creates the root directory if needed.
func NewDisk(root string, maxBytes int64) (*Disk, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Disk{Root: root, MaxBytes: maxBytes}, nil
}

// Save writes r to Root/dir/name and returns the stored path.
func (d *Disk) Save(ctx context.Context, dir, name string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	target := filepath.Join(d.Root, dir)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", fmt.Errorf("create dir: %w", err)
	}
	final := filepath.Join(target, SafeName(name))

	tmp, err := os.CreateTemp(target, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	cleanup := func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}

	src := r
	if d.MaxBytes > 0 {
		src = io.LimitReader(r, d.MaxBytes+1)
	}
	n, err := io.Copy(tmp, src)
	if err != nil {
		cleanup()
		return "", fmt.Errorf("write file: %w", err)
	}
	if d.MaxBytes > 0 && n > d.MaxBytes {
		cleanup()
		return "", ErrTooLarge
	}
	if n == 0 {
		cleanup()
		return "", ErrEmpty
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return "", fmt.Errorf("sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("rename file: %w", err)
	}
	syncDir(target)
	return final, nil
}

// Remove deletes a stored file; a missing file is not an error.
func (d *Disk) Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// SafeName strips path separators and odd characters from a client filename.
func SafeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeName.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "upload"
	}
	return name
}

func syncDir(dir string) {
	f, err := os.Open(dir)
	if err != nil {
		return
	}
	defer f.Close()
	_ = f.Sync()
}
