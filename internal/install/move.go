package install

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Move renames src to dst, replacing any existing dst.
func Move(src, dst string) error {
	if filepath.Clean(src) == filepath.Clean(dst) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("move: mkdir: %w", err)
	}
	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("move: clear %s: %w", dst, err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("move %s: %w", src, err)
	}
	return nil
}

// overlay moves every file under src onto the same relative path under dst.
// Files it replaces are parked under backup so undo can restore them.
type overlay struct {
	src, dst, backup string
	replaced         []string
	created          []string
}

func (o *overlay) apply() error {
	return filepath.WalkDir(o.src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(o.src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(o.dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}

		if _, err := os.Lstat(target); err == nil {
			parked := filepath.Join(o.backup, rel)
			if err := os.MkdirAll(filepath.Dir(parked), 0o755); err != nil {
				return err
			}
			if err := os.Rename(target, parked); err != nil {
				return err
			}
			o.replaced = append(o.replaced, rel)
		} else {
			o.created = append(o.created, rel)
		}
		return os.Rename(p, target)
	})
}

func (o *overlay) undo() error {
	var firstErr error
	for _, rel := range o.created {
		if err := os.Remove(filepath.Join(o.dst, rel)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, rel := range o.replaced {
		if err := os.Rename(filepath.Join(o.backup, rel), filepath.Join(o.dst, rel)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
