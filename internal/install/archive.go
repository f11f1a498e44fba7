package install

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const maxPackageBytes = 512 << 20

// download fetches url into dst. No retries; the client's timeout bounds the
// whole transfer.
func download(ctx context.Context, client *http.Client, url, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download package: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download package: unexpected status %d", resp.StatusCode)
	}

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create package file: %w", err)
	}
	n, err := io.Copy(f, io.LimitReader(resp.Body, maxPackageBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write package file: %w", err)
	}
	if n > maxPackageBytes {
		return fmt.Errorf("package exceeds %d bytes", maxPackageBytes)
	}
	return nil
}

// extract unpacks the zip at src into dir and returns the directory holding
// the package contents: the single top-level folder when there is one,
// otherwise dir itself.
func extract(src, dir string) (string, error) {
	r, err := zip.OpenReader(src)
	if err != nil {
		return "", fmt.Errorf("open package: %w", err)
	}
	defer r.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	root := filepath.Clean(dir) + string(os.PathSeparator)
	tops := map[string]struct{}{}

	for _, f := range r.File {
		name := filepath.FromSlash(f.Name)
		target := filepath.Join(dir, name)
		if !strings.HasPrefix(target, root) {
			return "", fmt.Errorf("package entry %q escapes destination", f.Name)
		}
		top := strings.SplitN(strings.TrimPrefix(f.Name, "/"), "/", 2)[0]
		if top != "" {
			tops[top] = struct{}{}
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return "", err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return "", err
		}
		if err := writeEntry(f, target); err != nil {
			return "", err
		}
	}

	if len(tops) == 1 {
		for top := range tops {
			candidate := filepath.Join(dir, top)
			if info, err := os.Stat(candidate); err == nil && info.IsDir() {
				return candidate, nil
			}
		}
	}
	return dir, nil
}

func writeEntry(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := io.Copy(out, io.LimitReader(rc, maxPackageBytes)); err != nil {
		out.Close()
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}
	return out.Close()
}
