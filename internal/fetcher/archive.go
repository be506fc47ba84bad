package fetcher

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// extractZip unpacks archivePath into dest, refusing entries that would land
// outside dest.
func extractZip(archivePath, dest string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("%w: malformed archive: %v", ErrFetch, err)
	}
	defer r.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	base := filepath.Clean(dest) + string(os.PathSeparator)

	for _, zf := range r.File {
		target := filepath.Join(dest, filepath.FromSlash(zf.Name))
		if !strings.HasPrefix(target+string(os.PathSeparator), base) {
			return fmt.Errorf("%w: archive entry %q escapes destination", ErrFetch, zf.Name)
		}

		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if !zf.Mode().IsRegular() {
			continue
		}
		if err := extractFile(zf, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(zf *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	rc, err := zf.Open()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrFetch, zf.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("%w: %s: %v", ErrFetch, zf.Name, err)
	}
	return out.Close()
}

// locateRoot returns the single top-level directory of an extracted zipball.
// Archives without a wrapping directory are used as-is.
func locateRoot(extractDir string) (string, error) {
	entries, err := os.ReadDir(extractDir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("%w: archive is empty", ErrFetch)
	}

	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	if len(dirs) == 1 && len(entries) == 1 {
		return filepath.Join(extractDir, dirs[0]), nil
	}
	return extractDir, nil
}
