package installer

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/extkit-labs/extkit/internal/manifest"
	"github.com/extkit-labs/extkit/internal/platform"
	"github.com/spf13/afero"
)

// extractZip unpacks archivePath into destDir. Packages zipped with a single
// top-level folder are flattened so package.json ends up in destDir.
func extractZip(fs afero.Fs, archivePath, destDir string) error {
	f, err := fs.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening zip archive: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("reading zip archive: %w", err)
	}
	r, err := zip.NewReader(f, info.Size())
	if err != nil {
		return fmt.Errorf("opening zip archive: %w", err)
	}

	prefix := commonPrefix(r.File)
	for _, zf := range r.File {
		name := path.Clean(zf.Name)
		if prefix != "" && name+"/" == prefix {
			continue
		}
		name = strings.TrimPrefix(name, prefix)
		if name == "" || name == "." {
			continue
		}
		if strings.HasPrefix(name, "../") || name == ".." || path.IsAbs(name) {
			return fmt.Errorf("zip entry %q escapes the package", zf.Name)
		}
		dest := filepath.Join(destDir, filepath.FromSlash(name))

		if zf.FileInfo().IsDir() {
			if err := fs.MkdirAll(dest, 0755); err != nil {
				return fmt.Errorf("creating %s: %w", name, err)
			}
			continue
		}
		if err := extractFile(fs, zf, dest); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(fs afero.Fs, zf *zip.File, dest string) error {
	if err := fs.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", zf.Name, err)
	}
	rc, err := zf.Open()
	if err != nil {
		return fmt.Errorf("opening zip entry: %w", err)
	}
	defer rc.Close()

	out, err := fs.Create(dest)
	if err != nil {
		return fmt.Errorf("creating %s: %w", zf.Name, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("extracting %s: %w", zf.Name, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("extracting %s: %w", zf.Name, err)
	}
	// Keep scripts runnable.
	if zf.Mode()&0111 != 0 {
		if err := platform.Chmod(fs, dest, 0755); err != nil {
			return fmt.Errorf("setting mode on %s: %w", zf.Name, err)
		}
	}
	return nil
}

// commonPrefix returns "dir/" when every entry sits under one top-level
// directory and package.json is not at the archive root.
func commonPrefix(files []*zip.File) string {
	top := ""
	for _, zf := range files {
		name := path.Clean(zf.Name)
		if name == manifest.FileName {
			return ""
		}
		first, _, nested := strings.Cut(name, "/")
		if !nested && !zf.FileInfo().IsDir() {
			return ""
		}
		if top == "" {
			top = first
		} else if top != first {
			return ""
		}
	}
	if top == "" {
		return ""
	}
	return top + "/"
}
