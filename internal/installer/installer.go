package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/extkit-labs/extkit/internal/catalog"
	"github.com/extkit-labs/extkit/internal/manifest"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// DisabledMarker is the file whose presence disables an add-on.
const DisabledMarker = ".disabled"

const (
	tmpSuffix    = ".tmp"
	backupSuffix = ".old"
)

// Installer removes, toggles and updates installed add-ons.
type Installer interface {
	RemoveInstalled(ctx context.Context, path string) error
	SetEnabled(ctx context.Context, path string, enabled bool) error
	ApplyUpdate(ctx context.Context, packagePath, id string) error
}

var _ Installer = (*DirInstaller)(nil)

// DirInstaller manages add-ons below a root directory.
type DirInstaller struct {
	fs     afero.Fs
	root   string
	logger *zap.Logger
}

// NewDirInstaller returns an installer rooted at root.
func NewDirInstaller(fs afero.Fs, root string, logger *zap.Logger) *DirInstaller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirInstaller{fs: fs, root: filepath.Clean(root), logger: logger}
}

// Root returns the extensions root.
func (d *DirInstaller) Root() string { return d.root }

// UserDir returns where updates for id are installed.
func (d *DirInstaller) UserDir(id string) string {
	return filepath.Join(d.root, string(catalog.LocationUser), id)
}

// RemoveInstalled deletes the add-on directory at path.
func (d *DirInstaller) RemoveInstalled(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.checkManaged(path); err != nil {
		return err
	}
	if _, err := d.fs.Stat(path); err != nil {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	if err := d.fs.RemoveAll(path); err != nil {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	d.logger.Debug("removed extension directory", zap.String("path", path))
	return nil
}

// SetEnabled creates or deletes the disabled marker in path.
func (d *DirInstaller) SetEnabled(ctx context.Context, path string, enabled bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.checkManaged(path); err != nil {
		return err
	}
	if info, err := d.fs.Stat(path); err != nil {
		return fmt.Errorf("toggling %s: %w", path, err)
	} else if !info.IsDir() {
		return fmt.Errorf("toggling %s: not a directory", path)
	}

	marker := filepath.Join(path, DisabledMarker)
	if enabled {
		if err := d.fs.Remove(marker); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("enabling %s: %w", path, err)
		}
		return nil
	}
	if err := afero.WriteFile(d.fs, marker, nil, 0644); err != nil {
		return fmt.Errorf("disabling %s: %w", path, err)
	}
	return nil
}

// ApplyUpdate extracts the package zip at packagePath into the user
// location for id, replacing what is there. The package must carry a
// valid package.json naming id. The swap is done by rename, so a failed
// update leaves the previous install in place.
func (d *DirInstaller) ApplyUpdate(ctx context.Context, packagePath, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := d.UserDir(id)
	tmpDir := target + tmpSuffix
	backup := target + backupSuffix

	_ = d.fs.RemoveAll(tmpDir)
	if err := d.fs.MkdirAll(tmpDir, 0755); err != nil {
		return fmt.Errorf("creating staging directory: %w", err)
	}
	if err := extractZip(d.fs, packagePath, tmpDir); err != nil {
		_ = d.fs.RemoveAll(tmpDir)
		return err
	}

	md, err := manifest.Load(d.fs, tmpDir)
	if err != nil {
		_ = d.fs.RemoveAll(tmpDir)
		return fmt.Errorf("checking package for %s: %w", id, err)
	}
	if md.Name != id {
		_ = d.fs.RemoveAll(tmpDir)
		return fmt.Errorf("package is for %q, not %q", md.Name, id)
	}

	_ = d.fs.RemoveAll(backup)
	hadPrevious := false
	if _, err := d.fs.Stat(target); err == nil {
		if err := d.fs.Rename(target, backup); err != nil {
			_ = d.fs.RemoveAll(tmpDir)
			return fmt.Errorf("moving previous install aside: %w", err)
		}
		hadPrevious = true
	}
	if err := d.fs.Rename(tmpDir, target); err != nil {
		if hadPrevious {
			_ = d.fs.Rename(backup, target)
		}
		_ = d.fs.RemoveAll(tmpDir)
		return fmt.Errorf("installing update: %w", err)
	}
	if hadPrevious {
		if err := d.fs.RemoveAll(backup); err != nil {
			d.logger.Warn("removing previous install", zap.String("path", backup), zap.Error(err))
		}
	}

	d.logger.Info("extension updated", zap.String("id", id), zap.String("version", md.Version))
	return nil
}

// checkManaged rejects paths outside the root.
func (d *DirInstaller) checkManaged(path string) error {
	rel, err := filepath.Rel(d.root, filepath.Clean(path))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%s is not inside %s", path, d.root)
	}
	return nil
}
