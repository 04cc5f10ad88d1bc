package installer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/extkit-labs/extkit/internal/catalog"
	"github.com/extkit-labs/extkit/internal/manifest"
	"github.com/extkit-labs/extkit/internal/registry"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Found is one add-on discovered on disk.
type Found struct {
	ID   string
	Info catalog.InstallInfo
	// Err is set when the metadata could not be loaded.
	Err error
}

// Scan walks every location directory under the root and returns the
// add-ons found there, sorted by location then id. An add-on whose
// package.json is missing or invalid is reported with status startFailed.
func (d *DirInstaller) Scan() ([]Found, error) {
	locations, err := afero.ReadDir(d.fs, d.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading extensions root: %w", err)
	}

	var found []Found
	for _, loc := range locations {
		if !loc.IsDir() {
			continue
		}
		locDir := filepath.Join(d.root, loc.Name())
		entries, err := afero.ReadDir(d.fs, locDir)
		if err != nil {
			d.logger.Warn("skipping unreadable location", zap.String("path", locDir), zap.Error(err))
			continue
		}
		for _, e := range entries {
			if !e.IsDir() || staging(e.Name()) {
				continue
			}
			found = append(found, d.inspect(catalog.ParseLocationType(loc.Name()), filepath.Join(locDir, e.Name())))
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].Info.LocationType != found[j].Info.LocationType {
			return found[i].Info.LocationType < found[j].Info.LocationType
		}
		return found[i].ID < found[j].ID
	})
	return found, nil
}

func (d *DirInstaller) inspect(loc catalog.LocationType, dir string) Found {
	info := catalog.InstallInfo{
		Path:         dir,
		LocationType: loc,
		Status:       catalog.StatusEnabled,
	}
	if ok, _ := afero.Exists(d.fs, filepath.Join(dir, DisabledMarker)); ok {
		info.Status = catalog.StatusDisabled
		info.Disabled = true
	}

	md, err := manifest.Load(d.fs, dir)
	if err != nil {
		d.logger.Warn("extension metadata unusable", zap.String("path", dir), zap.Error(err))
		info.Metadata = registry.Metadata{Name: filepath.Base(dir)}
		info.Status = catalog.StatusStartFailed
		return Found{ID: filepath.Base(dir), Info: info, Err: err}
	}
	info.Metadata = md
	return Found{ID: md.Name, Info: info}
}

func staging(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasSuffix(name, tmpSuffix) || strings.HasSuffix(name, backupSuffix)
}

// Load scans the root and applies every add-on found to cat. When an id
// appears in more than one location the last one scanned wins.
func (d *DirInstaller) Load(cat *catalog.Catalog) ([]Found, error) {
	found, err := d.Scan()
	if err != nil {
		return nil, err
	}
	for _, f := range found {
		cat.ApplyInstallEvent(f.ID, f.Info)
	}
	return found, nil
}
