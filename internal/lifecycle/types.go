package lifecycle

import "github.com/extkit-labs/extkit/internal/compat"

// InstallationStatus is the outcome of validating a downloaded package
// against what is installed.
type InstallationStatus string

const (
	StatusFailed           InstallationStatus = "FAILED"
	StatusInstalled        InstallationStatus = "INSTALLED"
	StatusAlreadyInstalled InstallationStatus = "ALREADY_INSTALLED"
	StatusSameVersion      InstallationStatus = "SAME_VERSION"
	StatusOlderVersion     InstallationStatus = "OLDER_VERSION"
	StatusNeedsUpdate      InstallationStatus = "NEEDS_UPDATE"
	StatusDisabled         InstallationStatus = "DISABLED"
)

// IsUpdate reports whether the status describes replacing an installed
// add-on rather than a fresh install or a failure.
func (s InstallationStatus) IsUpdate() bool {
	switch s {
	case StatusAlreadyInstalled, StatusNeedsUpdate, StatusSameVersion, StatusOlderVersion:
		return true
	default:
		return false
	}
}

// StatusFor classifies a package at target against the installed version.
// An empty installed version means a fresh install.
func StatusFor(installed, target string) InstallationStatus {
	if installed == "" {
		return StatusInstalled
	}
	cmp, ok := compat.Compare(target, installed)
	switch {
	case !ok:
		return StatusAlreadyInstalled
	case cmp > 0:
		return StatusNeedsUpdate
	case cmp == 0:
		return StatusSameVersion
	default:
		return StatusOlderVersion
	}
}

// DownloadResult describes a package downloaded for an add-on.
type DownloadResult struct {
	ID                 string
	Version            string
	LocalPath          string
	KeepFile           bool
	InstallationStatus InstallationStatus
}

// UpdateDescriptor is a pending update.
type UpdateDescriptor struct {
	TargetVersion      string             `json:"targetVersion"`
	LocalPackagePath   string             `json:"localPackagePath"`
	KeepFile           bool               `json:"keepFile,omitempty"`
	InstallationStatus InstallationStatus `json:"installationStatus"`
}

// AvailableUpdate is an installed add-on with a compatible newer version.
type AvailableUpdate struct {
	ID               string `json:"id"`
	InstalledVersion string `json:"installedVersion"`
	RegistryVersion  string `json:"registryVersion"`
}
