package catalog

import "github.com/extkit-labs/extkit/internal/registry"

// LocationType says where an installed add-on lives.
type LocationType string

const (
	LocationDefault LocationType = "default"
	LocationDev     LocationType = "dev"
	LocationUser    LocationType = "user"
	LocationUnknown LocationType = "unknown"
)

// ParseLocationType maps a directory name to a LocationType.
func ParseLocationType(s string) LocationType {
	switch LocationType(s) {
	case LocationDefault, LocationDev, LocationUser:
		return LocationType(s)
	default:
		return LocationUnknown
	}
}

// Status is the load state of an installed add-on.
type Status string

const (
	StatusEnabled     Status = "enabled"
	StatusDisabled    Status = "disabled"
	StatusStartFailed Status = "startFailed"
)

// InstallInfo is the install-side record of an add-on. Owner and the
// update fields are derived by reconciliation and only meaningful when the
// registry side is present too.
type InstallInfo struct {
	Metadata     registry.Metadata `json:"metadata"`
	Path         string            `json:"path"`
	LocationType LocationType      `json:"locationType"`
	Status       Status            `json:"status"`
	Disabled     bool              `json:"disabled,omitempty"`

	Owner                 string `json:"owner,omitempty"`
	UpdateAvailable       bool   `json:"updateAvailable"`
	UpdateCompatible      bool   `json:"updateCompatible"`
	LastCompatibleVersion string `json:"lastCompatibleVersion,omitempty"`
}

// Clone returns a deep copy of i.
func (i *InstallInfo) Clone() *InstallInfo {
	if i == nil {
		return nil
	}
	c := *i
	c.Metadata = i.Metadata.Clone()
	return &c
}

// Entry is the merged record for one add-on id. At least one side is set.
type Entry struct {
	ID           string          `json:"id"`
	RegistryInfo *registry.Entry `json:"registryInfo,omitempty"`
	InstallInfo  *InstallInfo    `json:"installInfo,omitempty"`
}

// Installed reports whether the add-on has install-side data.
func (e Entry) Installed() bool { return e.InstallInfo != nil }

// InstalledVersion returns the installed version, or "".
func (e Entry) InstalledVersion() string {
	if e.InstallInfo == nil {
		return ""
	}
	return e.InstallInfo.Metadata.Version
}

// RegistryVersion returns the registry's top-level version, or "".
func (e Entry) RegistryVersion() string {
	if e.RegistryInfo == nil {
		return ""
	}
	return e.RegistryInfo.Metadata.Version
}

func (e *Entry) clone() Entry {
	return Entry{
		ID:           e.ID,
		RegistryInfo: e.RegistryInfo.Clone(),
		InstallInfo:  e.InstallInfo.Clone(),
	}
}
