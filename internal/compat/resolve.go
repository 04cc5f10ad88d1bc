package compat

import (
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/extkit-labs/extkit/internal/registry"
)

// HostRequirement classifies why the newest version is incompatible.
type HostRequirement int

const (
	// Unclassified means the newest version is compatible, or its range
	// starts with a comparator other than <, > or ~.
	Unclassified HostRequirement = iota
	// NeedsNewerHost means the host API is too old.
	NeedsNewerHost
	// NeedsOlderHost means the host API is too new.
	NeedsOlderHost
)

func (r HostRequirement) String() string {
	switch r {
	case NeedsNewerHost:
		return "requires newer host"
	case NeedsOlderHost:
		return "requires older host"
	default:
		return "unclassified"
	}
}

// Result is the outcome of Resolve.
type Result struct {
	IsCompatible    bool
	IsLatestVersion bool
	// CompatibleVersion is the version to install; empty when incompatible.
	CompatibleVersion string
	Requirement       HostRequirement
}

// RequiresNewer reports the requirement as a boolean; ok is false when the
// reason is unclassified.
func (r Result) RequiresNewer() (requiresNewer, ok bool) {
	switch r.Requirement {
	case NeedsNewerHost:
		return true, true
	case NeedsOlderHost:
		return false, true
	default:
		return false, false
	}
}

// Resolve selects the best installable version of entry for hostAPIVersion.
// The newest version is tried first and, if compatible, is reported as the
// latest. Otherwise the newest older version that is compatible is returned
// with IsLatestVersion false and the newest version's requirement. If none
// match, the newest version's incompatibility is returned.
func Resolve(entry *registry.Entry, hostAPIVersion string) Result {
	if entry == nil {
		return Result{}
	}

	if len(entry.Versions) == 0 {
		res := resolveOne(entry.Metadata.Version, entry.Metadata.CompatibilityRange(), hostAPIVersion)
		if res.IsCompatible {
			res.IsLatestVersion = true
		}
		return res
	}

	i := len(entry.Versions) - 1
	newest := entry.Versions[i]
	latest := resolveOne(newest.Version, newest.CompatibilityRange(), hostAPIVersion)
	if latest.IsCompatible {
		latest.IsLatestVersion = true
		return latest
	}

	for i--; i >= 0; i-- {
		v := entry.Versions[i]
		res := resolveOne(v.Version, v.CompatibilityRange(), hostAPIVersion)
		if res.IsCompatible {
			res.IsLatestVersion = false
			res.Requirement = latest.Requirement
			return res
		}
	}
	return latest
}

func resolveOne(version, rng, host string) Result {
	if rng == "" || Satisfies(host, rng) {
		return Result{IsCompatible: true, CompatibleVersion: version}
	}
	return Result{Requirement: classify(rng, host)}
}

// Satisfies reports whether version lies in rng. Unparseable input never
// satisfies.
func Satisfies(version, rng string) bool {
	c, err := semver.NewConstraint(rng)
	if err != nil {
		return false
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	return c.Check(v)
}

// classify derives the requirement from the range's leading comparator.
func classify(rng, host string) HostRequirement {
	rng = strings.TrimSpace(rng)
	if rng == "" {
		return Unclassified
	}
	switch rng[0] {
	case '<':
		return NeedsOlderHost
	case '>':
		return NeedsNewerHost
	case '~':
		bound, err := semver.NewVersion(normalizeBound(rng[1:]))
		if err != nil {
			return Unclassified
		}
		hv, err := semver.NewVersion(host)
		if err != nil {
			return Unclassified
		}
		if hv.LessThan(bound) {
			return NeedsNewerHost
		}
		return NeedsOlderHost
	default:
		return Unclassified
	}
}

// normalizeBound zero-fills a "1" or "1.2" bound to three components.
func normalizeBound(bound string) string {
	bound = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(bound), ">"))
	bound = strings.TrimPrefix(bound, "=")
	parts := strings.Split(bound, ".")
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	return strings.Join(parts, ".")
}

// Compare orders two versions, tolerating a leading "v". ok is false when
// either side does not parse.
func Compare(a, b string) (cmp int, ok bool) {
	av, err := semver.NewVersion(strings.TrimPrefix(a, "v"))
	if err != nil {
		return 0, false
	}
	bv, err := semver.NewVersion(strings.TrimPrefix(b, "v"))
	if err != nil {
		return 0, false
	}
	return av.Compare(bv), true
}

// IsOlder reports whether a is strictly older than b. Unparseable versions
// are never older.
func IsOlder(a, b string) bool {
	cmp, ok := Compare(a, b)
	return ok && cmp < 0
}
