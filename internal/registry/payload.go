package registry

import (
	"encoding/json"
	"slices"
)

// CapabilityNode is implied by a non-empty nodeConfig in an entry's metadata.
const CapabilityNode = "node"

// Payload maps add-on id to its registry-side record. The network registry,
// the cache file and the bundled snapshot all share this shape.
type Payload map[string]*Entry

// Entry is the registry-side data for one add-on.
type Entry struct {
	Metadata Metadata      `json:"metadata"`
	Owner    string        `json:"owner,omitempty"`
	Versions []VersionInfo `json:"versions,omitempty"`

	// Popularity is patched in after the download; nil means unknown.
	TotalDownloads *int64 `json:"totalDownloads"`
	GithubStars    *int64 `json:"githubStars"`
}

// Metadata is the package description published with an add-on.
type Metadata struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	Homepage    string          `json:"homepage,omitempty"`
	Author      string          `json:"author,omitempty"`
	Keywords    []string        `json:"keywords,omitempty"`
	Engines     *Engines        `json:"engines,omitempty"`
	Requires    []string        `json:"requires,omitempty"`
	NodeConfig  json.RawMessage `json:"nodeConfig,omitempty"`
}

// Engines holds host version constraints.
type Engines struct {
	Brackets string `json:"brackets,omitempty"`
}

// VersionInfo is one published version of an add-on. The compatibility
// range may appear either at top level or under engines.
type VersionInfo struct {
	Version   string   `json:"version"`
	Published string   `json:"published,omitempty"`
	Brackets  string   `json:"brackets,omitempty"`
	Engines   *Engines `json:"engines,omitempty"`
}

// CompatibilityRange returns the host API range for this metadata, or "".
func (m Metadata) CompatibilityRange() string {
	if m.Engines == nil {
		return ""
	}
	return m.Engines.Brackets
}

// RequiredCapabilities lists host capabilities the add-on needs.
func (m Metadata) RequiredCapabilities() []string {
	caps := slices.Clone(m.Requires)
	if len(m.NodeConfig) > 0 && string(m.NodeConfig) != "null" && !slices.Contains(caps, CapabilityNode) {
		caps = append(caps, CapabilityNode)
	}
	return caps
}

// CompatibilityRange returns the host API range for this version, or "".
func (v VersionInfo) CompatibilityRange() string {
	if v.Brackets != "" {
		return v.Brackets
	}
	if v.Engines != nil {
		return v.Engines.Brackets
	}
	return ""
}

// Clone returns a deep copy of e.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	c.Metadata = e.Metadata.Clone()
	c.Versions = slices.Clone(e.Versions)
	for i, v := range c.Versions {
		if v.Engines != nil {
			eng := *v.Engines
			c.Versions[i].Engines = &eng
		}
	}
	if e.TotalDownloads != nil {
		n := *e.TotalDownloads
		c.TotalDownloads = &n
	}
	if e.GithubStars != nil {
		n := *e.GithubStars
		c.GithubStars = &n
	}
	return &c
}

// Clone returns a deep copy of m.
func (m Metadata) Clone() Metadata {
	c := m
	c.Keywords = slices.Clone(m.Keywords)
	c.Requires = slices.Clone(m.Requires)
	c.NodeConfig = slices.Clone(m.NodeConfig)
	if m.Engines != nil {
		eng := *m.Engines
		c.Engines = &eng
	}
	return c
}

// FilterCapabilities returns the entries of p whose required capabilities
// are all present in have. Nil entries are dropped.
func FilterCapabilities(p Payload, have []string) Payload {
	out := make(Payload, len(p))
	for id, entry := range p {
		if entry == nil {
			continue
		}
		ok := true
		for _, c := range entry.Metadata.RequiredCapabilities() {
			if !slices.Contains(have, c) {
				ok = false
				break
			}
		}
		if ok {
			out[id] = entry
		}
	}
	return out
}
