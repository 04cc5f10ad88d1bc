package catalog

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/extkit-labs/extkit/internal/compat"
	"github.com/extkit-labs/extkit/internal/events"
	"github.com/extkit-labs/extkit/internal/registry"
	"go.uber.org/zap"
)

// Installer performs the on-disk side of remove and enable/disable.
type Installer interface {
	RemoveInstalled(ctx context.Context, path string) error
	SetEnabled(ctx context.Context, path string, enabled bool) error
}

// Catalog is the authoritative map from add-on id to its merged record.
// All methods are safe for concurrent use. Notifications are emitted after
// the internal lock is released, so listeners may call back into the
// catalog.
type Catalog struct {
	hostAPIVersion string
	installer      Installer
	logger         *zap.Logger
	bus            events.Bus

	mu      sync.Mutex
	entries map[string]*Entry
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Catalog) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates an empty catalog for a host running hostAPIVersion.
// installer may be nil when remove and enable/disable are not needed.
func New(hostAPIVersion string, installer Installer, opts ...Option) *Catalog {
	c := &Catalog{
		hostAPIVersion: hostAPIVersion,
		installer:      installer,
		logger:         zap.NewNop(),
		entries:        make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HostAPIVersion returns the host version used for compatibility checks.
func (c *Catalog) HostAPIVersion() string { return c.hostAPIVersion }

// Subscribe registers fn for the named notification.
func (c *Catalog) Subscribe(name events.Name, fn events.Listener) (unsubscribe func()) {
	return c.bus.Subscribe(name, fn)
}

type notification struct {
	name events.Name
	id   string
}

func (c *Catalog) emit(ns []notification) {
	for _, n := range ns {
		c.bus.Emit(n.name, n.id)
	}
}

// ApplyRegistryData merges registry-side data into the catalog and
// reconciles every touched id. Ids absent from p keep whatever registry
// data they had.
func (c *Catalog) ApplyRegistryData(p registry.Payload) {
	ids := make([]string, 0, len(p))
	for id := range p {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var ns []notification
	c.mu.Lock()
	for _, id := range ids {
		info := p[id]
		if info == nil {
			continue
		}
		e := c.entryLocked(id)
		e.RegistryInfo = info.Clone()
		if c.reconcileLocked(e) {
			ns = append(ns, notification{events.RegistryUpdate, id})
		}
	}
	c.mu.Unlock()

	c.logger.Debug("registry data applied", zap.Int("entries", len(ids)))
	ns = append(ns, notification{events.RegistryDownload, ""})
	c.emit(ns)
}

// ApplyInstallEvent sets the install side of id, typically after the host
// loaded or failed to load the add-on.
func (c *Catalog) ApplyInstallEvent(id string, info InstallInfo) {
	ns := []notification{}
	c.mu.Lock()
	e := c.entryLocked(id)
	e.InstallInfo = info.Clone()
	if c.reconcileLocked(e) {
		ns = append(ns, notification{events.RegistryUpdate, id})
	}
	c.mu.Unlock()

	ns = append(ns, notification{events.StatusChange, id})
	c.emit(ns)
}

// ApplyUninstallEvent clears the install side of id after the host
// unloaded it. Entries left with no data are dropped.
func (c *Catalog) ApplyUninstallEvent(id string) {
	c.mu.Lock()
	changed := c.clearInstallLocked(id)
	c.mu.Unlock()

	if changed {
		c.emit([]notification{{events.StatusChange, id}})
	}
}

// Reconcile recomputes owner and update flags for id. It does nothing
// unless both sides are present.
func (c *Catalog) Reconcile(id string) {
	c.mu.Lock()
	e := c.entries[id]
	emitted := e != nil && c.reconcileLocked(e)
	c.mu.Unlock()

	if emitted {
		c.emit([]notification{{events.RegistryUpdate, id}})
	}
}

// reconcileLocked derives the install-side fields from the registry side
// and reports whether it did anything.
func (c *Catalog) reconcileLocked(e *Entry) bool {
	if e.RegistryInfo == nil || e.InstallInfo == nil {
		return false
	}
	inst := e.InstallInfo
	inst.Owner = e.RegistryInfo.Owner
	inst.UpdateAvailable = false
	inst.UpdateCompatible = false
	inst.LastCompatibleVersion = ""

	installed := inst.Metadata.Version
	if compat.IsOlder(installed, e.RegistryInfo.Metadata.Version) {
		inst.UpdateAvailable = true
		res := compat.Resolve(e.RegistryInfo, c.hostAPIVersion)
		if res.IsCompatible && compat.IsOlder(installed, res.CompatibleVersion) {
			inst.UpdateCompatible = true
			inst.LastCompatibleVersion = res.CompatibleVersion
		}
	}
	return true
}

// Remove deletes the installed files of id through the installer and then
// clears its install side.
func (c *Catalog) Remove(ctx context.Context, id string) error {
	path, err := c.installedPath(id)
	if err != nil {
		return err
	}
	if err := c.installer.RemoveInstalled(ctx, path); err != nil {
		return &CollaboratorError{ID: id, Op: "remove", Err: err}
	}

	c.mu.Lock()
	changed := c.clearInstallLocked(id)
	c.mu.Unlock()

	c.logger.Info("extension removed", zap.String("id", id), zap.String("path", path))
	if changed {
		c.emit([]notification{{events.StatusChange, id}})
	}
	return nil
}

// SetEnabled enables or disables id through the installer and then
// updates its status.
func (c *Catalog) SetEnabled(ctx context.Context, id string, enabled bool) error {
	path, err := c.installedPath(id)
	if err != nil {
		return err
	}
	op := "disable"
	if enabled {
		op = "enable"
	}
	if err := c.installer.SetEnabled(ctx, path, enabled); err != nil {
		return &CollaboratorError{ID: id, Op: op, Err: err}
	}

	c.mu.Lock()
	changed := false
	if e := c.entries[id]; e != nil && e.InstallInfo != nil {
		e.InstallInfo.Disabled = !enabled
		if enabled {
			e.InstallInfo.Status = StatusEnabled
		} else {
			e.InstallInfo.Status = StatusDisabled
		}
		changed = true
	}
	c.mu.Unlock()

	if changed {
		c.emit([]notification{{events.StatusChange, id}})
	}
	return nil
}

func (c *Catalog) installedPath(id string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entries[id]
	if e == nil || e.InstallInfo == nil {
		return "", &NotInstalledError{ID: id}
	}
	return e.InstallInfo.Path, nil
}

// Get returns a copy of the entry for id.
func (c *Catalog) Get(id string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entries[id]
	if e == nil {
		return Entry{}, false
	}
	return e.clone(), true
}

// Entries returns copies of all entries sorted by id.
func (c *Catalog) Entries() []Entry {
	c.mu.Lock()
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.clone())
	}
	c.mu.Unlock()

	slices.SortFunc(out, func(a, b Entry) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Reset drops every entry. Subscriptions are kept.
func (c *Catalog) Reset() {
	c.mu.Lock()
	c.entries = make(map[string]*Entry)
	c.mu.Unlock()
}

func (c *Catalog) entryLocked(id string) *Entry {
	e := c.entries[id]
	if e == nil {
		e = &Entry{ID: id}
		c.entries[id] = e
	}
	return e
}

func (c *Catalog) clearInstallLocked(id string) bool {
	e := c.entries[id]
	if e == nil || e.InstallInfo == nil {
		return false
	}
	e.InstallInfo = nil
	if e.RegistryInfo == nil {
		delete(c.entries, id)
	}
	return true
}
