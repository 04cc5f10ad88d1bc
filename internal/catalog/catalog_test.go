package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/extkit-labs/extkit/internal/events"
	"github.com/extkit-labs/extkit/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeInstaller struct {
	mu      sync.Mutex
	removed []string
	toggled map[string]bool
	err     error
}

func (f *fakeInstaller) RemoveInstalled(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.removed = append(f.removed, path)
	return nil
}

func (f *fakeInstaller) SetEnabled(_ context.Context, path string, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.toggled == nil {
		f.toggled = make(map[string]bool)
	}
	f.toggled[path] = enabled
	return nil
}

// recorder counts notifications per name.
type recorder struct {
	mu  sync.Mutex
	got map[events.Name][]string
}

func record(c *Catalog) *recorder {
	r := &recorder{got: make(map[events.Name][]string)}
	for _, n := range []events.Name{events.StatusChange, events.RegistryUpdate, events.RegistryDownload} {
		c.Subscribe(n, func(id string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.got[n] = append(r.got[n], id)
		})
	}
	return r
}

func (r *recorder) ids(n events.Name) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.got[n]...)
}

func newTestCatalog(t *testing.T, host string) (*Catalog, *fakeInstaller) {
	t.Helper()
	inst := &fakeInstaller{}
	return New(host, inst, WithLogger(zaptest.NewLogger(t))), inst
}

func registryEntry(version string, versions ...registry.VersionInfo) *registry.Entry {
	return &registry.Entry{
		Metadata: registry.Metadata{Name: "ext.alpha", Version: version},
		Owner:    "github:alice",
		Versions: versions,
	}
}

func installed(version string) InstallInfo {
	return InstallInfo{
		Metadata:     registry.Metadata{Name: "ext.alpha", Version: version},
		Path:         "/ext/user/ext.alpha",
		LocationType: LocationUser,
		Status:       StatusEnabled,
	}
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name           string
		host           string
		installed      string
		registry       *registry.Entry
		wantAvailable  bool
		wantCompatible bool
		wantLast       string
	}{
		{
			name:      "up to date",
			host:      "1.5.0",
			installed: "1.2.0",
			registry: registryEntry("1.2.0",
				registry.VersionInfo{Version: "1.2.0"}),
		},
		{
			name:      "installed newer than registry",
			host:      "1.5.0",
			installed: "2.0.0",
			registry: registryEntry("1.2.0",
				registry.VersionInfo{Version: "1.2.0"}),
		},
		{
			name:      "compatible update",
			host:      "1.5.0",
			installed: "1.0.0",
			registry: registryEntry("1.2.0",
				registry.VersionInfo{Version: "1.0.0"},
				registry.VersionInfo{Version: "1.2.0", Brackets: ">=1.0.0"}),
			wantAvailable:  true,
			wantCompatible: true,
			wantLast:       "1.2.0",
		},
		{
			name:      "no compatible version for host",
			host:      "1.5.0",
			installed: "1.0.0",
			registry: registryEntry("1.2.0",
				registry.VersionInfo{Version: "1.0.0", Brackets: ">=3.0.0"},
				registry.VersionInfo{Version: "1.2.0", Brackets: ">=3.0.0"}),
			wantAvailable: true,
		},
		{
			name:      "compatible version is the installed one",
			host:      "1.5.0",
			installed: "1.0.0",
			registry: registryEntry("2.0.0",
				registry.VersionInfo{Version: "1.0.0", Brackets: "<2.0.0"},
				registry.VersionInfo{Version: "2.0.0", Brackets: ">=2.0.0"}),
			wantAvailable: true,
		},
		{
			name:      "older compatible version still newer than installed",
			host:      "1.5.0",
			installed: "0.9.0",
			registry: registryEntry("2.0.0",
				registry.VersionInfo{Version: "1.0.0", Brackets: "<2.0.0"},
				registry.VersionInfo{Version: "2.0.0", Brackets: ">=2.0.0"}),
			wantAvailable:  true,
			wantCompatible: true,
			wantLast:       "1.0.0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestCatalog(t, tt.host)
			c.ApplyInstallEvent("ext.alpha", installed(tt.installed))
			c.ApplyRegistryData(registry.Payload{"ext.alpha": tt.registry})

			e, ok := c.Get("ext.alpha")
			require.True(t, ok)
			require.NotNil(t, e.InstallInfo)
			assert.Equal(t, "github:alice", e.InstallInfo.Owner)
			assert.Equal(t, tt.wantAvailable, e.InstallInfo.UpdateAvailable, "updateAvailable")
			assert.Equal(t, tt.wantCompatible, e.InstallInfo.UpdateCompatible, "updateCompatible")
			assert.Equal(t, tt.wantLast, e.InstallInfo.LastCompatibleVersion)
		})
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	c, _ := newTestCatalog(t, "1.5.0")
	c.ApplyInstallEvent("ext.alpha", installed("1.0.0"))
	c.ApplyRegistryData(registry.Payload{"ext.alpha": registryEntry("1.2.0",
		registry.VersionInfo{Version: "1.2.0"})})

	c.Reconcile("ext.alpha")
	first, _ := c.Get("ext.alpha")
	c.Reconcile("ext.alpha")
	second, _ := c.Get("ext.alpha")

	assert.Equal(t, first, second)
	assert.True(t, second.InstallInfo.UpdateCompatible)
}

func TestReconcile_OneSidedIsNoop(t *testing.T) {
	c, _ := newTestCatalog(t, "1.0.0")
	rec := record(c)

	c.ApplyRegistryData(registry.Payload{"ext.alpha": registryEntry("1.0.0")})
	c.Reconcile("ext.alpha")
	c.Reconcile("ext.unknown")

	assert.Empty(t, rec.ids(events.RegistryUpdate))
	e, _ := c.Get("ext.alpha")
	assert.Nil(t, e.InstallInfo)
}

func TestApplyRegistryData_Notifications(t *testing.T) {
	c, _ := newTestCatalog(t, "1.0.0")
	c.ApplyInstallEvent("ext.alpha", installed("1.0.0"))
	rec := record(c)

	c.ApplyRegistryData(registry.Payload{
		"ext.alpha": registryEntry("1.0.0"),
		"ext.beta":  {Metadata: registry.Metadata{Name: "ext.beta", Version: "0.1.0"}},
	})

	assert.Equal(t, []string{""}, rec.ids(events.RegistryDownload))
	assert.Equal(t, []string{"ext.alpha"}, rec.ids(events.RegistryUpdate))
	assert.Equal(t, 2, c.Len())
}

func TestApplyRegistryData_CopiesInput(t *testing.T) {
	c, _ := newTestCatalog(t, "1.0.0")
	p := registry.Payload{"ext.alpha": registryEntry("1.0.0")}
	c.ApplyRegistryData(p)

	p["ext.alpha"].Metadata.Version = "9.9.9"
	e, _ := c.Get("ext.alpha")
	assert.Equal(t, "1.0.0", e.RegistryVersion())

	e.RegistryInfo.Owner = "mutated"
	again, _ := c.Get("ext.alpha")
	assert.Equal(t, "github:alice", again.RegistryInfo.Owner)
}

func TestApplyInstallEvent_EmitsStatusChange(t *testing.T) {
	c, _ := newTestCatalog(t, "1.0.0")
	rec := record(c)

	c.ApplyInstallEvent("ext.alpha", installed("1.0.0"))

	assert.Equal(t, []string{"ext.alpha"}, rec.ids(events.StatusChange))
	assert.Empty(t, rec.ids(events.RegistryUpdate))
}

func TestApplyUninstallEvent(t *testing.T) {
	c, _ := newTestCatalog(t, "1.0.0")
	c.ApplyInstallEvent("ext.alpha", installed("1.0.0"))
	c.ApplyInstallEvent("ext.beta", installed("1.0.0"))
	c.ApplyRegistryData(registry.Payload{"ext.beta": registryEntry("1.0.0")})

	c.ApplyUninstallEvent("ext.alpha")
	c.ApplyUninstallEvent("ext.beta")

	_, ok := c.Get("ext.alpha")
	assert.False(t, ok, "entry with no data is dropped")
	beta, ok := c.Get("ext.beta")
	require.True(t, ok)
	assert.False(t, beta.Installed())
}

func TestRemove(t *testing.T) {
	c, inst := newTestCatalog(t, "1.0.0")
	c.ApplyInstallEvent("ext.alpha", installed("1.0.0"))
	rec := record(c)

	require.NoError(t, c.Remove(context.Background(), "ext.alpha"))

	assert.Equal(t, []string{"/ext/user/ext.alpha"}, inst.removed)
	assert.Equal(t, []string{"ext.alpha"}, rec.ids(events.StatusChange))
	_, ok := c.Get("ext.alpha")
	assert.False(t, ok)
}

func TestRemove_NotInstalled(t *testing.T) {
	c, _ := newTestCatalog(t, "1.0.0")
	c.ApplyRegistryData(registry.Payload{"ext.alpha": registryEntry("1.0.0")})

	for _, id := range []string{"ext.alpha", "ext.missing"} {
		err := c.Remove(context.Background(), id)
		var notInstalled *NotInstalledError
		require.ErrorAs(t, err, &notInstalled)
		assert.Equal(t, id, notInstalled.ID)
		assert.Contains(t, err.Error(), id)
	}
}

func TestRemove_CollaboratorFailureLeavesState(t *testing.T) {
	c, inst := newTestCatalog(t, "1.0.0")
	c.ApplyInstallEvent("ext.alpha", installed("1.0.0"))
	inst.err = errors.New("permission denied")
	rec := record(c)

	err := c.Remove(context.Background(), "ext.alpha")

	var collab *CollaboratorError
	require.ErrorAs(t, err, &collab)
	assert.Equal(t, "ext.alpha", collab.ID)
	assert.ErrorIs(t, err, inst.err)
	e, ok := c.Get("ext.alpha")
	require.True(t, ok)
	assert.True(t, e.Installed())
	assert.Empty(t, rec.ids(events.StatusChange))
}

func TestSetEnabled(t *testing.T) {
	c, inst := newTestCatalog(t, "1.0.0")
	c.ApplyInstallEvent("ext.alpha", installed("1.0.0"))

	require.NoError(t, c.SetEnabled(context.Background(), "ext.alpha", false))
	e, _ := c.Get("ext.alpha")
	assert.Equal(t, StatusDisabled, e.InstallInfo.Status)
	assert.True(t, e.InstallInfo.Disabled)
	assert.False(t, inst.toggled["/ext/user/ext.alpha"])

	require.NoError(t, c.SetEnabled(context.Background(), "ext.alpha", true))
	e, _ = c.Get("ext.alpha")
	assert.Equal(t, StatusEnabled, e.InstallInfo.Status)
	assert.False(t, e.InstallInfo.Disabled)
}

func TestSetEnabled_Errors(t *testing.T) {
	c, inst := newTestCatalog(t, "1.0.0")

	var notInstalled *NotInstalledError
	require.ErrorAs(t, c.SetEnabled(context.Background(), "ext.alpha", true), &notInstalled)

	c.ApplyInstallEvent("ext.alpha", installed("1.0.0"))
	inst.err = errors.New("disk full")
	var collab *CollaboratorError
	require.ErrorAs(t, c.SetEnabled(context.Background(), "ext.alpha", false), &collab)
	assert.Equal(t, "disable", collab.Op)

	e, _ := c.Get("ext.alpha")
	assert.Equal(t, StatusEnabled, e.InstallInfo.Status)
}

func TestEntriesSortedAndReset(t *testing.T) {
	c, _ := newTestCatalog(t, "1.0.0")
	c.ApplyRegistryData(registry.Payload{
		"zeta":  registryEntry("1.0.0"),
		"alpha": registryEntry("1.0.0"),
		"mid":   registryEntry("1.0.0"),
	})

	var ids []string
	for _, e := range c.Entries() {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, ids)

	c.Reset()
	assert.Empty(t, c.Entries())
}

func TestListenerMayCallBack(t *testing.T) {
	c, _ := newTestCatalog(t, "1.0.0")
	var seen bool
	c.Subscribe(events.StatusChange, func(id string) {
		_, seen = c.Get(id)
	})

	c.ApplyInstallEvent("ext.alpha", installed("1.0.0"))
	assert.True(t, seen)
}

func TestParseLocationType(t *testing.T) {
	assert.Equal(t, LocationDev, ParseLocationType("dev"))
	assert.Equal(t, LocationUnknown, ParseLocationType("disabled"))
}
