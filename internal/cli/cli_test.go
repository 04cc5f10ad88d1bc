package cli

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/extkit-labs/extkit/internal/catalog"
	"github.com/extkit-labs/extkit/internal/installer"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testRegistry = `{
  "ext.alpha": {
    "metadata": {"name": "ext.alpha", "version": "1.2.0", "title": "Alpha"},
    "owner": "github:alice",
    "versions": [
      {"version": "1.0.0"},
      {"version": "1.2.0", "engines": {"brackets": ">=1.0.0"}}
    ]
  },
  "ext.beta": {
    "metadata": {"name": "ext.beta", "version": "3.0.0", "description": "needs a newer host"},
    "versions": [{"version": "3.0.0", "brackets": ">=9.0.0"}]
  }
}`

func packageZip(t *testing.T, id, version string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range map[string]string{
		"package.json": fmt.Sprintf(`{"name": %q, "version": %q}`, id, version),
		"main.js":      "// " + version,
	} {
		w, err := zw.Create(id + "/" + name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// setupCLI points the CLI at a temp home and a fake registry server.
func setupCLI(t *testing.T) (home string) {
	t.Helper()
	home = t.TempDir()
	t.Setenv("HOME", home)
	viper.Reset()
	t.Cleanup(viper.Reset)

	mux := http.NewServeMux()
	mux.HandleFunc("/registry.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, testRegistry)
	})
	mux.HandleFunc("/registry-version.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"version": 7}`)
	})
	mux.HandleFunc("/popularity.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ext.alpha": {"totalDownloads": 1200, "githubStars": 8}}`)
	})
	mux.HandleFunc("/ext.alpha/ext.alpha-1.2.0.zip", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(packageZip(t, "ext.alpha", "1.2.0"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	t.Setenv("EXTKIT_REGISTRY_URL", srv.URL+"/registry.json")
	t.Setenv("EXTKIT_REGISTRY_VERSION_URL", srv.URL+"/registry-version.json")
	t.Setenv("EXTKIT_POPULARITY_URL", srv.URL+"/popularity.json")
	t.Setenv("EXTKIT_PACKAGE_URL_TEMPLATE", srv.URL+"/{id}/{id}-{version}.zip")
	t.Setenv("EXTKIT_HOST_API_VERSION", "1.5.0")

	testSessionOptions = &sessionOptions{logger: zaptest.NewLogger(t)}
	t.Cleanup(func() { testSessionOptions = nil })
	return home
}

func resetFlags() {
	verbose = false
	refreshForce = false
	listInstalled, listJSON = false, false
	searchKeywordFilter, searchCompatible, searchJSON = "", false, false
	infoJSON, updatesJSON, pendingJSON = false, false, false
	removeUndo, disableUndo = false, false
	updateUndo, updateKeepFile = false, false
	checkManifest = ""
	versionShort, versionJSON = false, false
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func installExtension(t *testing.T, home, id, version string) string {
	t.Helper()
	dir := filepath.Join(home, ".extkit", "extensions", "user", id)
	require.NoError(t, os.MkdirAll(dir, 0755))
	body := fmt.Sprintf(`{"name": %q, "version": %q}`, id, version)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(body), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.js"), []byte("// "+version), 0644))
	return dir
}

func TestRefresh(t *testing.T) {
	home := setupCLI(t)

	out, err := runCLI(t, "refresh")
	require.NoError(t, err)
	assert.Contains(t, out, "Registry has 2 extensions (cache version 7)")

	data, err := os.ReadFile(filepath.Join(home, ".extkit", "state", "registry.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"totalDownloads":1200`)
}

func TestListAndInfo(t *testing.T) {
	home := setupCLI(t)
	installExtension(t, home, "ext.alpha", "1.0.0")

	out, err := runCLI(t, "list", "--json")
	require.NoError(t, err)
	var entries []listEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, listEntry{
		ID: "ext.alpha", Title: "Alpha", Installed: "1.0.0", Registry: "1.2.0",
		Status: "enabled", Update: "1.2.0",
	}, entries[0])
	assert.Equal(t, "ext.beta", entries[1].ID)

	out, err = runCLI(t, "list", "--installed")
	require.NoError(t, err)
	assert.Contains(t, out, "ext.alpha")
	assert.NotContains(t, out, "ext.beta")

	out, err = runCLI(t, "info", "ext.beta")
	require.NoError(t, err)
	assert.Contains(t, out, "incompatible (requires newer host)")

	_, err = runCLI(t, "info", "ext.nope")
	assert.Error(t, err)
}

func TestSearch(t *testing.T) {
	setupCLI(t)

	out, err := runCLI(t, "search", "newer")
	require.NoError(t, err)
	assert.Contains(t, out, "ext.beta")
	assert.NotContains(t, out, "ext.alpha")

	out, err = runCLI(t, "search", "--compatible")
	require.NoError(t, err)
	assert.Contains(t, out, "ext.alpha")
	assert.NotContains(t, out, "ext.beta")
}

func TestUpdateCommitFlow(t *testing.T) {
	home := setupCLI(t)
	dir := installExtension(t, home, "ext.alpha", "1.0.0")

	out, err := runCLI(t, "updates")
	require.NoError(t, err)
	assert.Contains(t, out, "ext.alpha")
	assert.Contains(t, out, "1.2.0")

	out, err = runCLI(t, "update", "ext.alpha")
	require.NoError(t, err)
	assert.Contains(t, out, "ext.alpha 1.2.0 downloaded")

	out, err = runCLI(t, "pending")
	require.NoError(t, err)
	assert.Contains(t, out, "update   ext.alpha -> 1.2.0 (NEEDS_UPDATE)")

	out, err = runCLI(t, "commit")
	require.NoError(t, err, out)
	assert.Contains(t, out, "All pending actions applied.")

	data, err := os.ReadFile(filepath.Join(dir, "main.js"))
	require.NoError(t, err)
	assert.Equal(t, "// 1.2.0", string(data))

	pkg := filepath.Join(home, ".extkit", "state", "downloads", "ext.alpha-1.2.0.zip")
	_, err = os.Stat(pkg)
	assert.True(t, os.IsNotExist(err), "downloaded package is removed after commit")

	out, err = runCLI(t, "updates")
	require.NoError(t, err)
	assert.Contains(t, out, "All extensions are up to date.")
}

func TestDisableEnableRemove(t *testing.T) {
	home := setupCLI(t)
	dir := installExtension(t, home, "ext.alpha", "1.0.0")
	marker := filepath.Join(dir, installer.DisabledMarker)

	_, err := runCLI(t, "disable", "ext.alpha")
	require.NoError(t, err)
	_, err = runCLI(t, "commit")
	require.NoError(t, err)
	_, err = os.Stat(marker)
	require.NoError(t, err, "disabled marker written")

	_, err = runCLI(t, "enable", "ext.alpha")
	require.NoError(t, err)
	_, err = os.Stat(marker)
	assert.True(t, os.IsNotExist(err))

	_, err = runCLI(t, "remove", "ext.alpha")
	require.NoError(t, err)
	_, err = runCLI(t, "remove", "ext.alpha", "--undo")
	require.NoError(t, err)
	out, err := runCLI(t, "pending")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing pending.")

	_, err = runCLI(t, "remove", "ext.alpha")
	require.NoError(t, err)
	_, err = runCLI(t, "commit")
	require.NoError(t, err)
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestRemoveNotInstalled(t *testing.T) {
	setupCLI(t)

	_, err := runCLI(t, "remove", "ext.ghost")
	var notInstalled *catalog.NotInstalledError
	require.ErrorAs(t, err, &notInstalled)
	assert.Equal(t, "ext.ghost", notInstalled.ID)
}

func TestCommitReportsFailures(t *testing.T) {
	home := setupCLI(t)
	dir := installExtension(t, home, "ext.alpha", "1.0.0")

	_, err := runCLI(t, "disable", "ext.alpha")
	require.NoError(t, err)
	// A directory where the marker file goes makes the disable fail.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, installer.DisabledMarker, "x"), 0755))

	out, err := runCLI(t, "commit")
	require.Error(t, err)
	assert.Contains(t, out, "failed: disables ext.alpha")

	out, err = runCLI(t, "pending")
	require.NoError(t, err)
	assert.Contains(t, out, "disable  ext.alpha", "failed ids stay queued")

	_, err = runCLI(t, "reset")
	require.NoError(t, err)
	out, err = runCLI(t, "pending")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing pending.")
}

func TestCommitRemoveAndDisable(t *testing.T) {
	home := setupCLI(t)
	dir := installExtension(t, home, "ext.alpha", "1.0.0")

	_, err := runCLI(t, "remove", "ext.alpha")
	require.NoError(t, err)
	_, err = runCLI(t, "disable", "ext.alpha")
	require.NoError(t, err)

	_, err = runCLI(t, "commit")
	require.NoError(t, err)
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))

	_, err = runCLI(t, "commit")
	require.NoError(t, err)
	out, err := runCLI(t, "pending")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing pending.")
}

func TestDoctor(t *testing.T) {
	home := setupCLI(t)
	installExtension(t, home, "ext.alpha", "1.0.0")
	broken := filepath.Join(home, ".extkit", "extensions", "dev", "broken")
	require.NoError(t, os.MkdirAll(broken, 0755))

	out, err := runCLI(t, "doctor")
	require.Error(t, err)
	assert.Contains(t, out, "no registry cache")
	assert.Contains(t, out, "fail  broken")

	out, err = runCLI(t, "doctor", "--check-manifest", filepath.Join(home, ".extkit", "extensions", "user", "ext.alpha"))
	require.NoError(t, err)
	assert.Contains(t, out, "ok    ext.alpha 1.0.0")
}

func TestDoctor_InvalidHostVersion(t *testing.T) {
	setupCLI(t)
	t.Setenv("EXTKIT_HOST_API_VERSION", "one.two")

	out, err := runCLI(t, "doctor")
	require.Error(t, err)
	assert.Contains(t, out, `fail  host API version "one.two"`)

	t.Setenv("EXTKIT_HOST_API_VERSION", "1.5.0")
	out, _ = runCLI(t, "doctor")
	assert.Contains(t, out, "ok    host API version 1.5.0")
}

func TestConfigAndVersion(t *testing.T) {
	home := setupCLI(t)

	_, err := runCLI(t, "config", "set", "host_capabilities", "node")
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(home, ".extkit", "config.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "host_capabilities")

	out, err := runCLI(t, "config", "get", "host_api_version")
	require.NoError(t, err)
	assert.Equal(t, "1.5.0", strings.TrimSpace(out))

	buildVersion = "1.2.3"
	out, err = runCLI(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", strings.TrimSpace(out))
}
