package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/extkit-labs/extkit/internal/branding"
	"github.com/spf13/viper"
)

const (
	fileName = "config"
	fileType = "yaml"
)

// Keys understood by Settings.
const (
	KeyRegistryURL        = "registry_url"
	KeyRegistryVersionURL = "registry_version_url"
	KeyPopularityURL      = "popularity_url"
	KeyPackageURLTemplate = "package_url_template"
	KeyHostAPIVersion     = "host_api_version"
	KeyHostCapabilities   = "host_capabilities"
	KeyStateDir           = "state_dir"
	KeyExtensionsDir      = "extensions_dir"
	KeyBundledRegistry    = "bundled_registry"
	KeyHTTPTimeout        = "http_timeout"
)

// DefaultHostAPIVersion is the API version reported when none is configured.
const DefaultHostAPIVersion = "1.0.0"

// Settings is the resolved configuration for one CLI invocation.
type Settings struct {
	RegistryURL        string
	RegistryVersionURL string
	PopularityURL      string
	PackageURLTemplate string
	HostAPIVersion     string
	HostCapabilities   []string
	StateDir           string
	ExtensionsDir      string
	BundledRegistry    string
	HTTPTimeout        time.Duration
}

// Dir returns the path to the config directory (~/.extkit/).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", branding.HomeDir())
	}
	return filepath.Join(home, branding.HomeDir())
}

// FilePath returns the full path to the config file (~/.extkit/config.yaml).
func FilePath() string {
	return filepath.Join(Dir(), fileName+"."+fileType)
}

// EnsureDir creates the config directory if it does not exist.
func EnsureDir() error {
	dir := Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}
	return nil
}

// Load initializes Viper to read from the config file and environment.
func Load() {
	setDefaults()
	viper.SetConfigFile(FilePath())
	viper.SetConfigType(fileType)
	viper.SetEnvPrefix(branding.EnvPrefix())
	viper.AutomaticEnv()

	// Ignore error if config file doesn't exist yet.
	_ = viper.ReadInConfig()
}

func setDefaults() {
	base := branding.RegistryURL()
	dir := base[:strings.LastIndex(base, "/")]
	viper.SetDefault(KeyRegistryURL, base)
	viper.SetDefault(KeyRegistryVersionURL, dir+"/registry-version.json")
	viper.SetDefault(KeyPopularityURL, dir+"/popularity.json")
	viper.SetDefault(KeyPackageURLTemplate, dir+"/{id}/{id}-{version}.zip")
	viper.SetDefault(KeyHostAPIVersion, DefaultHostAPIVersion)
	viper.SetDefault(KeyHostCapabilities, []string{})
	viper.SetDefault(KeyStateDir, filepath.Join(Dir(), "state"))
	viper.SetDefault(KeyExtensionsDir, filepath.Join(Dir(), "extensions"))
	viper.SetDefault(KeyBundledRegistry, filepath.Join(Dir(), "bundled-registry.json"))
	viper.SetDefault(KeyHTTPTimeout, 30*time.Second)
}

// Get returns a config value by key. Returns empty string if not set.
func Get(key string) string {
	return viper.GetString(key)
}

// Current assembles Settings from the loaded configuration.
// Load must have been called first.
func Current() Settings {
	return Settings{
		RegistryURL:        viper.GetString(KeyRegistryURL),
		RegistryVersionURL: viper.GetString(KeyRegistryVersionURL),
		PopularityURL:      viper.GetString(KeyPopularityURL),
		PackageURLTemplate: viper.GetString(KeyPackageURLTemplate),
		HostAPIVersion:     viper.GetString(KeyHostAPIVersion),
		HostCapabilities:   viper.GetStringSlice(KeyHostCapabilities),
		StateDir:           viper.GetString(KeyStateDir),
		ExtensionsDir:      viper.GetString(KeyExtensionsDir),
		BundledRegistry:    viper.GetString(KeyBundledRegistry),
		HTTPTimeout:        viper.GetDuration(KeyHTTPTimeout),
	}
}

// Set writes a config key-value pair and saves the config file.
func Set(key, value string) error {
	if err := EnsureDir(); err != nil {
		return err
	}

	viper.Set(key, value)

	configFile := FilePath()

	// Create the file if it doesn't exist.
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("creating config file %s: %w", configFile, err)
		}
		f.Close()
	}

	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
