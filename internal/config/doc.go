// Package config manages user-level settings stored at ~/.extkit/config.yaml.
// It loads values from the config file and EXTKIT_* environment variables and
// assembles the typed Settings consumed by the registry fetcher, the catalog,
// and the lifecycle tracker.
package config
