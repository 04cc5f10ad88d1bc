// Package platform provides the filesystem primitives the rest of extkit
// builds on: whole-file text reads and atomic replacements, best-effort
// deletes, and permission handling. Everything goes through an afero.Fs so
// tests can run against an in-memory filesystem.
package platform
