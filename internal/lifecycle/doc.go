// Package lifecycle tracks pending remove, disable and update actions and
// applies them in batches, usually at restart.
//
// The pending sets are persisted after every change, so a crash between
// marking and committing does not lose work.
package lifecycle
