// Package catalog holds the merged view of every known add-on: what the
// registry says about it and what is installed locally. The two sides are
// reconciled whenever either changes, and observers are notified through an
// events.Bus.
package catalog
