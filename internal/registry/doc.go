// Package registry acquires the remote add-on registry. It models the
// registry payload, persists the last good payload in a local cache, and
// runs the cache-first refresh protocol: cached data is surfaced at once,
// a lightweight version check decides whether a full download is needed,
// and a bundled snapshot is the last resort when nothing else is available.
// Concurrent refresh requests share a single in-flight refresh.
package registry
