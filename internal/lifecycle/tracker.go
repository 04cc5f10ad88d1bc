package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/extkit-labs/extkit/internal/catalog"
	"github.com/extkit-labs/extkit/internal/compat"
	"github.com/extkit-labs/extkit/internal/platform"
	"go.uber.org/zap"
)

// Catalog is the part of catalog.Catalog the tracker drives.
type Catalog interface {
	Remove(ctx context.Context, id string) error
	SetEnabled(ctx context.Context, id string, enabled bool) error
	Get(id string) (catalog.Entry, bool)
	Entries() []catalog.Entry
}

// Updater installs a downloaded package over an installed add-on.
type Updater interface {
	ApplyUpdate(ctx context.Context, packagePath, id string) error
}

// pendingState is the persisted form of the three pending sets.
type pendingState struct {
	Remove  []string                    `json:"remove"`
	Disable []string                    `json:"disable"`
	Update  map[string]UpdateDescriptor `json:"update"`
}

// Tracker holds the pending remove, disable and update actions. An id
// pending update is never pending removal. The disable set is independent
// of both.
type Tracker struct {
	catalog   Catalog
	updater   Updater
	files     platform.Files
	statePath string
	logger    *zap.Logger

	mu       sync.Mutex
	removals map[string]struct{}
	disables map[string]struct{}
	updates  map[string]UpdateDescriptor
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithStateFile persists pending actions to path and restores them from it.
func WithStateFile(path string) Option {
	return func(t *Tracker) {
		t.statePath = path
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// New creates a tracker. files is used to delete downloaded packages and
// to persist state.
func New(cat Catalog, updater Updater, files platform.Files, opts ...Option) *Tracker {
	t := &Tracker{
		catalog:  cat,
		updater:  updater,
		files:    files,
		logger:   zap.NewNop(),
		removals: make(map[string]struct{}),
		disables: make(map[string]struct{}),
		updates:  make(map[string]UpdateDescriptor),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.load()
	return t
}

// MarkForRemoval marks or unmarks id for removal at the next commit.
// Marking drops any pending update for id.
func (t *Tracker) MarkForRemoval(id string, mark bool) {
	t.mu.Lock()
	setMark(t.removals, id, mark)
	desc, hadUpdate := t.updates[id]
	if mark && hadUpdate {
		delete(t.updates, id)
	}
	t.saveLocked()
	t.mu.Unlock()

	if mark && hadUpdate {
		t.deletePackage(id, desc)
	}
}

// IsMarkedForRemoval reports whether id is pending removal.
func (t *Tracker) IsMarkedForRemoval(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.removals[id]
	return ok
}

// UnmarkAllForRemoval clears the removal set.
func (t *Tracker) UnmarkAllForRemoval() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.removals)
	t.saveLocked()
}

// HasAnyMarkedForRemoval reports whether any id is pending removal.
func (t *Tracker) HasAnyMarkedForRemoval() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.removals) > 0
}

// MarkForDisabling marks or unmarks id for disabling at the next commit.
func (t *Tracker) MarkForDisabling(id string, mark bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	setMark(t.disables, id, mark)
	t.saveLocked()
}

// IsMarkedForDisabling reports whether id is pending disabling.
func (t *Tracker) IsMarkedForDisabling(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.disables[id]
	return ok
}

// UnmarkAllForDisabling clears the disable set.
func (t *Tracker) UnmarkAllForDisabling() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.disables)
	t.saveLocked()
}

// HasAnyMarkedForDisabling reports whether any id is pending disabling.
func (t *Tracker) HasAnyMarkedForDisabling() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.disables) > 0
}

// RecordUpdateFromDownload stores a pending update for a downloaded
// package and clears any removal mark for the id. Results that do not
// describe an update are ignored; the return value reports whether res
// was recorded.
func (t *Tracker) RecordUpdateFromDownload(res DownloadResult) bool {
	if !res.InstallationStatus.IsUpdate() {
		t.logger.Debug("download is not an update",
			zap.String("id", res.ID), zap.String("status", string(res.InstallationStatus)))
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.removals, res.ID)
	t.updates[res.ID] = UpdateDescriptor{
		TargetVersion:      res.Version,
		LocalPackagePath:   res.LocalPath,
		KeepFile:           res.KeepFile,
		InstallationStatus: res.InstallationStatus,
	}
	t.saveLocked()
	return true
}

// RemoveUpdateMark drops the pending update for id, deleting its package
// file unless it is marked to be kept.
func (t *Tracker) RemoveUpdateMark(id string) {
	t.mu.Lock()
	desc, ok := t.updates[id]
	if ok {
		delete(t.updates, id)
		t.saveLocked()
	}
	t.mu.Unlock()

	if ok {
		t.deletePackage(id, desc)
	}
}

// IsMarkedForUpdate reports whether id has a pending update.
func (t *Tracker) IsMarkedForUpdate(id string) bool {
	_, ok := t.PendingUpdate(id)
	return ok
}

// PendingUpdate returns the pending update for id.
func (t *Tracker) PendingUpdate(id string) (UpdateDescriptor, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	desc, ok := t.updates[id]
	return desc, ok
}

// HasAnyMarkedForUpdate reports whether any update is pending.
func (t *Tracker) HasAnyMarkedForUpdate() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.updates) > 0
}

// Pending returns sorted snapshots of the three pending sets.
func (t *Tracker) Pending() (removals, disables []string, updates map[string]UpdateDescriptor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Sorted(maps.Keys(t.removals)),
		slices.Sorted(maps.Keys(t.disables)),
		maps.Clone(t.updates)
}

// CommitRemovals removes every id pending removal. Failed ids stay marked
// and are reported in a *BatchError; the others are applied regardless.
func (t *Tracker) CommitRemovals(ctx context.Context) error {
	t.mu.Lock()
	ids := slices.Sorted(maps.Keys(t.removals))
	t.mu.Unlock()

	return t.commit(ctx, "commit removals", ids, func(id string) error {
		return t.dropIfNotInstalled(id, t.catalog.Remove(ctx, id))
	}, func(id string) {
		delete(t.removals, id)
		delete(t.disables, id)
	})
}

// CommitDisables disables every id pending disabling.
func (t *Tracker) CommitDisables(ctx context.Context) error {
	t.mu.Lock()
	ids := slices.Sorted(maps.Keys(t.disables))
	t.mu.Unlock()

	return t.commit(ctx, "commit disables", ids, func(id string) error {
		return t.dropIfNotInstalled(id, t.catalog.SetEnabled(ctx, id, false))
	}, func(id string) {
		delete(t.disables, id)
	})
}

// CommitUpdates installs every pending update. The package file of a
// successful update is deleted unless it is marked to be kept.
func (t *Tracker) CommitUpdates(ctx context.Context) error {
	t.mu.Lock()
	pending := maps.Clone(t.updates)
	t.mu.Unlock()

	ids := slices.Sorted(maps.Keys(pending))
	return t.commit(ctx, "commit updates", ids, func(id string) error {
		desc := pending[id]
		if err := t.updater.ApplyUpdate(ctx, desc.LocalPackagePath, id); err != nil {
			return err
		}
		t.deletePackage(id, desc)
		return nil
	}, func(id string) {
		delete(t.updates, id)
	})
}

// dropIfNotInstalled treats an id that is no longer installed as done.
func (t *Tracker) dropIfNotInstalled(id string, err error) error {
	var notInstalled *catalog.NotInstalledError
	if errors.As(err, &notInstalled) {
		t.logger.Info("dropping mark for extension that is no longer installed", zap.String("id", id))
		return nil
	}
	return err
}

// commit applies fn to each id, then calls done under the lock for every
// id that succeeded.
func (t *Tracker) commit(ctx context.Context, op string, ids []string, fn func(id string) error, done func(id string)) error {
	var (
		failures  []Failure
		succeeded []string
	)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			failures = append(failures, Failure{ID: id, Err: err})
			continue
		}
		if err := fn(id); err != nil {
			t.logger.Warn(op+" failed", zap.String("id", id), zap.Error(err))
			failures = append(failures, Failure{ID: id, Err: err})
			continue
		}
		succeeded = append(succeeded, id)
	}

	if len(succeeded) > 0 {
		t.mu.Lock()
		for _, id := range succeeded {
			done(id)
		}
		t.saveLocked()
		t.mu.Unlock()
	}

	t.logger.Info(op, zap.Int("applied", len(succeeded)), zap.Int("failed", len(failures)))
	if len(failures) > 0 {
		return &BatchError{Op: op, Failures: failures}
	}
	return nil
}

// CleanupUpdateArtifacts deletes the package files of all pending updates
// not marked to be kept and clears the update set. Used at shutdown when
// updates were deferred.
func (t *Tracker) CleanupUpdateArtifacts() {
	t.mu.Lock()
	pending := t.updates
	t.updates = make(map[string]UpdateDescriptor)
	t.saveLocked()
	t.mu.Unlock()

	for id, desc := range pending {
		t.deletePackage(id, desc)
	}
}

// ListAvailableUpdates lists installed add-ons with a compatible newer
// version in the registry, sorted by id.
func (t *Tracker) ListAvailableUpdates() []AvailableUpdate {
	var out []AvailableUpdate
	for _, e := range t.catalog.Entries() {
		if e.RegistryInfo == nil || e.InstallInfo == nil || !e.InstallInfo.UpdateCompatible {
			continue
		}
		out = append(out, AvailableUpdate{
			ID:               e.ID,
			InstalledVersion: e.InstalledVersion(),
			RegistryVersion:  e.InstallInfo.LastCompatibleVersion,
		})
	}
	return out
}

// PruneStaleUpdates drops updates whose add-on is no longer installed or
// whose installed version already reached the listed version.
func (t *Tracker) PruneStaleUpdates(list []AvailableUpdate) []AvailableUpdate {
	out := make([]AvailableUpdate, 0, len(list))
	for _, u := range list {
		e, ok := t.catalog.Get(u.ID)
		if !ok || !e.Installed() {
			continue
		}
		if cmp, ok := compat.Compare(e.InstalledVersion(), u.RegistryVersion); ok && cmp >= 0 {
			continue
		}
		out = append(out, u)
	}
	return out
}

// Reset clears all pending actions without touching package files.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.removals)
	clear(t.disables)
	clear(t.updates)
	t.saveLocked()
}

func (t *Tracker) deletePackage(id string, desc UpdateDescriptor) {
	if desc.KeepFile || desc.LocalPackagePath == "" {
		return
	}
	if err := t.files.DeleteFile(desc.LocalPackagePath); err != nil {
		t.logger.Warn("deleting downloaded package",
			zap.String("id", id), zap.String("path", desc.LocalPackagePath), zap.Error(err))
	}
}

func (t *Tracker) load() {
	if t.statePath == "" {
		return
	}
	text, ok := t.files.ReadText(t.statePath)
	if !ok {
		return
	}
	var st pendingState
	if err := json.Unmarshal([]byte(text), &st); err != nil {
		t.logger.Warn("ignoring unreadable pending state", zap.String("path", t.statePath), zap.Error(err))
		return
	}
	for _, id := range st.Remove {
		t.removals[id] = struct{}{}
	}
	for _, id := range st.Disable {
		t.disables[id] = struct{}{}
	}
	for id, desc := range st.Update {
		delete(t.removals, id)
		t.updates[id] = desc
	}
}

// saveLocked writes the pending sets. Failures are logged; the in-memory
// state stays authoritative for this process.
func (t *Tracker) saveLocked() {
	if t.statePath == "" {
		return
	}
	st := pendingState{
		Remove:  slices.Sorted(maps.Keys(t.removals)),
		Disable: slices.Sorted(maps.Keys(t.disables)),
		Update:  t.updates,
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		t.logger.Warn("encoding pending state", zap.Error(err))
		return
	}
	if err := t.files.WriteText(t.statePath, string(data)+"\n"); err != nil {
		t.logger.Warn("writing pending state", zap.String("path", t.statePath), zap.Error(err))
	}
}

func setMark(set map[string]struct{}, id string, mark bool) {
	if mark {
		set[id] = struct{}{}
	} else {
		delete(set, id)
	}
}
