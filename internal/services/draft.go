package services

import (
	"context"
	"reflect"
	"sync"
	"time"
)

// DraftState is the lifecycle of the local working copy relative to the
// last-saved server document.
type DraftState string

const (
	StateClean      DraftState = "clean"
	StateDirty      DraftState = "dirty"
	StateSaving     DraftState = "saving"
	StateSaveFailed DraftState = "save_failed"
)

// RemoteDocumentStore abstracts the persistence collaborator the draft
// saves against. A conflict (remote changed since last fetch) must be
// returned as a ServiceError with ErrorConflict.
type RemoteDocumentStore interface {
	PutMigration(ctx context.Context, id string, patch MigrationPatch) (*Migration, error)
}

// DraftController owns the divergence between the local working copy of a
// Migration and its last-known server version. It debounces writes,
// serializes at-most-one in-flight save, and answers navigation-guard
// queries. Edits are applied through the dependency engine so the local
// copy always reflects resolved cascades.
type DraftController struct {
	mu     sync.Mutex
	remote RemoteDocumentStore
	engine *Engine

	server *Migration
	local  *Migration

	state     DraftState
	saveAgain bool
	lastSaved *time.Time
	lastErr   error

	timer    *time.Timer
	debounce time.Duration
	now      func() time.Time
}

// NewDraftController wraps one fetched document. The server and local
// copies start out identical.
func NewDraftController(remote RemoteDocumentStore, doc *Migration, table *RuleSet) *DraftController {
	return &DraftController{
		remote:   remote,
		engine:   NewEngine(table),
		server:   doc.Clone(),
		local:    doc.Clone(),
		state:    StateClean,
		debounce: 750 * time.Millisecond,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetDebounceInterval adjusts the quiet period used by DebouncedSave.
func (d *DraftController) SetDebounceInterval(interval time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.debounce = interval
}

// ApplyEdit resolves one answer change against the local copy and applies
// the resulting mutations. It never blocks on the network. A resolution
// awaiting confirmation is returned without touching any question; call
// again with confirmed=true once the user approves the cascade.
func (d *DraftController) ApplyEdit(questionID string, raw any, confirmed bool) (*Resolution, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	res, err := d.engine.Resolve(questionID, raw, d.local.Questions, ResolveOptions{Confirmed: confirmed})
	if err != nil {
		return nil, err
	}
	if res.NeedsConfirmation {
		return res, nil
	}
	d.local.Questions = res.Apply(d.local.Questions)
	d.markDirtyLocked()
	return res, nil
}

// SetClientInfo replaces the project metadata record on the local copy.
func (d *DraftController) SetClientInfo(info ClientInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.local.ClientInfo = info
	d.markDirtyLocked()
}

// SetAdditionalNotes replaces the free-text notes on the local copy.
func (d *DraftController) SetAdditionalNotes(notes string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.local.AdditionalNotes = notes
	d.markDirtyLocked()
}

func (d *DraftController) markDirtyLocked() {
	if d.state == StateSaving {
		// Edits stay local while a save is in flight and trigger exactly
		// one follow-up save when it resolves.
		d.saveAgain = true
		return
	}
	if d.divergedLocked() {
		d.state = StateDirty
	} else {
		d.state = StateClean
	}
}

func (d *DraftController) divergedLocked() bool {
	return !reflect.DeepEqual(d.local, d.server)
}

// Save writes the local copy to the remote store. It is a no-op while a
// save is already in flight and when there is nothing to save. On success
// the server's returned document becomes the new baseline (the server is
// the source of truth for computed fields); on failure local edits are
// retained and the state moves to SaveFailed.
func (d *DraftController) Save(ctx context.Context) error {
	d.mu.Lock()
	if d.state == StateSaving {
		d.mu.Unlock()
		return nil
	}
	if !d.divergedLocked() {
		d.state = StateClean
		d.mu.Unlock()
		return nil
	}
	id := d.local.ID
	notes := d.local.AdditionalNotes
	info := d.local.ClientInfo
	patch := MigrationPatch{
		ClientInfo:      &info,
		Questions:       CloneQuestions(d.local.Questions),
		AdditionalNotes: &notes,
		Version:         d.server.Version,
	}
	d.state = StateSaving
	d.mu.Unlock()

	saved, err := d.remote.PutMigration(ctx, id, patch)

	d.mu.Lock()
	if err != nil {
		d.state = StateSaveFailed
		d.lastErr = err
		d.saveAgain = false
		d.mu.Unlock()
		return err
	}
	stamp := d.now()
	d.server = saved.Clone()
	d.lastSaved = &stamp
	d.lastErr = nil
	if d.saveAgain {
		d.saveAgain = false
		d.state = StateDirty
		d.mu.Unlock()
		return d.Save(ctx)
	}
	d.local = d.server.Clone()
	d.state = StateClean
	d.mu.Unlock()
	return nil
}

// DebouncedSave coalesces rapid edits into one request after a quiet
// period; each call cancels and reschedules the timer. The timer never
// fires a save out of SaveFailed: recovery from a failed save is an
// explicit user action only.
func (d *DraftController) DebouncedSave(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.debounce, func() {
		d.mu.Lock()
		fire := d.state == StateDirty
		d.mu.Unlock()
		if fire {
			_ = d.Save(ctx)
		}
	})
}

// Retry re-attempts the save after a failure. It does nothing unless the
// draft is in SaveFailed.
func (d *DraftController) Retry(ctx context.Context) error {
	d.mu.Lock()
	if d.state != StateSaveFailed {
		d.mu.Unlock()
		return nil
	}
	d.state = StateDirty
	d.mu.Unlock()
	return d.Save(ctx)
}

// Discard drops all local edits, restoring the last-saved server version.
func (d *DraftController) Discard() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.local = d.server.Clone()
	d.state = StateClean
	d.lastErr = nil
	d.saveAgain = false
}

// CanNavigateAway is the navigation-guard predicate: false while unsaved
// edits exist or the last save failed. Callers must block and offer
// save/discard/cancel when it returns false.
func (d *DraftController) CanNavigateAway() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state != StateDirty && d.state != StateSaveFailed
}

func (d *DraftController) State() DraftState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Dirty reports whether the local copy differs from the server version by
// value.
func (d *DraftController) Dirty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.divergedLocked()
}

// Local returns a copy of the working document.
func (d *DraftController) Local() *Migration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.local.Clone()
}

// ServerVersion returns a copy of the last-fetched or last-saved document.
func (d *DraftController) ServerVersion() *Migration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.server.Clone()
}

func (d *DraftController) LastSaved() *time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lastSaved == nil {
		return nil
	}
	v := *d.lastSaved
	return &v
}

func (d *DraftController) LastError() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

// Progress computes the aggregate over the local working copy.
func (d *DraftController) Progress() Progress {
	d.mu.Lock()
	defer d.mu.Unlock()
	return ComputeProgress(d.local.Questions)
}

// IsConflict reports whether an error is the distinguished save-conflict
// kind. A conflict must never be resolved by force-pushing the draft.
func IsConflict(err error) bool {
	se, ok := AsServiceError(err)
	return ok && se.Code == ErrorConflict
}
