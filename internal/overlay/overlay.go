package overlay

import (
	"sync"

	"github.com/BuzzLyutic/task-sync-client/internal/model"
)

type Kind int

const (
	KindToggle Kind = iota + 1
	KindTombstone
)

// Entry is a pending local mutation shown on top of the cached page.
type Entry struct {
	Kind   Kind
	Status model.Status
}

func ToggleTo(status model.Status) Entry {
	return Entry{Kind: KindToggle, Status: status}
}

func Tombstone() Entry {
	return Entry{Kind: KindTombstone}
}

type slot struct {
	entry     Entry
	token     uint64
	confirmed bool
	epoch     uint64
}

// Overlay maps task ids to at most one pending entry each. A later Apply for
// the same id replaces the earlier one.
type Overlay struct {
	mu      sync.Mutex
	entries map[string]slot
	seq     uint64
}

func New() *Overlay {
	return &Overlay{entries: make(map[string]slot)}
}

// Apply installs e for id and returns a token identifying this entry.
func (o *Overlay) Apply(id string, e Entry) uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.seq++
	o.entries[id] = slot{entry: e, token: o.seq}
	return o.seq
}

// Clear removes whatever entry id has.
func (o *Overlay) Clear(id string) {
	o.mu.Lock()
	delete(o.entries, id)
	o.mu.Unlock()
}

// Release removes the entry for id only if it is still the one installed
// with token. It reports whether anything was removed.
func (o *Overlay) Release(id string, token uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	s, ok := o.entries[id]
	if !ok || s.token != token {
		return false
	}
	delete(o.entries, id)
	return true
}

// Confirm marks the entry installed with token as accepted by the server.
// It keeps projecting until Settle sees a page fetched in epoch or later.
func (o *Overlay) Confirm(id string, token, epoch uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	s, ok := o.entries[id]
	if !ok || s.token != token {
		return false
	}
	s.confirmed = true
	s.epoch = epoch
	o.entries[id] = s
	return true
}

// Settle drops confirmed entries whose epoch is at most epoch and returns
// how many were dropped.
func (o *Overlay) Settle(epoch uint64) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := 0
	for id, s := range o.entries {
		if s.confirmed && s.epoch <= epoch {
			delete(o.entries, id)
			n++
		}
	}
	return n
}

func (o *Overlay) Get(id string) (Entry, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	s, ok := o.entries[id]
	return s.entry, ok
}

// Pending reports whether id has a mutation in flight. Confirmed entries
// are not pending.
func (o *Overlay) Pending(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	s, ok := o.entries[id]
	return ok && !s.confirmed
}

func (o *Overlay) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.entries)
}

// Project returns a copy of page with the overlay applied. Tombstoned tasks
// are dropped and counted out of TotalItems, toggled tasks get the pending
// status. Ids not on the page are ignored. page itself is never modified.
func (o *Overlay) Project(page model.Page) model.Page {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := page
	out.Items = make([]model.Task, 0, len(page.Items))

	removed := 0
	for _, t := range page.Items {
		s, ok := o.entries[t.ID]
		if !ok {
			out.Items = append(out.Items, t)
			continue
		}
		switch s.entry.Kind {
		case KindTombstone:
			removed++
		case KindToggle:
			t.Status = s.entry.Status
			out.Items = append(out.Items, t)
		default:
			out.Items = append(out.Items, t)
		}
	}

	out.TotalItems -= removed
	if out.TotalItems < 0 {
		out.TotalItems = 0
	}
	return out
}
