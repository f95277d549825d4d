// Package registry owns the durable set of tracked usernames.
//
// All access goes through one mutex; the lock is never held across network
// calls. Every mutating operation persists the full snapshot (batch flips by
// the scanner persist once per cycle).
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/natefinch/atomic"

	logx "unbanbot/pkg/logx"
)

type Status string

const (
	StatusMonitoring Status = "monitoring"
	StatusUnbanned   Status = "unbanned"
)

// ErrCorrupt means a snapshot file exists but cannot be decoded. Startup must
// abort in that case: starting with an empty registry would silently drop
// every tracked username.
var ErrCorrupt = errors.New("registry snapshot corrupt")

// Item is one tracked username.
//
// Username is the map key in the persisted snapshot, so it is excluded from
// the record body. Status only ever moves monitoring -> unbanned; UnbanTime is
// set exactly once at that transition.
type Item struct {
	Username  string     `json:"-"`
	StartTime time.Time  `json:"start_time"`
	Status    Status     `json:"status"`
	ChatID    int64      `json:"chat_id"`
	UnbanTime *time.Time `json:"unban_time,omitempty"`
}

type Registry struct {
	path string
	log  logx.Logger

	mu    sync.Mutex
	items map[string]Item
}

func New(path string, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{path: path, log: log, items: map[string]Item{}}
}

// Load reconstructs state from the snapshot file. A missing file yields an
// empty registry; a malformed file yields ErrCorrupt.
func (r *Registry) Load() error {
	b, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			r.mu.Lock()
			r.items = map[string]Item{}
			r.mu.Unlock()
			return nil
		}
		return err
	}

	var raw map[string]Item
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, r.path, err)
	}

	items := make(map[string]Item, len(raw))
	for name, it := range raw {
		if it.Status != StatusMonitoring && it.Status != StatusUnbanned {
			return fmt.Errorf("%w: %s: item %q has unknown status %q", ErrCorrupt, r.path, name, it.Status)
		}
		if it.StartTime.IsZero() {
			return fmt.Errorf("%w: %s: item %q has no start_time", ErrCorrupt, r.path, name)
		}
		it.Username = name
		items[name] = it
	}

	r.mu.Lock()
	r.items = items
	n := len(items)
	r.mu.Unlock()

	r.log.Info("registry loaded", logx.String("path", r.path), logx.Int("items", n))
	return nil
}

// Save persists the full state atomically (temp file + rename).
func (r *Registry) Save() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveLocked()
}

func (r *Registry) saveLocked() error {
	b, err := json.MarshalIndent(r.items, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return atomic.WriteFile(r.path, bytes.NewReader(b))
}

// Upsert stores an item and persists the snapshot.
func (r *Registry) Upsert(it Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[it.Username] = it
	return r.saveLocked()
}

// UpsertBatch stores several items with a single snapshot write. Used by the
// front end so one add command persists once regardless of batch size.
func (r *Registry) UpsertBatch(items []Item) error {
	if len(items) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range items {
		r.items[it.Username] = it
	}
	return r.saveLocked()
}

func (r *Registry) Get(username string) (Item, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[username]
	return it, ok
}

// Remove deletes an item, but only for the owning chat. A non-owner looks the
// same as a missing item to the caller, so ownership never leaks.
func (r *Registry) Remove(username string, chatID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[username]
	if !ok || it.ChatID != chatID {
		return false, nil
	}
	delete(r.items, username)
	return true, r.saveLocked()
}

// ListFor returns the chat's monitoring items, sorted by username for stable
// rendering. Unbanned items are excluded.
func (r *Registry) ListFor(chatID int64) []Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Item
	for _, it := range r.items {
		if it.ChatID == chatID && it.Status == StatusMonitoring {
			out = append(out, it)
		}
	}
	sortItems(out)
	return out
}

// Monitoring returns a snapshot of every non-terminal item.
func (r *Registry) Monitoring() []Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Item
	for _, it := range r.items {
		if it.Status == StatusMonitoring {
			out = append(out, it)
		}
	}
	sortItems(out)
	return out
}

// MarkUnbanned flips the given usernames to the terminal state and persists
// once. Items removed mid-cycle are skipped; items already unbanned stay
// untouched (the transition is one-way).
func (r *Registry) MarkUnbanned(usernames []string, at time.Time) error {
	if len(usernames) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	changed := false
	for _, name := range usernames {
		it, ok := r.items[name]
		if !ok || it.Status != StatusMonitoring {
			continue
		}
		t := at
		it.Status = StatusUnbanned
		it.UnbanTime = &t
		r.items[name] = it
		changed = true
	}
	if !changed {
		return nil
	}
	return r.saveLocked()
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

func sortItems(items []Item) {
	sort.Slice(items, func(i, j int) bool { return items[i].Username < items[j].Username })
}
