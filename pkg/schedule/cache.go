// Package schedule holds the current day's prayer schedule and the set of
// prayers already reminded for it.
package schedule

import (
	"sort"
	"sync"
	"time"

	"github.com/borgmon/prayer-reminder/pkg/models"
)

// Snapshot is one day's resolved schedule for one location.
// Times are immutable; only the fired set changes, and only through Cache.
type Snapshot struct {
	Date      string              // local calendar date (YYYY-MM-DD)
	Location  string              // location the schedule was fetched for
	Times     []models.PrayerTime // ordered by DateTime
	FetchedAt time.Time
	fired     map[string]bool
}

// IsFired reports whether the prayer was already reminded for this snapshot
func (s *Snapshot) IsFired(name string) bool {
	return s.fired[name]
}

// FiredNames returns the fired prayers in schedule order
func (s *Snapshot) FiredNames() []string {
	names := make([]string, 0, len(s.fired))
	for _, pt := range s.Times {
		if s.fired[pt.Name] {
			names = append(names, pt.Name)
		}
	}
	return names
}

// Cache owns the current Snapshot
type Cache struct {
	mu          sync.RWMutex
	current     *Snapshot
	invalidated bool
}

// NewCache returns an empty cache
func NewCache() *Cache {
	return &Cache{}
}

// Stale reports whether the snapshot must be refetched for now and location:
// no snapshot yet, a new local day, a different location, or an explicit invalidation
func (c *Cache) Stale(now time.Time, location string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.current == nil || c.invalidated {
		return true
	}
	return c.current.Date != models.DateKey(now) || c.current.Location != location
}

// Invalidate forces the next Stale check to report true
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = true
}

// Replace installs a fresh snapshot with an empty fired set, or with restored
// fired names when the caller recovers state after a restart
func (c *Cache) Replace(date, location string, times []models.PrayerTime, fetchedAt time.Time, restored ...string) *Snapshot {
	ordered := make([]models.PrayerTime, len(times))
	copy(ordered, times)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].DateTime.Before(ordered[j].DateTime)
	})

	snap := &Snapshot{
		Date:      date,
		Location:  location,
		Times:     ordered,
		FetchedAt: fetchedAt,
		fired:     make(map[string]bool, len(restored)),
	}
	for _, name := range restored {
		snap.fired[name] = true
	}

	c.mu.Lock()
	c.current = snap
	c.invalidated = false
	c.mu.Unlock()

	return snap
}

// Current returns the snapshot, or nil before the first fetch
func (c *Cache) Current() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// MarkFired adds name to the current snapshot's fired set. It returns false if
// the prayer was already fired, or if snap is no longer the current snapshot.
func (c *Cache) MarkFired(snap *Snapshot, name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if snap == nil || c.current != snap || snap.fired[name] {
		return false
	}
	snap.fired[name] = true
	return true
}

// Entry is a schedule row with its fired flag
type Entry struct {
	models.PrayerTime
	Fired bool `json:"fired"`
}

// Entries returns a copy of the current schedule with fired flags
func (c *Cache) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.current == nil {
		return nil
	}
	entries := make([]Entry, 0, len(c.current.Times))
	for _, pt := range c.current.Times {
		entries = append(entries, Entry{PrayerTime: pt, Fired: c.current.fired[pt.Name]})
	}
	return entries
}
