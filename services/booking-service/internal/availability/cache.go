// Package availability keeps the externally blocked dates (the channel
// manager's iCal feed) in memory for the booking front end.
package availability

import (
	"sync"
	"time"

	"github.com/NathalieLiekens/vp-backend/services/booking-service/internal/calendar"
)

// BlockedRange is one unavailable window from the feed. Start <= End.
type BlockedRange struct {
	Start calendar.Date `json:"start"`
	End   calendar.Date `json:"end"`
}

// Overlaps reports whether a stay of nights [checkIn, checkOut) touches the
// range. A range whose end equals its start still blocks that one day.
func (r BlockedRange) Overlaps(checkIn, checkOut calendar.Date) bool {
	end := r.End
	if !end.After(r.Start) {
		end = r.Start.AddDays(1)
	}
	return checkIn.Before(end) && r.Start.Before(checkOut)
}

// Cache holds the last successfully synced ranges. Replace swaps the whole
// set; readers get a copy and never wait for a feed fetch.
type Cache struct {
	mu       sync.RWMutex
	ranges   []BlockedRange
	syncedAt time.Time
	now      func() time.Time
}

func NewCache() *Cache {
	return &Cache{ranges: []BlockedRange{}, now: time.Now}
}

// Replace installs a freshly synced set.
func (c *Cache) Replace(ranges []BlockedRange) {
	cp := append([]BlockedRange{}, ranges...)
	c.mu.Lock()
	c.ranges = cp
	c.syncedAt = c.now()
	c.mu.Unlock()
}

// Seed installs ranges from a previous process without counting as a sync,
// so the first read still tries the live feed.
func (c *Cache) Seed(ranges []BlockedRange) {
	cp := append([]BlockedRange{}, ranges...)
	c.mu.Lock()
	if c.syncedAt.IsZero() {
		c.ranges = cp
	}
	c.mu.Unlock()
}

func (c *Cache) Read() []BlockedRange {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]BlockedRange{}, c.ranges...)
}

// LastSynced returns when Replace last ran; ok is false before the first sync.
func (c *Cache) LastSynced() (at time.Time, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.syncedAt, !c.syncedAt.IsZero()
}

// Conflicts reports whether any cached range overlaps the stay.
func (c *Cache) Conflicts(checkIn, checkOut calendar.Date) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.ranges {
		if r.Overlaps(checkIn, checkOut) {
			return true
		}
	}
	return false
}
