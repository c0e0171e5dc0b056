package store

import (
	"reflect"

	"artisanlink/internal/models"
)

// collection keeps bookings in display order with an id index. Ids are
// unique; every write path goes through replace or upsert.
type collection struct {
	order []string
	items map[string]models.Booking
}

func newCollection() *collection {
	return &collection{items: make(map[string]models.Booking)}
}

// replace swaps the whole content. Duplicate ids in the input keep their
// first position and last value. An entry already held with a newer
// updatedAt than the incoming one survives, so a slow fetch cannot undo a
// push. Returns the ids that were kept that way.
func (c *collection) replace(list []models.Booking) []string {
	prev := c.items
	c.order = make([]string, 0, len(list))
	c.items = make(map[string]models.Booking, len(list))
	var kept []string
	for _, b := range list {
		if b.ID == "" {
			continue
		}
		if _, seen := c.items[b.ID]; !seen {
			c.order = append(c.order, b.ID)
		}
		if old, ok := prev[b.ID]; ok && newerThan(old, b) {
			c.items[b.ID] = old
			kept = append(kept, b.ID)
			continue
		}
		c.items[b.ID] = b.Clone()
	}
	return kept
}

// newerThan reports whether a carries a strictly later updatedAt than b.
func newerThan(a, b models.Booking) bool {
	if a.UpdatedAt == nil || b.UpdatedAt == nil {
		return false
	}
	return a.UpdatedAt.After(*b.UpdatedAt)
}

func (c *collection) clear() {
	c.order = nil
	c.items = make(map[string]models.Booking)
}

func (c *collection) get(id string) (models.Booking, bool) {
	b, ok := c.items[id]
	if !ok {
		return models.Booking{}, false
	}
	return b.Clone(), true
}

// put stores b. New ids go to the front or the back; existing ids keep their
// position. Reports false when the stored value did not change.
func (c *collection) put(b models.Booking, front bool) bool {
	existing, ok := c.items[b.ID]
	if ok && equalBooking(existing, b) {
		return false
	}
	if !ok {
		if front {
			c.order = append([]string{b.ID}, c.order...)
		} else {
			c.order = append(c.order, b.ID)
		}
	}
	c.items[b.ID] = b.Clone()
	return true
}

func (c *collection) list() []models.Booking {
	out := make([]models.Booking, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.items[id].Clone())
	}
	return out
}

func (c *collection) len() int {
	return len(c.order)
}

func equalBooking(a, b models.Booking) bool {
	return reflect.DeepEqual(a, b)
}
