// Package diff computes per-incident change sets between two snapshots and
// decides which changes are worth publishing.
package diff

import (
	"fmt"
	"sort"
	"time"

	"firemon/internal/feed"
)

// Change describes how one incident differs between the previous and current
// snapshot. Previous is nil for incidents seen for the first time.
type Change struct {
	ID       string
	Previous *feed.Record
	Current  feed.Record

	// Fields holds the changed field paths, sorted. Empty for new incidents.
	Fields []string
}

// New reports whether the incident was absent from the previous snapshot.
func (c Change) New() bool { return c.Previous == nil }

// significantFields is the publish policy: only changes touching these fields
// (or brand-new incidents) produce a publication. Everything else is audited
// only. Widening the policy is a one-line change here.
var significantFields = map[string]bool{
	"Acres":            true,
	"PercentContained": true,
}

// Significant applies the publish predicate to the changed-field set.
// Pure function of the change; must not depend on anything else.
func (c Change) Significant() bool {
	if c.New() {
		return true
	}
	for _, f := range c.Fields {
		if significantFields[f] {
			return true
		}
	}
	return false
}

// Magnitude is the severity input for publish ordering: the current burned
// extent, optionally weighted by nearby population exposure.
func (c Change) Magnitude(populationWeight float64) float64 {
	m := c.Current.Acres
	if populationWeight > 0 && c.Current.PopulationNearby > 0 {
		m += populationWeight * float64(c.Current.PopulationNearby)
	}
	return m
}

// Snapshots computes the change set from previous to current.
//
// Every incident present in current is considered; incidents that vanished
// from the feed are not reported (they simply age out of persisted state at
// the next commit). Comparison is by value: a timestamp key that is present
// in both but equal does not count as a change. Results are ordered by
// incident ID so admission order is deterministic.
func Snapshots(previous, current feed.Snapshot) []Change {
	ids := make([]string, 0, len(current))
	for id := range current {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []Change
	for _, id := range ids {
		cur := current[id]
		old, ok := previous[id]
		if !ok {
			out = append(out, Change{ID: id, Current: cur})
			continue
		}
		fields := changedFields(old, cur)
		if len(fields) == 0 {
			continue
		}
		oldCopy := old
		out = append(out, Change{ID: id, Previous: &oldCopy, Current: cur, Fields: fields})
	}
	return out
}

func changedFields(old, cur feed.Record) []string {
	var fields []string
	add := func(name string, changed bool) {
		if changed {
			fields = append(fields, name)
		}
	}

	add("Name", old.Name != cur.Name)
	add("State", old.State != cur.State)
	add("Hashtag", old.Hashtag != cur.Hashtag)
	add("Acres", old.Acres != cur.Acres)
	add("PercentContained", old.PercentContained != cur.PercentContained)
	add("Cost", old.Cost != cur.Cost)
	add("Personnel", old.Personnel != cur.Personnel)
	add("PopulationNearby", old.PopulationNearby != cur.PopulationNearby)
	add("Location", old.Latitude != cur.Latitude || old.Longitude != cur.Longitude)
	add("Discovered", !timeEqual(old.Discovered, cur.Discovered))
	add("Updated", !timeEqual(old.Updated, cur.Updated))

	sort.Strings(fields)
	return fields
}

func timeEqual(a, b time.Time) bool {
	if a.IsZero() || b.IsZero() {
		return a.IsZero() == b.IsZero()
	}
	return a.Equal(b)
}

// UpdateID is the stable identifier for one change: incident ID plus change
// timestamp. It names audit files, rendered artifacts, and queue items.
func UpdateID(c Change) string {
	ts := c.Current.Updated
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return fmt.Sprintf("update-%s-of-%s", ts.UTC().Format("20060102T150405Z"), c.ID)
}
