package timeline

// Changes describes how to turn one projection into another.
type Changes struct {
	Inserted []Item `json:"inserted,omitempty"`
	Updated  []Item `json:"updated,omitempty"`
	Removed  []Item `json:"removed,omitempty"`
}

// Empty reports whether there is nothing to re-render.
func (c Changes) Empty() bool {
	return len(c.Inserted) == 0 && len(c.Updated) == 0 && len(c.Removed) == 0
}

// Diff compares two projections by item identity. An item present in both
// is updated only when its rendered state differs.
func Diff(prev, next []Item) Changes {
	before := make(map[string]Item, len(prev))
	for _, it := range prev {
		before[it.ID()] = it
	}

	var c Changes
	seen := make(map[string]struct{}, len(next))
	for _, it := range next {
		id := it.ID()
		seen[id] = struct{}{}

		old, ok := before[id]
		switch {
		case !ok:
			c.Inserted = append(c.Inserted, it)
		case old.Unread != it.Unread || old.Outgoing != it.Outgoing:
			c.Updated = append(c.Updated, it)
		}
	}

	for _, it := range prev {
		if _, ok := seen[it.ID()]; !ok {
			c.Removed = append(c.Removed, it)
		}
	}
	return c
}
