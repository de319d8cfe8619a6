package trend

import "sort"

// RankMove is the rank of a key in the prior and the current snapshot.
type RankMove struct {
	Old int
	New int
}

// Up reports whether the key moved towards the top of the list.
func (m RankMove) Up() bool { return m.New < m.Old }

// Delta describes the difference between two snapshots.
//
// Entered and Unchanged are ordered by current rank, Left by prior rank.
type Delta struct {
	Entered []Key
	Left    []Key
	// LeftRank holds the prior rank of every key in Left.
	LeftRank    map[Key]int
	RankChanged map[Key]RankMove
	Unchanged   []Key
}

// IsEmpty reports whether the delta carries no membership or rank change.
func (d Delta) IsEmpty() bool {
	return len(d.Entered) == 0 && len(d.Left) == 0 && len(d.RankChanged) == 0
}

// HasEntered reports whether k is a new entrant.
func (d Delta) HasEntered(k Key) bool {
	for _, e := range d.Entered {
		if e == k {
			return true
		}
	}
	return false
}

// Movers returns the rank-changed keys ordered by their current rank.
func (d Delta) Movers() []Key {
	out := make([]Key, 0, len(d.RankChanged))
	for k := range d.RankChanged {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := d.RankChanged[out[i]], d.RankChanged[out[j]]
		if a.New != b.New {
			return a.New < b.New
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// Diff compares current against prior.
//
// A nil prior is the first observation: nothing is reported as changed and the
// delta is empty. Otherwise the comparison is over (name, symbol) keys and
// ranks, looked up by key rather than by list position.
func Diff(current Snapshot, prior *Snapshot) (bool, Delta) {
	if prior == nil {
		return false, Delta{}
	}

	cur := current.ranks()
	old := prior.ranks()

	d := Delta{}
	seen := make(map[Key]struct{}, len(cur))
	for _, it := range current.items {
		k := it.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}

		newRank := cur[k]
		oldRank, ok := old[k]
		switch {
		case !ok:
			d.Entered = append(d.Entered, k)
		case oldRank != newRank:
			if d.RankChanged == nil {
				d.RankChanged = map[Key]RankMove{}
			}
			d.RankChanged[k] = RankMove{Old: oldRank, New: newRank}
		default:
			d.Unchanged = append(d.Unchanged, k)
		}
	}

	gone := make(map[Key]struct{})
	for _, it := range prior.items {
		k := it.Key()
		if _, ok := cur[k]; ok {
			continue
		}
		if _, dup := gone[k]; dup {
			continue
		}
		gone[k] = struct{}{}
		d.Left = append(d.Left, k)
		if d.LeftRank == nil {
			d.LeftRank = map[Key]int{}
		}
		d.LeftRank[k] = old[k]
	}

	return !d.IsEmpty(), d
}
