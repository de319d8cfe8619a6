package trend

import "fmt"

// Key identifies a tracked item. Matching is exact and case-sensitive.
type Key struct {
	Name   string
	Symbol string
}

func (k Key) String() string { return fmt.Sprintf("%s (%s)", k.Name, k.Symbol) }

// Entry is one row of a fetched ranked list, in source order.
type Entry struct {
	Name   string
	Symbol string
	// ChangePct is the source's percentage change (nil when the source has none).
	// Display only; never part of identity or diffing.
	ChangePct *float64
}

// RankedList is what a fetcher returns: rows ordered from the top of the list.
type RankedList []Entry

// RankedItem is an entry with its observed position (1 = top).
type RankedItem struct {
	Rank      int
	Name      string
	Symbol    string
	ChangePct *float64
}

func (it RankedItem) Key() Key { return Key{Name: it.Name, Symbol: it.Symbol} }

// Snapshot is one cycle's full ranked list. It is immutable: constructors copy
// their input and accessors return copies.
type Snapshot struct {
	items []RankedItem
}

// FromList builds a Snapshot, assigning ranks by position starting at 1.
func FromList(list RankedList) Snapshot {
	items := make([]RankedItem, 0, len(list))
	for i, e := range list {
		items = append(items, RankedItem{
			Rank:      i + 1,
			Name:      e.Name,
			Symbol:    e.Symbol,
			ChangePct: copyPct(e.ChangePct),
		})
	}
	return Snapshot{items: items}
}

// NewSnapshot builds a Snapshot from items that already carry ranks.
// Ranks are taken as-is; no renumbering is performed.
func NewSnapshot(items ...RankedItem) Snapshot {
	cp := make([]RankedItem, len(items))
	for i, it := range items {
		it.ChangePct = copyPct(it.ChangePct)
		cp[i] = it
	}
	return Snapshot{items: cp}
}

func (s Snapshot) Len() int { return len(s.items) }

func (s Snapshot) Empty() bool { return len(s.items) == 0 }

// At returns the i-th item in list order.
func (s Snapshot) At(i int) RankedItem {
	it := s.items[i]
	it.ChangePct = copyPct(it.ChangePct)
	return it
}

// Items returns a copy of the items in list order.
func (s Snapshot) Items() []RankedItem {
	out := make([]RankedItem, len(s.items))
	for i := range s.items {
		out[i] = s.At(i)
	}
	return out
}

// ranks indexes the snapshot by identity key. If a key repeats, the first
// (best ranked) occurrence wins.
func (s Snapshot) ranks() map[Key]int {
	m := make(map[Key]int, len(s.items))
	for _, it := range s.items {
		k := it.Key()
		if _, ok := m[k]; ok {
			continue
		}
		m[k] = it.Rank
	}
	return m
}

func copyPct(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
