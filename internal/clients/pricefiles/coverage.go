package pricefiles

import (
	"time"

	"github.com/aristath/allocator/internal/domain"
)

// Coverage describes one asset's history relative to the whole table.
type Coverage struct {
	Asset   string    `json:"asset"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Points  int       `json:"points"`
	Missing int       `json:"missing"` // dates present for some other asset but not this one
}

// Inspect reports date ranges and holes per asset, in asset order. Holes are
// the rows the inner join will drop.
func Inspect(table domain.PriceTable) []Coverage {
	all := make(map[time.Time]struct{})
	for _, points := range table {
		for _, p := range points {
			all[p.Date] = struct{}{}
		}
	}

	out := make([]Coverage, 0, len(table))
	for _, asset := range table.Assets() {
		points := table[asset]
		c := Coverage{Asset: asset, Points: len(points)}
		seen := make(map[time.Time]struct{}, len(points))
		for _, p := range points {
			seen[p.Date] = struct{}{}
			if c.Start.IsZero() || p.Date.Before(c.Start) {
				c.Start = p.Date
			}
			if p.Date.After(c.End) {
				c.End = p.Date
			}
		}
		c.Missing = len(all) - len(seen)
		out = append(out, c)
	}
	return out
}

// Complete reports whether no asset has holes.
func Complete(coverage []Coverage) bool {
	for _, c := range coverage {
		if c.Missing > 0 {
			return false
		}
	}
	return true
}
