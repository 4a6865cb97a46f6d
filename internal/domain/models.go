// Package domain provides core domain models and types.
package domain

import (
	"sort"
	"time"
)

// RiskFreeAsset is the identifier appended to the asset universe when a
// risk-free holding is enabled.
const RiskFreeAsset = "Risk-Free"

// PricePoint is a single period-end close price
type PricePoint struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// PriceTable maps an asset identifier to its ordered close prices.
// Series are deduplicated per asset; alignment across assets happens in the
// return model.
type PriceTable map[string][]PricePoint

// Assets returns the asset identifiers in sorted order
func (t PriceTable) Assets() []string {
	assets := make([]string, 0, len(t))
	for asset := range t {
		assets = append(assets, asset)
	}
	sort.Strings(assets)
	return assets
}

// Scenario is one optimization request: a target annual return plus
// minimum allocations keyed by asset identifier.
// Scenarios are never mutated once constructed.
type Scenario struct {
	Name         string             `json:"name" yaml:"name"`
	TargetReturn float64            `json:"target_return" yaml:"target_return"`
	Constraints  map[string]float64 `json:"constraints,omitempty" yaml:"constraints,omitempty"`

	// Malformed is set when the scenario could not be decoded. Such a
	// scenario is reported as failed and never solved.
	Malformed string `json:"-" yaml:"-"`
}

// ConstrainedAssets returns the constrained asset identifiers in sorted order
func (s Scenario) ConstrainedAssets() []string {
	assets := make([]string, 0, len(s.Constraints))
	for asset := range s.Constraints {
		assets = append(assets, asset)
	}
	sort.Strings(assets)
	return assets
}
