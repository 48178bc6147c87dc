// Package matcher implements the reconciliation matching strategies: the
// tolerance predicates, the per-run candidate pool, and the ordered
// exact/tolerant/partial/consolidation passes that pair sales with receipts.
//
// The strategies are pure functions from (item, pool) to an optional set of
// allocations; they never touch persistence. Consumption bookkeeping within
// one run lives in the Pool; cross-run exclusivity is enforced by the
// settlement recorder through persisted running totals.
package matcher

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Defaults carried over from the production tuning of the matching engine:
// two cents of amount slack for acquirer fee rounding, two days of
// settlement float.
const (
	DefaultToleranceDays = 2
)

// DefaultEpsilon returns the default amount tolerance of 0.02 currency units.
func DefaultEpsilon() decimal.Decimal {
	return decimal.New(2, -2)
}

// Config holds the tolerance parameters for the matching strategies.
//
// Both knobs have long-standing production defaults (0.02 / 2 days) but are
// deliberately configuration rather than constants: the business value
// varies by acquirer contract.
type Config struct {
	// Epsilon is the absolute amount tolerance in currency units.
	Epsilon decimal.Decimal `json:"epsilon"`

	// ToleranceDays is the settlement-date window in whole days.
	ToleranceDays int `json:"tolerance_days"`
}

// DefaultConfig returns a configuration with the production defaults.
func DefaultConfig() *Config {
	return &Config{
		Epsilon:       DefaultEpsilon(),
		ToleranceDays: DefaultToleranceDays,
	}
}

// Validate checks if the matching configuration is valid
func (c *Config) Validate() error {
	if c.Epsilon.IsNegative() {
		return fmt.Errorf("epsilon cannot be negative: %s", c.Epsilon)
	}
	if c.ToleranceDays < 0 {
		return fmt.Errorf("tolerance days cannot be negative: %d", c.ToleranceDays)
	}
	return nil
}

// String returns a human-readable description of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Epsilon: %s, ToleranceDays: %d}",
		c.Epsilon.String(), c.ToleranceDays)
}
