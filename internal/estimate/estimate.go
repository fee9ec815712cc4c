// Package estimate converts raw text into abstract cost units.
// The cost unit is the currency the batcher budgets against: it is
// proportional to text length and deliberately model-agnostic, so
// partitioning decisions stay reproducible across runs and providers.
package estimate

// DefaultCharsPerUnit is the average number of characters that map to one
// cost unit. Four characters per unit tracks the common chars-per-token
// heuristic for English prose.
const DefaultCharsPerUnit = 4

// Estimator converts text into cost units at a fixed encoding ratio.
// The zero value is not usable; construct with New.
type Estimator struct {
	charsPerUnit int
}

// New returns an Estimator with the given encoding ratio. Ratios below 1
// are clamped to the default.
func New(charsPerUnit int) *Estimator {
	if charsPerUnit < 1 {
		charsPerUnit = DefaultCharsPerUnit
	}
	return &Estimator{charsPerUnit: charsPerUnit}
}

// Default returns an Estimator at DefaultCharsPerUnit.
func Default() *Estimator {
	return New(DefaultCharsPerUnit)
}

// Estimate returns the cost of text in abstract units. It is monotonic in
// text length and deterministic: the same input always yields the same
// cost. Non-empty text never costs zero.
func (e *Estimator) Estimate(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + e.charsPerUnit - 1) / e.charsPerUnit
}
