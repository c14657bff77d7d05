// Package coverage computes strand-aware read coverage and counts for
// annotated features.
package coverage

import (
	"fmt"

	"github.com/biogo/hts/sam"

	"github.com/inodb/dirseq/internal/gff"
)

// Measure selects what is aggregated for each feature.
type Measure int

// Measure types.
const (
	MeasureCoverage Measure = iota
	MeasureCount
)

// String returns the command-line name of the measure.
func (m Measure) String() string {
	switch m {
	case MeasureCount:
		return "count"
	default:
		return "coverage"
	}
}

// ParseMeasure parses a measure type name.
func ParseMeasure(s string) (Measure, error) {
	switch s {
	case "", "coverage":
		return MeasureCoverage, nil
	case "count":
		return MeasureCount, nil
	}
	return 0, fmt.Errorf("unknown measure type %q (expected coverage or count)", s)
}

// DefaultFilterFlags excludes secondary and supplementary alignments.
const DefaultFilterFlags = sam.Secondary | sam.Supplementary

// Options configures an Aggregator.
type Options struct {
	Measure         Measure
	IgnoreDirection bool
	// ForwardReadOnly counts only the first read of each pair.
	// Only valid with MeasureCount.
	ForwardReadOnly bool
	// FilterFlags skips reads with any of these flags set.
	FilterFlags sam.Flags
	// AcceptedTypes restricts reported features to these types.
	// Empty means all types.
	AcceptedTypes []string
}

// Validate checks for incompatible option combinations.
func (o Options) Validate() error {
	if o.ForwardReadOnly && o.Measure != MeasureCount {
		return fmt.Errorf("forward-read-only requires measure type count")
	}
	return nil
}

// Result is the aggregate for one feature.
type Result struct {
	Feature *gff.Feature
	Forward float64
	Reverse float64
}

// Total returns the direction-insensitive value.
func (r *Result) Total() float64 {
	return r.Forward + r.Reverse
}
