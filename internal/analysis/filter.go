package analysis

import (
	"log/slog"

	"elf2cpatch/internal/disasm"
)

// Filter marks listing lines that must not be scanned.
type Filter interface {
	// Name identifies the filter in logs and statistics
	Name() string
	// Apply clears IsInstruction on lines that are not code and returns
	// how many lines it cleared
	Apply(ls *disasm.Listing) int
}

// FilterChain runs multiple filters in sequence
type FilterChain struct {
	filters []Filter
}

// NewFilterChain creates a new filter chain
func NewFilterChain(filters ...Filter) *FilterChain {
	return &FilterChain{
		filters: filters,
	}
}

// Len returns the number of filters in the chain
func (fc *FilterChain) Len() int {
	if fc == nil {
		return 0
	}
	return len(fc.filters)
}

// Apply runs all filters in sequence and returns the lines each cleared,
// keyed by filter name
func (fc *FilterChain) Apply(ls *disasm.Listing) map[string]int {
	result := make(map[string]int)
	if fc == nil {
		return result
	}
	for _, f := range fc.filters {
		n := f.Apply(ls)
		result[f.Name()] += n
		slog.Debug("Filter applied", "filter", f.Name(), "invalidated", n)
	}
	return result
}
