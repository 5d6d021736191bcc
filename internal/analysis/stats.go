package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ryanuber/columnize"
)

// Stats summarizes one patch run.
type Stats struct {
	Profile      string
	Sections     []string
	Lines        int            // recorded listing lines
	Instructions int            // instruction lines left after filtering
	Filtered     map[string]int // lines invalidated, per filter
	Records      int

	families map[string]int
	symbols  map[string]int
	order    []string // families in first-seen order
}

// NewStats returns empty statistics for profile.
func NewStats(profile string) *Stats {
	return &Stats{
		Profile:  profile,
		Filtered: make(map[string]int),
		families: make(map[string]int),
		symbols:  make(map[string]int),
	}
}

// Add counts one emitted record.
func (s *Stats) Add(family, symbol string) {
	s.Records++
	if _, ok := s.families[family]; !ok {
		s.order = append(s.order, family)
	}
	s.families[family]++
	if symbol != "" {
		s.symbols[symbol]++
	}
}

// Family returns the number of records of family.
func (s *Stats) Family(family string) int {
	return s.families[family]
}

// FamilyTable renders the per-family counts in catalog order.
func (s *Stats) FamilyTable() string {
	rows := []string{"FAMILY | RECORDS"}
	for _, f := range s.order {
		rows = append(rows, fmt.Sprintf("%s | %d", f, s.families[f]))
	}
	return columnize.SimpleFormat(rows)
}

// SymbolTable renders the limit symbols holding the most records.
func (s *Stats) SymbolTable(limit int) string {
	type row struct {
		sym string
		n   int
	}
	rows := make([]row, 0, len(s.symbols))
	for sym, n := range s.symbols {
		rows = append(rows, row{sym, n})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].n != rows[j].n {
			return rows[i].n > rows[j].n
		}
		return rows[i].sym < rows[j].sym
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	out := []string{"SYMBOL | RECORDS"}
	for _, r := range rows {
		out = append(out, fmt.Sprintf("%s | %d", ShortName(r.sym, MaxSymbolWidth), r.n))
	}
	return columnize.SimpleFormat(out)
}

// Summary renders the run totals.
func (s *Stats) Summary() string {
	filters := make([]string, 0, len(s.Filtered))
	for name := range s.Filtered {
		filters = append(filters, name)
	}
	sort.Strings(filters)

	rows := []string{
		"profile | " + s.Profile,
		"sections | " + strings.Join(s.Sections, " "),
		fmt.Sprintf("lines | %d", s.Lines),
	}
	for _, name := range filters {
		rows = append(rows, fmt.Sprintf("%s | %d", name, s.Filtered[name]))
	}
	rows = append(rows,
		fmt.Sprintf("instructions | %d", s.Instructions),
		fmt.Sprintf("records | %d", s.Records),
	)
	return columnize.SimpleFormat(rows)
}

func (s *Stats) String() string {
	var b strings.Builder
	b.WriteString(s.Summary())
	b.WriteString("\n\n")
	b.WriteString(s.FamilyTable())
	if len(s.symbols) > 0 {
		b.WriteString("\n\n")
		b.WriteString(s.SymbolTable(TopSymbols))
	}
	b.WriteString("\n")
	return b.String()
}
