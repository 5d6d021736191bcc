package disasm

// SectionTable is the ordered set of sections to scan.
type SectionTable struct {
	names []string
	set   map[string]struct{}
}

// NewSectionTable builds a table from names, dropping duplicates and
// empty names while keeping the first-seen order.
func NewSectionTable(names ...string) *SectionTable {
	st := &SectionTable{set: make(map[string]struct{}, len(names))}
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, dup := st.set[n]; dup {
			continue
		}
		st.set[n] = struct{}{}
		st.names = append(st.names, n)
	}
	return st
}

// Contains reports whether name is in scope.
func (st *SectionTable) Contains(name string) bool {
	if st == nil {
		return false
	}
	_, ok := st.set[name]
	return ok
}

// Names returns the sections in their original order.
func (st *SectionTable) Names() []string {
	if st == nil {
		return nil
	}
	out := make([]string, len(st.names))
	copy(out, st.names)
	return out
}

// Len returns the number of sections.
func (st *SectionTable) Len() int {
	if st == nil {
		return 0
	}
	return len(st.names)
}
