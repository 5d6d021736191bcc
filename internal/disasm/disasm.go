// Package disasm defines the line records produced from objdump text
// and the indices built over them while ingesting.
package disasm

import "strings"

// Line is one recorded disassembly line.
type Line struct {
	Address       uint32   // absolute address (or base|offset, see IngestOptions.OrBase)
	Tokens        []string // whitespace-collapsed tokens of the raw line
	Section       string   // owning section name
	Symbol        string   // owning symbol name
	IsInstruction bool     // instruction record still eligible for scanning
	IsSymbol      bool     // symbol header record
}

// Mnemonic returns the mnemonic token of an instruction line.
func (l *Line) Mnemonic() string {
	if len(l.Tokens) < 3 {
		return ""
	}
	return l.Tokens[2]
}

// RawWord returns the second token, the hex encoding printed by objdump.
func (l *Line) RawWord() string {
	if len(l.Tokens) < 2 {
		return ""
	}
	return l.Tokens[1]
}

// Text rebuilds the normalized line.
func (l *Line) Text() string {
	return strings.Join(l.Tokens, " ")
}

// Listing is the arena of lines plus the tables built during ingestion.
// Lines are referenced by their position in Lines.
type Listing struct {
	Lines   []Line
	Symbols map[string]uint32 // symbol name -> base address
	Index   map[uint32]int    // address -> position in Lines
}

// NewListing returns an empty listing.
func NewListing() *Listing {
	return &Listing{
		Symbols: make(map[string]uint32),
		Index:   make(map[uint32]int),
	}
}

// LineAt returns the position of the line recorded at addr.
func (ls *Listing) LineAt(addr uint32) (int, bool) {
	n, ok := ls.Index[addr]
	return n, ok
}

// InvalidateRun clears IsInstruction on the line at position start and
// on every following line until one that is already invalid. It returns
// the number of lines cleared.
func (ls *Listing) InvalidateRun(start int) int {
	n := 0
	for i := start; i < len(ls.Lines); i++ {
		if !ls.Lines[i].IsInstruction {
			break
		}
		ls.Lines[i].IsInstruction = false
		n++
	}
	return n
}

// Instructions counts lines still marked as instructions.
func (ls *Listing) Instructions() int {
	n := 0
	for i := range ls.Lines {
		if ls.Lines[i].IsInstruction {
			n++
		}
	}
	return n
}
