package analysis

import (
	"log/slog"
	"strings"

	"elf2cpatch/internal/disasm"
)

// LiteralRef is the "; <addr> <sym+off>" annotation objdump appends to
// pc-relative loads.
type LiteralRef struct {
	Dest   string // destination register, commas stripped
	Symbol string
	Offset uint32
}

// ParseLiteralRef recognizes "ldr <reg>, [pc, #imm] ; <addr> <sym+off>".
func ParseLiteralRef(tokens []string) (LiteralRef, bool) {
	if len(tokens) < MinLiteralTokens || tokens[2] != "ldr" {
		return LiteralRef{}, false
	}
	n := len(tokens)
	if tokens[n-3] != ";" {
		return LiteralRef{}, false
	}
	target := tokens[n-1]
	if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
		return LiteralRef{}, false
	}
	target = strings.TrimSuffix(strings.TrimPrefix(target, "<"), ">")

	ref := LiteralRef{Dest: strings.ReplaceAll(tokens[3], ",", "")}
	sym, off, hasOff := strings.Cut(target, "+")
	ref.Symbol = sym
	if hasOff {
		v, ok := disasm.ParseHex(off)
		if !ok {
			return LiteralRef{}, false
		}
		ref.Offset = v
	}
	return ref, true
}

// Resolve returns the absolute address of the referenced literal.
func (r LiteralRef) Resolve(symbols map[string]uint32) (uint32, bool) {
	base, ok := symbols[r.Symbol]
	if !ok {
		return 0, false
	}
	return base + r.Offset, true
}

// LiteralPoolFilter invalidates constant words placed after functions and
// loaded through pc-relative ldr, so they are not mistaken for code.
type LiteralPoolFilter struct{}

// Name implements Filter
func (LiteralPoolFilter) Name() string { return "literal-pool" }

// Apply implements Filter. For each resolvable literal load the run of
// instruction lines starting at the literal is invalidated. Loads into a
// register other than pc also invalidate the run starting at the address
// given by the load's raw word. References that do not resolve are left
// alone.
func (LiteralPoolFilter) Apply(ls *disasm.Listing) int {
	total, loads := 0, 0
	for i := range ls.Lines {
		if !ls.Lines[i].IsInstruction {
			continue
		}
		tokens := ls.Lines[i].Tokens
		ref, ok := ParseLiteralRef(tokens)
		if !ok {
			continue
		}
		addr, ok := ref.Resolve(ls.Symbols)
		if !ok {
			continue
		}
		at, ok := ls.LineAt(addr)
		if !ok {
			continue
		}
		loads++
		total += ls.InvalidateRun(at)

		if ref.Dest == "pc" {
			continue
		}
		second, ok := disasm.ParseHex(tokens[1])
		if !ok {
			continue
		}
		if at, ok := ls.LineAt(second); ok {
			total += ls.InvalidateRun(at)
		}
	}
	slog.Debug("Literal pools filtered", "loads", loads, "invalidated", total)
	return total
}
