package analysis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elf2cpatch/internal/disasm"
)

const poolDump = `
Disassembly of section .text:

00008000 <func>:
    8000:	e59f0004 	ldr	r0, [pc, #4]	; 800c <func+0xc>
    8004:	e10f1000 	mrs	r1, CPSR
    8008:	e12fff1e 	bx	lr
    800c:	e10f0000 	mrs	r0, CPSR
    8010:	e320f003 	wfi

00008014 <next>:
    8014:	e10f2000 	mrs	r2, CPSR
    8018:	e59ff000 	ldr	pc, [pc]	; 8020 <missing+0x8>
`

func ingest(t *testing.T, dump string) *disasm.Listing {
	t.Helper()
	ls, err := disasm.Ingest(strings.NewReader(dump), disasm.NewSectionTable(".text"), disasm.IngestOptions{})
	require.NoError(t, err)
	return ls
}

func valid(ls *disasm.Listing, addr uint32) bool {
	n, ok := ls.LineAt(addr)
	return ok && ls.Lines[n].IsInstruction
}

func TestLiteralPoolFilter(t *testing.T) {
	ls := ingest(t, poolDump)
	before := ls.Instructions()

	n := LiteralPoolFilter{}.Apply(ls)
	assert.Equal(t, 2, n)
	assert.Equal(t, before-2, ls.Instructions())

	assert.True(t, valid(ls, 0x8000))
	assert.True(t, valid(ls, 0x8004))
	assert.True(t, valid(ls, 0x8008))
	// the pool runs to the end of the function
	assert.False(t, valid(ls, 0x800c))
	assert.False(t, valid(ls, 0x8010))
	// the next symbol header stops the run
	assert.True(t, valid(ls, 0x8014))
	// unresolvable symbol: left alone
	assert.True(t, valid(ls, 0x8018))
}

func TestLiteralPoolSecondRun(t *testing.T) {
	dump := `
Disassembly of section .text:

00000000 <f>:
       0:	00000010 	ldr	r3, [pc, #4]	; 8 <f+0x8>
       4:	e12fff1e 	bx	lr
       8:	00000000 	andeq	r0, r0, r0

0000000c <g>:
       c:	e1a00000 	nop
      10:	e10f0000 	mrs	r0, CPSR
      14:	e320f003 	wfi
`
	ls := ingest(t, dump)
	n := LiteralPoolFilter{}.Apply(ls)

	// 0x8 from the symbol reference, 0x10 and 0x14 from the raw word
	assert.Equal(t, 3, n)
	assert.False(t, valid(ls, 0x8))
	assert.True(t, valid(ls, 0xc))
	assert.False(t, valid(ls, 0x10))
	assert.False(t, valid(ls, 0x14))
}

func TestLiteralPoolIdempotent(t *testing.T) {
	ls := ingest(t, poolDump)
	LiteralPoolFilter{}.Apply(ls)
	assert.Zero(t, LiteralPoolFilter{}.Apply(ls))
}

func TestParseLiteralRef(t *testing.T) {
	tests := []struct {
		line string
		want LiteralRef
		ok   bool
	}{
		{"8000: e59f0004 ldr r0, [pc, #4] ; 800c <func+0xc>", LiteralRef{Dest: "r0", Symbol: "func", Offset: 0xc}, true},
		{"8000: e59f0004 ldr r0, [pc, #4] ; 800c <func>", LiteralRef{Dest: "r0", Symbol: "func"}, true},
		{"8000: e59ff000 ldr pc, [pc] ; 8008 <vec+0x8>", LiteralRef{Dest: "pc", Symbol: "vec", Offset: 8}, true},
		{"8000: e59f0004 ldr r0, [pc, #4] ; 800c <func+zz>", LiteralRef{}, false},
		{"8000: e59f0004 ldrb r0, [pc, #4] ; 800c <func+0xc>", LiteralRef{}, false},
		{"8000: e5910004 ldr r0, [r1, #4]", LiteralRef{}, false},
		{"8000: e59f0004 ldr r0, [pc, #4] ; 800c", LiteralRef{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := ParseLiteralRef(strings.Fields(tt.line))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

type countFilter struct{ name string }

func (f countFilter) Name() string { return f.name }

func (f countFilter) Apply(ls *disasm.Listing) int {
	if len(ls.Lines) == 0 {
		return 0
	}
	return 1
}

func TestFilterChain(t *testing.T) {
	ls := ingest(t, poolDump)
	chain := NewFilterChain(LiteralPoolFilter{}, countFilter{"one"})
	assert.Equal(t, 2, chain.Len())

	got := chain.Apply(ls)
	assert.Equal(t, map[string]int{"literal-pool": 2, "one": 1}, got)

	var empty *FilterChain
	assert.Zero(t, empty.Len())
	assert.Empty(t, empty.Apply(ls))
}

func TestStats(t *testing.T) {
	s := NewStats("arm32")
	s.Sections = []string{".text"}
	s.Add("mrs", "stext")
	s.Add("mrs", "_ZN3foo3barEv")
	s.Add("cps", "stext")
	s.Add("wfi", "")

	assert.Equal(t, 4, s.Records)
	assert.Equal(t, 2, s.Family("mrs"))
	assert.Zero(t, s.Family("smc"))

	families := s.FamilyTable()
	assert.Contains(t, families, "FAMILY")
	assert.Less(t, strings.Index(families, "mrs"), strings.Index(families, "cps"))

	symbols := s.SymbolTable(1)
	assert.Contains(t, symbols, "stext")
	assert.NotContains(t, symbols, "foo::bar()")
	assert.Contains(t, s.SymbolTable(0), "foo::bar()")

	assert.Contains(t, s.String(), "records")
}

func TestShortName(t *testing.T) {
	assert.Equal(t, "stext", ShortName("stext", 48))
	assert.Equal(t, "foo::bar()", ShortName("_ZN3foo3barEv", 48))
	assert.Equal(t, "foo...", ShortName("foo::bar()", 6))
}

func TestDemangleCacheStats(t *testing.T) {
	CachedDemangle("_ZN3baz3quxEv")
	CachedDemangle("_ZN3baz3quxEv")

	total, hits, top := GetDemangleCacheStats()
	assert.GreaterOrEqual(t, total, 1)
	assert.GreaterOrEqual(t, hits, 1)
	assert.NotEmpty(t, top)
}
