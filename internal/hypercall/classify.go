package hypercall

import (
	"strings"

	"elf2cpatch/internal/disasm"
)

// Match is a disassembly line recognized by a rule.
type Match struct {
	Rule     *Rule
	Encoding *Encoding
	Source   uint32
	Word     uint32
}

// Family returns the matched rule family.
func (m Match) Family() string {
	return m.Rule.Family
}

// Classify matches the tokens of one instruction line, address and raw
// word included, against the catalog. Rules are tried in order; a rule
// whose guard fails does not stop the search.
func (p *Profile) Classify(tokens []string) (Match, bool) {
	if len(tokens) < 3 {
		return Match{}, false
	}
	src, ok := disasm.ParseHex(tokens[1])
	if !ok {
		return Match{}, false
	}
	mn := tokens[2]
	for i := range p.Rules {
		r := &p.Rules[i]
		if !r.Arity.Allows(len(tokens)) || !r.MatchesMnemonic(mn) {
			continue
		}
		if r.Guard != nil && !r.Guard(tokens, src) {
			continue
		}
		enc, ok := r.Select(src)
		if !ok {
			continue
		}
		return Match{
			Rule:     r,
			Encoding: enc,
			Source:   src,
			Word:     enc.Encode(src),
		}, true
	}
	return Match{}, false
}

// Annotation is the mnemonic followed by at most two operand tokens.
func Annotation(tokens []string) string {
	if len(tokens) < 3 {
		return ""
	}
	return strings.Join(tokens[2:min(len(tokens), 5)], " ")
}
