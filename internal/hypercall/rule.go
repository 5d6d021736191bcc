package hypercall

import (
	"strings"
)

// MatchMode selects how a rule compares mnemonics.
type MatchMode int

const (
	MatchExact MatchMode = iota
	MatchPrefix
	// MatchAny accepts every mnemonic and leaves the decision to the guard.
	MatchAny
)

func (m MatchMode) String() string {
	switch m {
	case MatchExact:
		return "exact"
	case MatchPrefix:
		return "prefix"
	default:
		return "any"
	}
}

// Arity bounds the number of tokens of a disassembly line, address and
// raw word included. Max 0 means unbounded.
type Arity struct {
	Min, Max int
}

func exactly(n int) Arity { return Arity{Min: n, Max: n} }

func atLeast(n int) Arity { return Arity{Min: n} }

// Allows reports whether n tokens fit.
func (a Arity) Allows(n int) bool {
	if n < a.Min {
		return false
	}
	return a.Max == 0 || n <= a.Max
}

// Guard is a structural check run after the mnemonic matched.
type Guard func(tokens []string, src uint32) bool

// Rule describes one family of sensitive instructions.
type Rule struct {
	Family    string
	Summary   string
	Mnemonics []string
	Match     MatchMode
	Arity     Arity
	Guard     Guard
	GuardDoc  string
	Variants  []Encoding
}

// MatchesMnemonic reports whether mn belongs to the rule.
func (r *Rule) MatchesMnemonic(mn string) bool {
	switch r.Match {
	case MatchAny:
		return true
	case MatchPrefix:
		for _, m := range r.Mnemonics {
			if strings.HasPrefix(mn, m) {
				return true
			}
		}
	default:
		for _, m := range r.Mnemonics {
			if mn == m {
				return true
			}
		}
	}
	return false
}

// Select returns the first variant that applies to src.
func (r *Rule) Select(src uint32) (*Encoding, bool) {
	for i := range r.Variants {
		if r.Variants[i].Applies(src) {
			return &r.Variants[i], true
		}
	}
	return nil, false
}

// userRegList accepts "ldm rn, {...}^" style operands: the fifth token
// opens the register list and the last one closes it with the user-mode
// suffix.
func userRegList(tokens []string, _ uint32) bool {
	return len(tokens) > 4 &&
		strings.HasPrefix(tokens[4], "{") &&
		strings.HasSuffix(tokens[len(tokens)-1], "}^")
}

// pcDestFlags accepts data-processing words writing pc with S set.
func pcDestFlags(_ []string, src uint32) bool {
	return src&0x0C10F000 == 0x0010F000
}
