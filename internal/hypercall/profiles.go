package hypercall

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownProfile is returned by Lookup for names not in the catalog.
var ErrUnknownProfile = errors.New("unknown profile")

// DefaultProfile is used when no profile is selected.
const DefaultProfile = "arm32"

// NopWord is "mov r0, r0", written over sev.
const NopWord uint32 = 0xe1a00000

// Profile is one ISA revision: its rule catalog plus the addressing and
// filtering quirks of its disassembly.
type Profile struct {
	Name        string
	Description string
	Rules       []Rule

	// OrBase indexes lines at symbol base | address.
	OrBase bool
	// LiteralPool enables the literal-pool filter.
	LiteralPool bool
	// RequireSections disables section auto-detection.
	RequireSections bool
	// DumpFlag is the objdump disassembly flag, -d or -D.
	DumpFlag string

	byID map[uint32][]ref
}

type ref struct {
	rule *Rule
	enc  *Encoding
}

func newProfile(p Profile) *Profile {
	p.byID = make(map[uint32][]ref)
	for i := range p.Rules {
		r := &p.Rules[i]
		for j := range r.Variants {
			e := &r.Variants[j]
			if e.Replace {
				continue
			}
			if err := e.Layout(); err != nil {
				panic(fmt.Sprintf("hypercall: profile %s: %v", p.Name, err))
			}
			p.byID[e.ID] = append(p.byID[e.ID], ref{rule: r, enc: e})
		}
	}
	return &p
}

var profiles = map[string]*Profile{}

func register(p *Profile) {
	profiles[p.Name] = p
}

func init() {
	register(newProfile(arm32()))
	register(newProfile(arm7a()))
	register(newProfile(armv7a()))
}

// Lookup returns the profile called name.
func Lookup(name string) (*Profile, error) {
	p, ok := profiles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (want one of %v)", ErrUnknownProfile, name, Names())
	}
	return p, nil
}

// Names lists the profile names in sorted order.
func Names() []string {
	names := make([]string, 0, len(profiles))
	for n := range profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Profiles returns every profile in name order.
func Profiles() []*Profile {
	var out []*Profile
	for _, n := range Names() {
		out = append(out, profiles[n])
	}
	return out
}

// Families lists the rule families of the profile in catalog order.
func (p *Profile) Families() []string {
	var out []string
	seen := map[string]bool{}
	for _, r := range p.Rules {
		if !seen[r.Family] {
			seen[r.Family] = true
			out = append(out, r.Family)
		}
	}
	return out
}

func cpsRule() Rule {
	return Rule{
		Family:    "cps",
		Summary:   "change processor state",
		Mnemonics: []string{"cps", "cpsie", "cpsid"},
		Match:     MatchExact,
		Arity:     exactly(4),
		Variants: []Encoding{{
			Name: "cps", ID: 0, SubID: 0, HasSubID: true,
			Cond: CondFixed(0xE),
			Fields: []Field{
				imm("imod", 18, 2, 15),
				flag("M", 17, 14),
				flag("A", 8, 13),
				flag("I", 7, 12),
				flag("F", 6, 11),
				imm("mode", 0, 5, 6),
			},
		}},
	}
}

func mrsRule(m MatchMode) Rule {
	return Rule{
		Family:    "mrs",
		Summary:   "read special register",
		Mnemonics: []string{"mrs"},
		Match:     m,
		Arity:     atLeast(5),
		Variants: []Encoding{{
			Name: "mrs", ID: 0, SubID: 1, HasSubID: true,
			Cond: CondExtract,
			Fields: []Field{
				reg("Rd", 12, 4, 13),
				flag("R", 22, 12),
			},
		}},
	}
}

func msrRule(m MatchMode) Rule {
	return Rule{
		Family:    "msr",
		Summary:   "write special register",
		Mnemonics: []string{"msr"},
		Match:     m,
		Arity:     atLeast(5),
		Variants: []Encoding{
			{
				Name: "msr-imm", Mask: 1 << 25, Value: 1 << 25,
				ID: 0, SubID: 2, HasSubID: true,
				Cond: CondExtract,
				Fields: []Field{
					imm("mask", 16, 4, 13),
					imm("imm12", 0, 12, 1),
					flag("R", 22, 0),
				},
			},
			{
				Name: "msr-reg", Mask: 1 << 25, Value: 0,
				ID: 0, SubID: 3, HasSubID: true,
				Cond: CondExtract,
				Fields: []Field{
					imm("mask", 16, 4, 13),
					reg("Rn", 0, 4, 9),
					flag("R", 22, 8),
				},
			},
		},
	}
}

func rfeRule(m MatchMode, mnemonics []string, cond CondPolicy) Rule {
	return Rule{
		Family:    "rfe",
		Summary:   "return from exception",
		Mnemonics: mnemonics,
		Match:     m,
		Arity:     exactly(4),
		Variants: []Encoding{{
			Name: "rfe", ID: 0, SubID: 4, HasSubID: true,
			Cond: cond,
			Fields: []Field{
				flag("P", 24, 16),
				flag("U", 23, 15),
				flag("W", 21, 14),
				reg("Rn", 16, 4, 10),
			},
		}},
	}
}

func srsRule(m MatchMode, mnemonics []string, cond CondPolicy, mode Field) Rule {
	return Rule{
		Family:    "srs",
		Summary:   "store return state",
		Mnemonics: mnemonics,
		Match:     m,
		Arity:     atLeast(5),
		Variants: []Encoding{{
			Name: "srs", ID: 0, SubID: 5, HasSubID: true,
			Cond: cond,
			Fields: []Field{
				flag("P", 24, 16),
				flag("U", 23, 15),
				flag("W", 21, 14),
				mode,
			},
		}},
	}
}

func hintRule(mnemonic string, ev uint32) Rule {
	return Rule{
		Family:    mnemonic,
		Summary:   "wait/yield hint",
		Mnemonics: []string{mnemonic},
		Match:     MatchPrefix,
		Arity:     exactly(3),
		Variants: []Encoding{{
			Name: mnemonic, ID: 0, SubID: 6, HasSubID: true,
			Cond:   CondExtract,
			Fields: []Field{constant("ev", 2, 15, ev)},
		}},
	}
}

func sevRule() Rule {
	return Rule{
		Family:    "sev",
		Summary:   "send event, replaced by a nop",
		Mnemonics: []string{"sev"},
		Match:     MatchPrefix,
		Arity:     exactly(3),
		Variants:  []Encoding{{Name: "sev", Replace: true, Literal: NopWord}},
	}
}

func smcRule() Rule {
	return Rule{
		Family:    "smc",
		Summary:   "secure monitor call",
		Mnemonics: []string{"smc"},
		Match:     MatchPrefix,
		Arity:     exactly(4),
		Variants: []Encoding{{
			Name: "smc", ID: 0, SubID: 7, HasSubID: true,
			Cond:   CondExtract,
			Fields: []Field{imm("imm4", 0, 4, 13)},
		}},
	}
}

var (
	ldmMnemonics = []string{"ldmda", "ldmdb", "ldmia", "ldmib", "ldm"}
	stmMnemonics = []string{"stmda", "stmdb", "stmia", "stmib", "stm"}
	rfeMnemonics = []string{"rfeda", "rfedb", "rfeia", "rfeib", "rfe"}
	srsMnemonics = []string{"srsda", "srsdb", "srsia", "srsib", "srs"}
	pcMnemonics  = []string{
		"ands", "eors", "subs", "rsbs", "adds", "adcs",
		"sbcs", "rscs", "orrs", "movs", "bics", "mvns",
	}
)

// ldmRule covers ldm with exception return or user registers. The id
// counts the eight P/U/W combinations from 1.
func ldmRule() Rule {
	var vs []Encoding
	for p := uint32(0); p < 2; p++ {
		for u := uint32(0); u < 2; u++ {
			for w := uint32(0); w < 2; w++ {
				vs = append(vs, Encoding{
					Name:  fmt.Sprintf("ldm-p%du%dw%d", p, u, w),
					Mask:  1<<24 | 1<<23 | 1<<21,
					Value: p<<24 | u<<23 | w<<21,
					ID:    1 + p*4 + u*2 + w,
					Cond:  CondExtract,
					Fields: []Field{
						reg("Rn", 16, 4, 16),
						regList("list", 16),
					},
				})
			}
		}
	}
	return Rule{
		Family:    "ldm",
		Summary:   "load multiple, exception return or user registers",
		Mnemonics: ldmMnemonics,
		Match:     MatchExact,
		Arity:     atLeast(5),
		Guard:     userRegList,
		GuardDoc:  "operands end with }^",
		Variants:  vs,
	}
}

func stmRule() Rule {
	var vs []Encoding
	for p := uint32(0); p < 2; p++ {
		for u := uint32(0); u < 2; u++ {
			vs = append(vs, Encoding{
				Name:  fmt.Sprintf("stm-p%du%d", p, u),
				Mask:  1<<24 | 1<<23,
				Value: p<<24 | u<<23,
				ID:    9 + p*2 + u,
				Cond:  CondExtract,
				Fields: []Field{
					reg("Rn", 16, 4, 16),
					regList("list", 15),
				},
			})
		}
	}
	return Rule{
		Family:    "stm",
		Summary:   "store multiple, user registers",
		Mnemonics: stmMnemonics,
		Match:     MatchExact,
		Arity:     atLeast(5),
		Guard:     userRegList,
		GuardDoc:  "operands end with }^",
		Variants:  vs,
	}
}

// pcVariants encodes "<op>s pc, ..." with the register form at regID
// and the immediate form at regID+1.
func pcVariants(regID uint32) []Encoding {
	return []Encoding{
		{
			Name: "dp-reg", Mask: 1 << 25, Value: 0,
			ID: regID, Cond: CondExtract,
			Fields: []Field{
				imm("opcode", 21, 4, 16),
				reg("Rn", 16, 4, 12),
				imm("imm5", 7, 5, 7),
				imm("type", 5, 2, 5),
				reg("Rm", 0, 4, 0),
			},
		},
		{
			Name: "dp-imm", Mask: 1 << 25, Value: 1 << 25,
			ID: regID + 1, Cond: CondExtract,
			Fields: []Field{
				imm("opcode", 21, 4, 16),
				reg("Rn", 16, 4, 12),
				imm("imm12", 0, 12, 0),
			},
		},
	}
}

func arm32() Profile {
	return Profile{
		Name:        "arm32",
		Description: "ARMv5/v6 guests, code sections auto-detected",
		DumpFlag:    "-d",
		Rules: []Rule{
			hintRule("wfi", 0),
			hintRule("wfe", 1),
			sevRule(),
			hintRule("yield", 2),
			cpsRule(),
			rfeRule(MatchExact, rfeMnemonics, CondFixed(0xE)),
			smcRule(),
			mrsRule(MatchExact),
			msrRule(MatchExact),
			srsRule(MatchExact, srsMnemonics, CondFixed(0xE), imm("mode", 0, 5, 9)),
			ldmRule(),
			stmRule(),
			{
				Family:    "subs",
				Summary:   "data processing writing pc with flags",
				Mnemonics: pcMnemonics,
				Match:     MatchExact,
				Arity:     atLeast(5),
				Guard:     pcDestFlags,
				GuardDoc:  "word & 0x0c10f000 == 0x0010f000",
				Variants:  pcVariants(13),
			},
		},
	}
}

// armv7a follows arm32 but keeps the source condition of rfe and needs
// explicit sections.
func armv7a() Profile {
	p := arm32()
	p.Name = "armv7a"
	p.Description = "ARMv7-A guests, explicit sections, rfe keeps its condition"
	p.RequireSections = true
	for i := range p.Rules {
		if p.Rules[i].Family == "rfe" {
			p.Rules[i] = rfeRule(MatchExact, rfeMnemonics, CondExtract)
		}
	}
	return p
}

// unprivWord covers ldrt/strt/ldrbt/strbt: id base for the immediate
// offset form, base+1 for the register offset form. Rt keeps r0-r7.
func unprivWord(mnemonic string, base uint32) Rule {
	common := []Field{
		flag("U", 23, 19),
		reg("Rn", 16, 4, 15),
		reg("Rt", 12, 3, 12),
	}
	return Rule{
		Family:    mnemonic,
		Summary:   "unprivileged load/store",
		Mnemonics: []string{mnemonic},
		Match:     MatchPrefix,
		Arity:     atLeast(5),
		Variants: []Encoding{
			{
				Name: mnemonic + "-imm", Mask: 1 << 25, Value: 0,
				ID: base, Cond: CondExtract,
				Fields: append(append([]Field{}, common...),
					imm("imm12", 0, 12, 0)),
			},
			{
				Name: mnemonic + "-reg", Mask: 1 << 25, Value: 1 << 25,
				ID: base + 1, Cond: CondExtract,
				Fields: append(append([]Field{}, common...),
					imm("imm5", 7, 5, 7),
					imm("type", 5, 2, 5),
					reg("Rm", 0, 4, 0)),
			},
		},
	}
}

// unprivHalf covers ldrht/ldrsbt/ldrsht/strht under id 14. Bit 22 picks
// the immediate form at sub-id base+1.
func unprivHalf(mnemonic string, base uint32) Rule {
	common := []Field{
		reg("Rn", 16, 4, 13),
		reg("Rt", 12, 4, 9),
		flag("U", 23, 8),
	}
	return Rule{
		Family:    mnemonic,
		Summary:   "unprivileged halfword/signed load/store",
		Mnemonics: []string{mnemonic},
		Match:     MatchPrefix,
		Arity:     atLeast(5),
		Variants: []Encoding{
			{
				Name: mnemonic + "-reg", Mask: 1 << 22, Value: 0,
				ID: 14, SubID: base, HasSubID: true, Cond: CondExtract,
				Fields: append(append([]Field{}, common...),
					reg("Rm", 0, 4, 4)),
			},
			{
				Name: mnemonic + "-imm", Mask: 1 << 22, Value: 1 << 22,
				ID: 14, SubID: base + 1, HasSubID: true, Cond: CondExtract,
				Fields: append(append([]Field{}, common...),
					imm("imm4H", 8, 4, 4),
					imm("imm4L", 0, 4, 0)),
			},
		},
	}
}

func arm7a() Profile {
	ldm := ldmRule()
	ldm.Match = MatchPrefix
	ldm.Variants = nil
	for p := uint32(0); p < 2; p++ {
		ldm.Variants = append(ldm.Variants, Encoding{
			Name:  fmt.Sprintf("ldm-p%d", p),
			Mask:  1 << 24,
			Value: p << 24,
			ID:    1 + p,
			Cond:  CondExtract,
			Fields: []Field{
				regClass("Rn", 18),
				flag("U", 23, 17),
				flag("W", 21, 16),
				regList("list", 16),
			},
		})
	}

	stm := stmRule()
	stm.Match = MatchPrefix
	stm.Variants = []Encoding{{
		Name: "stm", ID: 3, Cond: CondExtract,
		Fields: []Field{
			regClass("Rn", 18),
			flag("P", 24, 17),
			flag("U", 23, 16),
			regList("list", 15),
		},
	}}

	return Profile{
		Name:            "arm7a",
		Description:     "ARMv7-A guests with a reduced register set, literal pools filtered",
		DumpFlag:        "-D",
		OrBase:          true,
		LiteralPool:     true,
		RequireSections: true,
		Rules: []Rule{
			cpsRule(),
			rfeRule(MatchPrefix, rfeMnemonics, CondFixed(0xF)),
			mrsRule(MatchPrefix),
			msrRule(MatchPrefix),
			srsRule(MatchPrefix, srsMnemonics, CondFixed(0xF), imm("mode", 16, 4, 10)),
			ldm,
			stm,
			unprivWord("ldrbt", 10),
			unprivHalf("ldrht", 0),
			unprivHalf("ldrsbt", 2),
			unprivHalf("ldrsht", 4),
			unprivWord("ldrt", 6),
			unprivWord("strbt", 12),
			unprivHalf("strht", 6),
			unprivWord("strt", 8),
			{
				Family:   "subs",
				Summary:  "data processing writing pc with flags",
				Match:    MatchAny,
				Arity:    atLeast(5),
				Guard:    pcDestFlags,
				GuardDoc: "word & 0x0c10f000 == 0x0010f000",
				Variants: pcVariants(4),
			},
		},
	}
}
