package hypercall

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotHypercall is returned for words outside the trap opcode space.
	ErrNotHypercall = errors.New("not a hypercall word")
	// ErrUnknownHypercall is returned for trap words no rule produces.
	ErrUnknownHypercall = errors.New("unknown hypercall")
)

// Decoded is a trap word taken apart the way the hypervisor's handler
// does it: by id, then by sub-id.
type Decoded struct {
	Word     uint32
	Cond     uint32
	ID       uint32
	SubID    uint32
	Rule     *Rule
	Encoding *Encoding
	Fields   []FieldValue
}

// Family returns the rule family of the word.
func (d Decoded) Family() string {
	return d.Rule.Family
}

// Field returns the value of the named field.
func (d Decoded) Field(name string) (uint32, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return 0, false
}

func (d Decoded) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s cond=%s id=%d", d.Encoding.Name, CondName(d.Cond), d.ID)
	if d.Encoding.HasSubID {
		fmt.Fprintf(&b, " subid=%d", d.SubID)
	}
	for _, f := range d.Fields {
		b.WriteByte(' ')
		b.WriteString(f.String())
	}
	return b.String()
}

// IsHypercall reports whether word lies in the trap opcode space.
func IsHypercall(word uint32) bool {
	return word&OpcodeMask == TrapOpcode
}

// Decode inverts Encode for the profile's catalog.
func (p *Profile) Decode(word uint32) (Decoded, error) {
	if !IsHypercall(word) {
		return Decoded{}, fmt.Errorf("0x%08x: %w", word, ErrNotHypercall)
	}
	id := word >> IDShift & 0xF
	for _, c := range p.byID[id] {
		if !c.enc.identifies(word) {
			continue
		}
		return Decoded{
			Word:     word,
			Cond:     word >> CondShift & 0xF,
			ID:       id,
			SubID:    word >> SubIDShift & 0x7,
			Rule:     c.rule,
			Encoding: c.enc,
			Fields:   c.enc.Unpack(word),
		}, nil
	}
	return Decoded{}, fmt.Errorf("0x%08x in profile %s: %w", word, p.Name, ErrUnknownHypercall)
}

// Decode decodes word with the named profile.
func Decode(profile string, word uint32) (Decoded, error) {
	p, err := Lookup(profile)
	if err != nil {
		return Decoded{}, err
	}
	return p.Decode(word)
}
