package hypercall

import "fmt"

// Trap word layout. Bits [27:24] hold the reserved opcode, [31:28] the
// condition, [23:20] the instruction id and, for id 0 and the halfword
// family, [19:17] the sub-id.
const (
	TrapOpcode uint32 = 0x0F000000
	OpcodeMask uint32 = 0x0F000000

	CondShift  = 28
	IDShift    = 20
	SubIDShift = 17
)

// CondPolicy decides the condition code of the trap word.
type CondPolicy struct {
	Fixed bool
	Value uint32
}

// CondExtract copies the condition of the source instruction.
var CondExtract = CondPolicy{}

// CondFixed forces the condition to v.
func CondFixed(v uint32) CondPolicy {
	return CondPolicy{Fixed: true, Value: v & 0xF}
}

// Resolve returns the condition to encode for src.
func (c CondPolicy) Resolve(src uint32) uint32 {
	if c.Fixed {
		return c.Value
	}
	return src >> CondShift & 0xF
}

func (c CondPolicy) String() string {
	if c.Fixed {
		return "fixed " + CondName(c.Value)
	}
	return "extracted"
}

// Encoding is one re-encoding variant of a rule. It applies to a source
// word when word&Mask == Value.
type Encoding struct {
	Name     string
	Mask     uint32
	Value    uint32
	ID       uint32
	SubID    uint32
	HasSubID bool
	Cond     CondPolicy
	Fields   []Field

	// Replace, when set, makes the variant emit Literal verbatim instead
	// of a trap word.
	Replace bool
	Literal uint32
}

// Applies reports whether the variant is selected for src.
func (e *Encoding) Applies(src uint32) bool {
	return src&e.Mask == e.Value
}

// Header returns the trap word bits fixed by the variant, condition
// excluded.
func (e *Encoding) Header() uint32 {
	w := TrapOpcode | (e.ID&0xF)<<IDShift
	if e.HasSubID {
		w |= (e.SubID & 0x7) << SubIDShift
	}
	return w
}

// Encode builds the replacement word for src.
func (e *Encoding) Encode(src uint32) uint32 {
	if e.Replace {
		return e.Literal
	}
	w := e.Header() | e.Cond.Resolve(src)<<CondShift
	for _, f := range e.Fields {
		w |= f.Pack(f.Extract(src))
	}
	return w
}

// Extract returns the field values the variant takes from src.
func (e *Encoding) Extract(src uint32) []FieldValue {
	out := make([]FieldValue, 0, len(e.Fields))
	for _, f := range e.Fields {
		out = append(out, FieldValue{Name: f.Name, Kind: f.Kind, Value: f.Extract(src)})
	}
	return out
}

// Unpack returns the field values carried by a trap word.
func (e *Encoding) Unpack(word uint32) []FieldValue {
	out := make([]FieldValue, 0, len(e.Fields))
	for _, f := range e.Fields {
		out = append(out, FieldValue{Name: f.Name, Kind: f.Kind, Value: f.Unpack(word)})
	}
	return out
}

// identifies reports whether a trap word carries this variant's id and
// sub-id. Const fields take part so that variants sharing an id and
// sub-id stay distinguishable.
func (e *Encoding) identifies(word uint32) bool {
	if e.Replace {
		return false
	}
	if word>>IDShift&0xF != e.ID {
		return false
	}
	if e.HasSubID && word>>SubIDShift&0x7 != e.SubID {
		return false
	}
	for _, f := range e.Fields {
		if f.Kind == KindConst && f.Unpack(word) != f.Value {
			return false
		}
	}
	return true
}

// Layout checks that no two fields share a trap word bit and that no
// field reaches into the condition, opcode, id or sub-id bits.
func (e *Encoding) Layout() error {
	used := uint32(0xF)<<CondShift | OpcodeMask | uint32(0xF)<<IDShift
	if e.HasSubID {
		used |= uint32(0x7) << SubIDShift
	}
	for _, f := range e.Fields {
		if clash := used & f.DstMask(); clash != 0 {
			return fmt.Errorf("%s: field %s overlaps bits 0x%08x", e.Name, f.Name, clash)
		}
		used |= f.DstMask()
	}
	return nil
}
