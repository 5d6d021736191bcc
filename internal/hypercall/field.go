package hypercall

import (
	"fmt"
	"strings"
)

// Kind tells how a field value is rendered.
type Kind int

const (
	KindImm Kind = iota
	KindBit
	KindReg
	KindRegClass
	KindRegList
	KindConst
)

// Field moves Width bits from bit Src of the source instruction to bit
// Dst of the trap word. Const fields ignore the source and always carry
// Value.
type Field struct {
	Name  string
	Src   uint
	Width uint
	Dst   uint
	Kind  Kind
	Value uint32
}

func (f Field) mask() uint32 {
	return 1<<f.Width - 1
}

// Extract returns the field value taken from a source instruction word.
func (f Field) Extract(src uint32) uint32 {
	if f.Kind == KindConst {
		return f.Value & f.mask()
	}
	return src >> f.Src & f.mask()
}

// Pack places v at the field's destination bits.
func (f Field) Pack(v uint32) uint32 {
	return (v & f.mask()) << f.Dst
}

// Unpack reads the field back from a trap word.
func (f Field) Unpack(word uint32) uint32 {
	return word >> f.Dst & f.mask()
}

// DstMask is the set of trap word bits owned by the field.
func (f Field) DstMask() uint32 {
	return f.mask() << f.Dst
}

func imm(name string, src, width, dst uint) Field {
	return Field{Name: name, Src: src, Width: width, Dst: dst, Kind: KindImm}
}

func flag(name string, src, dst uint) Field {
	return Field{Name: name, Src: src, Width: 1, Dst: dst, Kind: KindBit}
}

func reg(name string, src, width, dst uint) Field {
	return Field{Name: name, Src: src, Width: width, Dst: dst, Kind: KindReg}
}

// regClass keeps the top two bits of a register number: r0, r4, r8 or sp.
func regClass(name string, dst uint) Field {
	return Field{Name: name, Src: 18, Width: 2, Dst: dst, Kind: KindRegClass}
}

func regList(name string, width uint) Field {
	return Field{Name: name, Src: 0, Width: width, Dst: 0, Kind: KindRegList}
}

func constant(name string, width, dst uint, v uint32) Field {
	return Field{Name: name, Width: width, Dst: dst, Kind: KindConst, Value: v}
}

// FieldValue is a named field together with its value.
type FieldValue struct {
	Name  string
	Kind  Kind
	Value uint32
}

func (fv FieldValue) String() string {
	return fv.Name + "=" + fv.Format()
}

// Format renders the value according to its kind.
func (fv FieldValue) Format() string {
	switch fv.Kind {
	case KindBit, KindConst:
		return fmt.Sprintf("%d", fv.Value)
	case KindReg:
		return RegName(fv.Value)
	case KindRegClass:
		return RegName(ClassRegister(fv.Value))
	case KindRegList:
		return formatRegList(fv.Value)
	default:
		return fmt.Sprintf("%#x", fv.Value)
	}
}

// ClassRegister maps a register class back to the register the trap
// handler uses for it.
func ClassRegister(class uint32) uint32 {
	if class&3 == 3 {
		return 13
	}
	return (class & 3) * 4
}

var regNames = [16]string{
	"r0", "r1", "r2", "r3", "r4", "r5", "r6", "r7",
	"r8", "r9", "r10", "fp", "ip", "sp", "lr", "pc",
}

// RegName returns the GNU name of ARM core register n.
func RegName(n uint32) string {
	return regNames[n&0xF]
}

func formatRegList(list uint32) string {
	var regs []string
	for i := uint32(0); i < 16; i++ {
		if list&(1<<i) != 0 {
			regs = append(regs, RegName(i))
		}
	}
	return "{" + strings.Join(regs, ", ") + "}"
}

var condNames = [16]string{
	"eq", "ne", "cs", "cc", "mi", "pl", "vs", "vc",
	"hi", "ls", "ge", "lt", "gt", "le", "al", "nv",
}

// CondName returns the assembler suffix of a condition code.
func CondName(cond uint32) string {
	return condNames[cond&0xF]
}
