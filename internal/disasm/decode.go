package disasm

import (
	"encoding/binary"
	"fmt"
	"strings"

	"golang.org/x/arch/arm/armasm"
)

// Decoded is an ARM-mode instruction word decoded with x/arch.
type Decoded struct {
	Word     uint32
	Mnemonic string
	Text     string // GNU syntax, or ".word 0x..." when undecodable
	Valid    bool
}

// Decode decodes a 32-bit ARM-mode word. Words x/arch cannot decode are
// reported as .word directives rather than errors.
func Decode(word uint32) Decoded {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], word)

	inst, err := armasm.Decode(buf[:], armasm.ModeARM)
	if err != nil {
		return Decoded{
			Word:     word,
			Mnemonic: ".word",
			Text:     fmt.Sprintf(".word 0x%08x", word),
		}
	}
	text := armasm.GNUSyntax(inst)
	mnemonic := text
	if i := strings.IndexByte(text, ' '); i >= 0 {
		mnemonic = text[:i]
	}
	return Decoded{
		Word:     word,
		Mnemonic: strings.ToLower(mnemonic),
		Text:     text,
		Valid:    true,
	}
}
