package colorize

import (
	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/styles"
)

// CpatchDark colors mnemonics white, registers teal and immediates pink.
var CpatchDark = styles.Register(chroma.MustNewStyle("cpatch-dark", chroma.StyleEntries{
	chroma.Text:       "#FFFFFF",
	chroma.Background: "bg:#1e1e1e",
	chroma.Comment:    "#6A9955",

	chroma.Keyword:      "#FFFFFF",
	chroma.NameFunction: "#FFFFFF", // mnemonics
	chroma.Name:         "#7C9C9D",
	chroma.NameBuiltin:  "#7C9C9D", // sp, lr, pc
	chroma.NameVariable: "#7C9C9D",
	chroma.NameLabel:    "#FFD700",

	chroma.LiteralNumber:        "#FF5F87",
	chroma.LiteralNumberHex:     "#FF5F87",
	chroma.LiteralNumberInteger: "#FF5F87",

	chroma.Operator:    "#FFFFFF",
	chroma.Punctuation: "#FFFFFF",
	chroma.String:      "#EACD53",
}))
