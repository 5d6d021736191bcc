// Package colorize highlights ARM assembly for terminal output.
package colorize

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// EnvNoColor disables colors when set to any non-empty value.
const EnvNoColor = "ELF2CPATCH_NO_COLOR"

// getAssemblyLexer returns an appropriate assembly lexer with fallbacks
func getAssemblyLexer() chroma.Lexer {
	// ARM assembly first
	candidates := []string{"armasm", "gas", "GAS", "nasm"}
	for _, name := range candidates {
		if lexer := lexers.Get(name); lexer != nil {
			return lexer
		}
	}
	return nil
}

// getDisasmStyle returns the disassembly style with fallbacks
func getDisasmStyle() *chroma.Style {
	candidates := []string{"cpatch-dark", "dracula", "monokai"}
	for _, name := range candidates {
		if style := styles.Get(name); style != nil {
			return style
		}
	}
	return styles.Fallback
}

// getTerminalFormatter returns an appropriate terminal formatter
func getTerminalFormatter() chroma.Formatter {
	candidates := []string{"terminal16m", "terminal256"}
	for _, name := range candidates {
		if formatter := formatters.Get(name); formatter != nil {
			return formatter
		}
	}
	return formatters.Fallback
}

// Disabled reports whether ELF2CPATCH_NO_COLOR is set.
func Disabled() bool {
	return os.Getenv(EnvNoColor) != ""
}

// Assembly applies syntax highlighting to ARM assembly code. On any
// failure the code is returned unchanged along with the error.
func Assembly(code string) (string, error) {
	if Disabled() {
		return code, nil
	}

	lexer := getAssemblyLexer()
	if lexer == nil {
		return code, nil
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code, err
	}

	var buf strings.Builder
	if err := getTerminalFormatter().Format(&buf, getDisasmStyle(), iterator); err != nil {
		return code, err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// Word colorizes "<hex word>  <assembly>" with the word in gray.
func Word(word uint32, asm string) string {
	hex := fmt.Sprintf("%08x", word)
	if Disabled() {
		return hex + "  " + asm
	}
	colored, _ := Assembly(asm)
	return fmt.Sprintf("\033[38;2;79;79;79m%s\033[0m  %s", hex, colored)
}
