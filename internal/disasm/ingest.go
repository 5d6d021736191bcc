package disasm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
)

// ErrNoSections is returned when the disassembly never enters a section in scope.
var ErrNoSections = errors.New("no in-scope section found in disassembly")

// IngestOptions selects per-profile addressing quirks.
type IngestOptions struct {
	// OrBase indexes instruction lines at base|address, where base is the
	// address of the last symbol header, instead of the plain address.
	OrBase bool
}

// Fields normalizes a raw objdump line: tabs become spaces, runs of
// whitespace collapse to one and the ends are trimmed.
func Fields(raw string) []string {
	return strings.Fields(raw)
}

// ParseHex parses a hex number as printed by objdump, tolerating a 0x
// prefix and a trailing colon.
func ParseHex(s string) (uint32, bool) {
	s = strings.TrimSuffix(s, ":")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

// isSectionHeader matches "Disassembly of section <name>:".
func isSectionHeader(w []string) (string, bool) {
	if len(w) > 3 && w[0] == "Disassembly" && w[1] == "of" && w[2] == "section" {
		return strings.ReplaceAll(w[3], ":", ""), true
	}
	return "", false
}

// isSymbolHeader matches "<hexaddr> <name>:".
func isSymbolHeader(w []string) (string, uint32, bool) {
	if len(w) != 2 {
		return "", 0, false
	}
	if !strings.HasPrefix(w[1], "<") || !strings.HasSuffix(w[1], ">:") {
		return "", 0, false
	}
	base, ok := ParseHex(w[0])
	if !ok {
		return "", 0, false
	}
	name := strings.TrimSuffix(strings.TrimPrefix(w[1], "<"), ">:")
	return name, base, true
}

// isInstruction matches "<hexaddr>: <word> <mnemonic> ...".
func isInstruction(w []string) (uint32, bool) {
	if len(w) < 3 || !strings.HasSuffix(w[0], ":") {
		return 0, false
	}
	return ParseHex(w[0])
}

// Ingest reads objdump disassembly text and records every symbol header
// and instruction line belonging to a section in scope.
func Ingest(r io.Reader, scope *SectionTable, opts IngestOptions) (*Listing, error) {
	ls := NewListing()

	var (
		section  string
		inScope  bool
		seenAny  bool
		symbol   string
		base     uint32
		skipped  int
		lineNo   int
		sections int
	)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lineNo++
		w := Fields(sc.Text())
		if len(w) == 0 {
			continue
		}

		if name, ok := isSectionHeader(w); ok {
			section, inScope = "", false
			if scope.Contains(name) {
				section, inScope = name, true
				seenAny = true
				sections++
			}
			continue
		}
		if !inScope {
			continue
		}

		if name, addr, ok := isSymbolHeader(w); ok {
			base, symbol = addr, name
			ls.Symbols[name] = addr
			ls.Lines = append(ls.Lines, Line{
				Address:  addr,
				Tokens:   w,
				Section:  section,
				Symbol:   symbol,
				IsSymbol: true,
			})
			continue
		}

		addr, ok := isInstruction(w)
		if !ok {
			skipped++
			continue
		}
		key := addr
		if opts.OrBase {
			key = base | addr
		}
		ls.Index[key] = len(ls.Lines)
		ls.Lines = append(ls.Lines, Line{
			Address:       addr,
			Tokens:        w,
			Section:       section,
			Symbol:        symbol,
			IsInstruction: true,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read disassembly at line %d: %w", lineNo, err)
	}
	if !seenAny {
		return nil, ErrNoSections
	}

	slog.Debug("Ingested disassembly",
		"lines", lineNo,
		"recorded", len(ls.Lines),
		"symbols", len(ls.Symbols),
		"sections", sections,
		"ignored", skipped)
	return ls, nil
}

// SectionHeaders lists the sections named by "Disassembly of section"
// headers in r, in order of first appearance.
func SectionHeaders(r io.Reader) ([]string, error) {
	var names []string
	seen := make(map[string]bool)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		name, ok := isSectionHeader(Fields(sc.Text()))
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read disassembly: %w", err)
	}
	return names, nil
}
