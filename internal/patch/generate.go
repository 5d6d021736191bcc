package patch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"elf2cpatch/internal/analysis"
	"elf2cpatch/internal/disasm"
	"elf2cpatch/internal/hypercall"
)

// ErrNoCode is returned when filtering leaves no instruction to scan.
var ErrNoCode = errors.New("no scannable code found")

// Result describes one generation run.
type Result struct {
	Listing  *disasm.Listing
	Records  []Record
	Filtered map[string]int
}

// Filters returns the filter chain the profile runs before
// classification.
func Filters(p *hypercall.Profile) *analysis.FilterChain {
	var fs []analysis.Filter
	if p.LiteralPool {
		fs = append(fs, analysis.LiteralPoolFilter{})
	}
	return analysis.NewFilterChain(fs...)
}

// Generate reads objdump text from r and writes the patch script for the
// sections in scope to w. stats may be nil.
func Generate(r io.Reader, w io.Writer, p *hypercall.Profile, scope *disasm.SectionTable, stats *analysis.Stats) (*Result, error) {
	ls, err := disasm.Ingest(r, scope, disasm.IngestOptions{OrBase: p.OrBase})
	if err != nil {
		return nil, err
	}

	res := &Result{Listing: ls}
	res.Filtered = Filters(p).Apply(ls)
	if ls.Instructions() == 0 {
		return nil, ErrNoCode
	}

	em := NewEmitter(w)
	for i := range ls.Lines {
		line := &ls.Lines[i]
		if !line.IsInstruction {
			continue
		}
		m, ok := p.Classify(line.Tokens)
		if !ok {
			continue
		}
		rec := Record{
			Address: line.Address,
			Word:    m.Word,
			Source:  m.Source,
			Comment: hypercall.Annotation(line.Tokens),
			Section: line.Section,
			Symbol:  line.Symbol,
			Family:  m.Family(),
		}
		if err := em.Emit(rec); err != nil {
			return nil, err
		}
		res.Records = append(res.Records, rec)
		if stats != nil {
			stats.Add(rec.Family, rec.Symbol)
		}
		if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
			slog.Debug("Patched instruction",
				"addr", fmt.Sprintf("0x%x", rec.Address),
				"insn", disasm.Decode(rec.Source).Text,
				"variant", m.Encoding.Name,
				"word", fmt.Sprintf("0x%08x", rec.Word))
		}
	}
	if err := em.Flush(); err != nil {
		return nil, err
	}

	if stats != nil {
		stats.Sections = scope.Names()
		stats.Lines = len(ls.Lines)
		stats.Instructions = ls.Instructions()
		for name, n := range res.Filtered {
			stats.Filtered[name] += n
		}
	}
	slog.Debug("Generated patch",
		"profile", p.Name,
		"records", len(res.Records),
		"instructions", ls.Instructions())
	return res, nil
}
