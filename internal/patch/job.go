package patch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"elf2cpatch/internal/analysis"
	"elf2cpatch/internal/disasm"
	"elf2cpatch/internal/hypercall"
)

var (
	// ErrNoInput is returned when neither a binary nor disassembly text is given.
	ErrNoInput = errors.New("no input ARM ELF32 file")
	// ErrNoSectionsGiven is returned when a profile needs explicit sections.
	ErrNoSectionsGiven = errors.New("no sections to scan")
)

// Disassembler produces objdump output for a binary.
type Disassembler interface {
	CodeSections(ctx context.Context, file string) ([]string, error)
	Disassemble(ctx context.Context, file, flag string) ([]byte, error)
}

// Job is one patch generation request.
type Job struct {
	Profile  *hypercall.Profile
	File     string   // binary handed to the disassembler
	Disasm   string   // pre-produced disassembly text, used instead of File
	Sections []string // explicit scope; empty means auto-detect
	Tool     Disassembler
}

// Scope resolves the sections to scan. text is the disassembly when it
// comes from a file; auto-detection then takes every section it dumps.
func (j *Job) Scope(ctx context.Context, text []byte) (*disasm.SectionTable, error) {
	if len(j.Sections) > 0 {
		return disasm.NewSectionTable(j.Sections...), nil
	}
	if j.Profile.RequireSections {
		return nil, ErrNoSectionsGiven
	}
	if text != nil {
		names, err := disasm.SectionHeaders(bytes.NewReader(text))
		if err != nil {
			return nil, err
		}
		if len(names) == 0 {
			return nil, disasm.ErrNoSections
		}
		return disasm.NewSectionTable(names...), nil
	}
	names, err := j.Tool.CodeSections(ctx, j.File)
	if err != nil {
		return nil, fmt.Errorf("detect code sections: %w", err)
	}
	slog.Debug("Detected code sections", "sections", names)
	return disasm.NewSectionTable(names...), nil
}

func (j *Job) text(ctx context.Context) ([]byte, error) {
	if j.Disasm != "" {
		b, err := os.ReadFile(j.Disasm)
		if err != nil {
			return nil, fmt.Errorf("read disassembly: %w", err)
		}
		return b, nil
	}
	b, err := j.Tool.Disassemble(ctx, j.File, j.Profile.DumpFlag)
	if err != nil {
		return nil, fmt.Errorf("disassemble %s: %w", j.File, err)
	}
	return b, nil
}

// Run resolves the scope, obtains the disassembly and writes the patch
// script to w.
func (j *Job) Run(ctx context.Context, w io.Writer, stats *analysis.Stats) (*Result, error) {
	if j.File == "" && j.Disasm == "" {
		return nil, ErrNoInput
	}
	if j.Profile == nil {
		p, err := hypercall.Lookup(hypercall.DefaultProfile)
		if err != nil {
			return nil, err
		}
		j.Profile = p
	}

	var (
		scope *disasm.SectionTable
		text  []byte
		err   error
	)
	if j.Disasm == "" {
		// scope first, so a missing section list fails before objdump runs
		if scope, err = j.Scope(ctx, nil); err != nil {
			return nil, err
		}
		if text, err = j.text(ctx); err != nil {
			return nil, err
		}
	} else {
		if text, err = j.text(ctx); err != nil {
			return nil, err
		}
		if scope, err = j.Scope(ctx, text); err != nil {
			return nil, err
		}
	}

	slog.Debug("Scanning", "profile", j.Profile.Name, "sections", scope.Names(), "bytes", len(text))
	return Generate(bytes.NewReader(text), w, j.Profile, scope, stats)
}
