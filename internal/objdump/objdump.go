// Package objdump runs the cross toolchain's objdump and parses its
// section table. Disassembly text itself is consumed by package disasm.
package objdump

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// ErrNoCodeSections is returned when the section table lists no code section.
var ErrNoCodeSections = errors.New("did not find code sections to scan")

// Tool invokes objdump. Prefix is prepended to the binary name, the same
// way CROSS_COMPILE is used by kernel builds.
type Tool struct {
	Prefix string
	Binary string // defaults to "objdump"
}

// FromEnv returns a Tool using the CROSS_COMPILE environment variable.
func FromEnv() Tool {
	return Tool{Prefix: os.Getenv("CROSS_COMPILE")}
}

// Path returns the executable name.
func (t Tool) Path() string {
	bin := t.Binary
	if bin == "" {
		bin = "objdump"
	}
	return t.Prefix + bin
}

// Output runs objdump with args and returns its standard output.
func (t Tool) Output(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, t.Path(), args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	slog.Debug("Running disassembler", "cmd", cmd.String())
	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%s %s: %w: %s", t.Path(), strings.Join(args, " "), err, msg)
		}
		return nil, fmt.Errorf("%s %s: %w", t.Path(), strings.Join(args, " "), err)
	}
	return out, nil
}

// Disassemble returns the disassembly of file. flag is "-d" (code
// sections only) or "-D" (all sections).
func (t Tool) Disassemble(ctx context.Context, file, flag string) ([]byte, error) {
	return t.Output(ctx, flag, file)
}

// CodeSections runs "objdump -h" on file and returns the code sections.
func (t Tool) CodeSections(ctx context.Context, file string) ([]string, error) {
	out, err := t.Output(ctx, "-h", file)
	if err != nil {
		return nil, err
	}
	return ParseCodeSections(bytes.NewReader(out))
}

// Section is one entry of the "objdump -h" table.
type Section struct {
	Name  string
	Flags []string
}

// HasFlag reports whether the section carries flag.
func (s Section) HasFlag(flag string) bool {
	for _, f := range s.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// IsCode reports whether the section should be scanned: flagged CODE and
// not a notes or debug info section.
func (s Section) IsCode() bool {
	return s.HasFlag("CODE") &&
		!strings.Contains(s.Name, ".notes") &&
		!strings.Contains(s.Name, ".info")
}

// ParseSections parses the table printed by "objdump -h". Each entry
// spans two lines: "idx name size vma lma off algn" then the flags.
func ParseSections(r io.Reader) ([]Section, error) {
	var (
		secs    []Section
		started bool
		pending *Section
	)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		w := strings.Fields(sc.Text())
		if len(w) == 0 {
			continue
		}
		if !started {
			if w[0] == "Sections:" {
				started = true
				// column header
				if !sc.Scan() {
					break
				}
			}
			continue
		}
		if pending == nil {
			if len(w) < 2 {
				continue
			}
			pending = &Section{Name: w[1]}
			continue
		}
		for _, f := range w {
			if f = strings.TrimSuffix(f, ","); f != "" {
				pending.Flags = append(pending.Flags, f)
			}
		}
		secs = append(secs, *pending)
		pending = nil
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read section table: %w", err)
	}
	return secs, nil
}

// ParseCodeSections returns the names of the code sections in r.
func ParseCodeSections(r io.Reader) ([]string, error) {
	secs, err := ParseSections(r)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, s := range secs {
		if s.IsCode() {
			names = append(names, s.Name)
		}
	}
	if len(names) == 0 {
		return nil, ErrNoCodeSections
	}
	return names, nil
}
