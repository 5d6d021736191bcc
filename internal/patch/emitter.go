// Package patch turns classified disassembly into a cpatch script.
package patch

import (
	"bufio"
	"fmt"
	"io"
)

// Record is one instruction to overwrite.
type Record struct {
	Address uint32
	Word    uint32
	Source  uint32
	Comment string
	Section string
	Symbol  string
	Family  string
}

// Lines returns the script lines for r given the section of the
// previously emitted record, and the section to carry to the next one.
func (r Record) Lines(prev string, first bool) (string, []string) {
	var out []string
	if first || r.Section != prev {
		out = append(out, "section,"+r.Section)
	}
	out = append(out,
		"\t# "+r.Comment,
		fmt.Sprintf("\twrite32,0x%x,0x%08x", r.Address, r.Word),
	)
	return r.Section, out
}

// Emitter writes records as a fold over the record stream, carrying the
// previous section between calls.
type Emitter struct {
	w       *bufio.Writer
	section string
	count   int
}

// NewEmitter returns an Emitter writing to w.
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{w: bufio.NewWriter(w)}
}

// Emit writes one record.
func (e *Emitter) Emit(r Record) error {
	var lines []string
	e.section, lines = r.Lines(e.section, e.count == 0)
	for _, l := range lines {
		if _, err := e.w.WriteString(l + "\n"); err != nil {
			return fmt.Errorf("write patch: %w", err)
		}
	}
	e.count++
	return nil
}

// Count returns the number of records emitted so far.
func (e *Emitter) Count() int {
	return e.count
}

// Flush writes buffered output.
func (e *Emitter) Flush() error {
	if err := e.w.Flush(); err != nil {
		return fmt.Errorf("flush patch: %w", err)
	}
	return nil
}
