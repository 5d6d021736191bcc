package patch

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elf2cpatch/internal/analysis"
	"elf2cpatch/internal/disasm"
	"elf2cpatch/internal/hypercall"
)

const kernelDump = `
vmlinux:     file format elf32-littlearm


Disassembly of section .head.text:

c0008000 <stext>:
c0008000:	e10f9000 	mrs	r9, CPSR
c0008004:	e1a00001 	mov	r0, r1
c0008008:	f10c0080 	cpsid	i

Disassembly of section .text:

c0100000 <cpu_idle>:
c0100000:	e320f003 	wfi
c0100004:	e12fff1e 	bx	lr
`

const kernelPatch = "section,.head.text\n" +
	"\t# mrs r9, CPSR\n" +
	"\twrite32,0xc0008000,0xef032000\n" +
	"\t# cpsid i\n" +
	"\twrite32,0xc0008008,0xef019000\n" +
	"section,.text\n" +
	"\t# wfi\n" +
	"\twrite32,0xc0100000,0xef0c0000\n"

func profile(t *testing.T, name string) *hypercall.Profile {
	t.Helper()
	p, err := hypercall.Lookup(name)
	require.NoError(t, err)
	return p
}

func TestEmitter(t *testing.T) {
	var buf bytes.Buffer
	em := NewEmitter(&buf)
	recs := []Record{
		{Address: 0x8000, Word: 0xef020000, Comment: "mrs r0, cpsr", Section: ".text"},
		{Address: 0x8004, Word: 0xef0c0000, Comment: "wfi", Section: ".text"},
		{Address: 0x9000, Word: 0xef019000, Comment: "cpsid i", Section: ".init.text"},
		{Address: 0xa000, Word: 0xef0c0000, Comment: "wfi", Section: ".text"},
	}
	for _, r := range recs {
		require.NoError(t, em.Emit(r))
	}
	require.NoError(t, em.Flush())
	assert.Equal(t, 4, em.Count())

	want := "section,.text\n" +
		"\t# mrs r0, cpsr\n" +
		"\twrite32,0x8000,0xef020000\n" +
		"\t# wfi\n" +
		"\twrite32,0x8004,0xef0c0000\n" +
		"section,.init.text\n" +
		"\t# cpsid i\n" +
		"\twrite32,0x9000,0xef019000\n" +
		"section,.text\n" +
		"\t# wfi\n" +
		"\twrite32,0xa000,0xef0c0000\n"
	assert.Equal(t, want, buf.String())
}

func TestEmitterFirstRecordWithoutSection(t *testing.T) {
	var buf bytes.Buffer
	em := NewEmitter(&buf)
	require.NoError(t, em.Emit(Record{Address: 4, Word: 1, Comment: "x"}))
	require.NoError(t, em.Flush())
	assert.True(t, strings.HasPrefix(buf.String(), "section,\n"))
}

func TestGenerate(t *testing.T) {
	var buf bytes.Buffer
	stats := analysis.NewStats("arm32")
	scope := disasm.NewSectionTable(".head.text", ".text")

	res, err := Generate(strings.NewReader(kernelDump), &buf, profile(t, "arm32"), scope, stats)
	require.NoError(t, err)
	assert.Equal(t, kernelPatch, buf.String())

	require.Len(t, res.Records, 3)
	assert.Equal(t, "stext", res.Records[0].Symbol)
	assert.Equal(t, "cpu_idle", res.Records[2].Symbol)
	assert.Equal(t, 1, stats.Family("mrs"))
	assert.Equal(t, 3, stats.Records)
	assert.Equal(t, []string{".head.text", ".text"}, stats.Sections)
}

func TestGenerateWorkedExample(t *testing.T) {
	dump := "Disassembly of section .text:\n" +
		"00008000 <f>:\n" +
		"    8000:\te10f0000 \tmrs\tr0, cpsr\n" +
		"    8004:\te1a00001 \tmov\tr0, r1\n"
	var buf bytes.Buffer
	_, err := Generate(strings.NewReader(dump), &buf, profile(t, "arm32"), disasm.NewSectionTable(".text"), nil)
	require.NoError(t, err)
	assert.Equal(t, "section,.text\n\t# mrs r0, cpsr\n\twrite32,0x8000,0xef020000\n", buf.String())
}

// Every address in the output belongs to a valid in-scope line, and each
// run of same-section records gets exactly one marker.
func TestGenerateSectionGrouping(t *testing.T) {
	var buf bytes.Buffer
	scope := disasm.NewSectionTable(".text")
	res, err := Generate(strings.NewReader(kernelDump), &buf, profile(t, "arm32"), scope, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(buf.String(), "section,"))
	for _, r := range res.Records {
		assert.Equal(t, ".text", r.Section)
		n, ok := res.Listing.LineAt(r.Address)
		require.True(t, ok)
		assert.True(t, res.Listing.Lines[n].IsInstruction)
	}
}

func TestGenerateLiteralPool(t *testing.T) {
	dump := `
Disassembly of section .text:

00008000 <func>:
    8000:	e59f0004 	ldr	r0, [pc, #4]	; 800c <func+0xc>
    8004:	e10f1000 	mrs	r1, CPSR
    8008:	e12fff1e 	bx	lr
    800c:	e10f0000 	mrs	r0, CPSR
`
	var buf bytes.Buffer
	stats := analysis.NewStats("arm7a")
	res, err := Generate(strings.NewReader(dump), &buf, profile(t, "arm7a"), disasm.NewSectionTable(".text"), stats)
	require.NoError(t, err)

	require.Len(t, res.Records, 1)
	assert.Equal(t, uint32(0x8004), res.Records[0].Address)
	assert.NotContains(t, buf.String(), "0x800c")
	assert.Equal(t, 1, res.Filtered["literal-pool"])
	assert.Equal(t, 1, stats.Filtered["literal-pool"])

	// the same words pass through when the profile does not filter pools
	buf.Reset()
	res, err = Generate(strings.NewReader(dump), &buf, profile(t, "armv7a"), disasm.NewSectionTable(".text"), nil)
	require.NoError(t, err)
	assert.Len(t, res.Records, 2)
}

func TestGenerateErrors(t *testing.T) {
	var buf bytes.Buffer
	_, err := Generate(strings.NewReader(kernelDump), &buf, profile(t, "arm32"), disasm.NewSectionTable(".init.text"), nil)
	assert.ErrorIs(t, err, disasm.ErrNoSections)

	empty := "Disassembly of section .text:\n\n00008000 <f>:\n"
	_, err = Generate(strings.NewReader(empty), &buf, profile(t, "arm32"), disasm.NewSectionTable(".text"), nil)
	assert.ErrorIs(t, err, ErrNoCode)
	assert.Empty(t, buf.String())
}

type fakeTool struct {
	sections []string
	text     string
	flags    []string
	err      error
}

func (f *fakeTool) CodeSections(ctx context.Context, file string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.sections, nil
}

func (f *fakeTool) Disassemble(ctx context.Context, file, flag string) ([]byte, error) {
	f.flags = append(f.flags, flag)
	return []byte(f.text), nil
}

func TestJobAutoDetect(t *testing.T) {
	tool := &fakeTool{sections: []string{".head.text", ".text"}, text: kernelDump}
	job := &Job{File: "vmlinux", Tool: tool}

	var buf bytes.Buffer
	_, err := job.Run(context.Background(), &buf, nil)
	require.NoError(t, err)
	assert.Equal(t, kernelPatch, buf.String())
	assert.Equal(t, []string{"-d"}, tool.flags)
	assert.Equal(t, hypercall.DefaultProfile, job.Profile.Name)
}

func TestJobExplicitSections(t *testing.T) {
	tool := &fakeTool{text: kernelDump}
	job := &Job{Profile: profile(t, "arm7a"), File: "vmlinux", Sections: []string{".text"}, Tool: tool}

	var buf bytes.Buffer
	_, err := job.Run(context.Background(), &buf, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"-D"}, tool.flags)
	assert.NotContains(t, buf.String(), ".head.text")
}

func TestJobErrors(t *testing.T) {
	_, err := (&Job{Tool: &fakeTool{}}).Run(context.Background(), &bytes.Buffer{}, nil)
	assert.ErrorIs(t, err, ErrNoInput)

	tool := &fakeTool{text: kernelDump}
	_, err = (&Job{Profile: profile(t, "arm7a"), File: "vmlinux", Tool: tool}).Run(context.Background(), &bytes.Buffer{}, nil)
	assert.ErrorIs(t, err, ErrNoSectionsGiven)
	assert.Empty(t, tool.flags)

	boom := errors.New("boom")
	_, err = (&Job{File: "vmlinux", Tool: &fakeTool{err: boom}}).Run(context.Background(), &bytes.Buffer{}, nil)
	assert.ErrorIs(t, err, boom)
}

func TestJobDisasmFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vmlinux.dis")
	require.NoError(t, os.WriteFile(path, []byte(kernelDump), 0o644))

	job := &Job{Disasm: path}
	var buf bytes.Buffer
	_, err := job.Run(context.Background(), &buf, nil)
	require.NoError(t, err)
	assert.Equal(t, kernelPatch, buf.String())

	job = &Job{Disasm: filepath.Join(t.TempDir(), "missing.dis")}
	_, err = job.Run(context.Background(), &buf, nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
