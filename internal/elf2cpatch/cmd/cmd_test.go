package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elf2cpatch/internal/config"
	"elf2cpatch/internal/hypercall"
	"elf2cpatch/internal/patch"
	"elf2cpatch/internal/ui/colorize"
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

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
}

func prepareRoot(t *testing.T, args ...string) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	t.Setenv(config.EnvProfile, "")
	t.Setenv(colorize.EnvNoColor, "1")

	resetFlags(rootCmd)
	for _, c := range rootCmd.Commands() {
		resetFlags(c)
	}

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	return &out, &errOut
}

func runRoot(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	out, errOut := prepareRoot(t, args...)
	err := rootCmd.Execute()
	return out.String(), errOut.String(), err
}

func writeDump(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vmlinux.dis")
	require.NoError(t, os.WriteFile(path, []byte(kernelDump), 0o644))
	return path
}

func TestRootDisasm(t *testing.T) {
	out, _, err := runRoot(t, "--disasm", writeDump(t), "-q", "--no-color")
	require.NoError(t, err)
	assert.Equal(t, kernelPatch, out)
}

func TestRootStatusGoesToStderr(t *testing.T) {
	out, errOut, err := runRoot(t, "--disasm", writeDump(t), "--no-color", ".text")
	require.NoError(t, err)
	assert.Equal(t, "section,.text\n\t# wfi\n\twrite32,0xc0100000,0xef0c0000\n", out)
	assert.Contains(t, errOut, "Scanning")
	assert.Contains(t, errOut, "Wrote 1 patches")
}

func TestRootOutputAndStats(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "vmlinux.cpatch")
	out, _, err := runRoot(t, "--disasm", writeDump(t), "-o", dest, "--stats", "--no-color")
	require.NoError(t, err)

	script, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, kernelPatch, string(script))

	assert.Contains(t, out, "Wrote 3 patches")
	assert.Contains(t, out, "elf2cpatch statistics (arm32)")
	assert.Contains(t, out, "cpu_idle")
}

func TestRootKeepsOutputOnFailure(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "vmlinux.cpatch")
	require.NoError(t, os.WriteFile(dest, []byte(kernelPatch), 0o644))

	_, _, err := runRoot(t, "--disasm", filepath.Join(dir, "missing.dis"), "-o", dest, "-q")
	assert.ErrorIs(t, err, os.ErrNotExist)

	script, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, kernelPatch, string(script))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestExecuteExitCode(t *testing.T) {
	prepareRoot(t, "-q")
	assert.Equal(t, 1, execute())

	out, _ := prepareRoot(t, "--disasm", writeDump(t), "-q", "--no-color")
	assert.Equal(t, 0, execute())
	assert.Equal(t, kernelPatch, out.String())
}

func TestRootErrors(t *testing.T) {
	_, _, err := runRoot(t, "-q")
	assert.ErrorIs(t, err, patch.ErrNoInput)

	_, _, err = runRoot(t, "-q", "-p", "mips", "-f", "vmlinux")
	assert.ErrorIs(t, err, hypercall.ErrUnknownProfile)

	_, _, err = runRoot(t, "-q", "-p", "arm7a", "-f", "vmlinux")
	assert.ErrorIs(t, err, patch.ErrNoSectionsGiven)

	_, _, err = runRoot(t, "-q", "-f", "vmlinux", "--disasm", "vmlinux.dis")
	assert.Error(t, err)
}

func TestExplainTrapWord(t *testing.T) {
	t.Setenv(colorize.EnvNoColor, "1")
	p, err := hypercall.Lookup("arm32")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, explain(&buf, p, 0xef020000))
	assert.Contains(t, buf.String(), "ef020000  hypercall")
	assert.Contains(t, buf.String(), "id=0")

	buf.Reset()
	assert.ErrorIs(t, explain(&buf, p, 0xeff00000), hypercall.ErrUnknownHypercall)
}

func TestExplainSourceWord(t *testing.T) {
	t.Setenv(colorize.EnvNoColor, "1")
	p, err := hypercall.Lookup("arm32")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, explain(&buf, p, 0xe1a00001))
	assert.Contains(t, buf.String(), "e1a00001  mov")
	assert.Contains(t, buf.String(), "not sensitive")
}

func TestExplainCommand(t *testing.T) {
	out, _, err := runRoot(t, "explain", "0xef0c0000")
	require.NoError(t, err)
	assert.Contains(t, out, "hypercall wfi")

	_, _, err = runRoot(t, "explain", "zz")
	assert.Error(t, err)
}

func TestSourceTokens(t *testing.T) {
	assert.Equal(t,
		[]string{"0:", "e8dd7fff", "ldm", "sp,", "{r0,", "r1}^"},
		sourceTokens(0xe8dd7fff, "ldm sp, {r0,r1}^"))
	assert.Equal(t, []string{"0:", "e320f003", "wfi"}, sourceTokens(0xe320f003, "wfi"))
}

func TestCatalogMarkdown(t *testing.T) {
	doc := catalogMarkdown(hypercall.Profiles())
	for _, name := range hypercall.Names() {
		assert.Contains(t, doc, "# "+name+"\n")
	}
	assert.Contains(t, doc, "| mrs | `mrs` |")
	assert.Contains(t, doc, "`ldrt*`")
	assert.Contains(t, doc, "word `e1a00000`")
	assert.Contains(t, doc, "## rfe/srs condition")
	assert.Contains(t, doc, "- families: cps rfe mrs msr srs ldm stm ldrbt")
	assert.Contains(t, doc, "| subs | any | dp-reg |")
	assert.Contains(t, doc, "`wfi*`")
}

func TestProfilesCommand(t *testing.T) {
	out, _, err := runRoot(t, "profiles", "arm7a", "--no-color")
	require.NoError(t, err)
	assert.Contains(t, out, "# arm7a")
	assert.NotContains(t, out, "# arm32\n")

	_, _, err = runRoot(t, "profiles", "mips")
	assert.ErrorIs(t, err, hypercall.ErrUnknownProfile)
}

func TestSchemaCommand(t *testing.T) {
	out, _, err := runRoot(t, "schema")
	require.NoError(t, err)
	assert.Contains(t, out, `"crossCompile"`)
}
