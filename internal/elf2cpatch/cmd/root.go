package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"elf2cpatch/internal/analysis"
	"elf2cpatch/internal/config"
	"elf2cpatch/internal/elf2cpatch/log"
	"elf2cpatch/internal/hypercall"
	"elf2cpatch/internal/objdump"
	"elf2cpatch/internal/patch"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func init() {
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	rootCmd.Flags().BoolP("help", "h", false, "Help")
	rootCmd.Flags().StringP("file", "f", "", "Input ARM ELF32 file")
	rootCmd.Flags().StringP("profile", "p", "", "Instruction profile: arm32, arm7a or armv7a")
	rootCmd.Flags().BoolP("quiet", "q", false, "Don't print status messages")
	rootCmd.Flags().StringP("output", "o", "", "Write the patch script to a file instead of stdout")
	rootCmd.Flags().String("disasm", "", "Read objdump output from a file instead of running objdump")
	rootCmd.Flags().Bool("stats", false, "Print per-family and per-symbol counts")
}

var rootCmd = &cobra.Command{
	Use:   "elf2cpatch -f FILE [section...]",
	Short: "Generate a cpatch script for an ARM guest kernel",
	Long: `elf2cpatch scans the disassembly of an ARM guest kernel for sensitive
instructions and writes a cpatch script that replaces each of them with a
hypercall trap word understood by the hypervisor.`,
	Example: `
# Patch every code section of a kernel
elf2cpatch -f vmlinux > vmlinux.cpatch

# Use the ARMv7-A catalog on explicit sections
elf2cpatch -p arm7a -f vmlinux .head.text .text .init.text

# Work from a saved disassembly and show counts
elf2cpatch --disasm vmlinux.dis --stats -o vmlinux.cpatch
  `,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug, _ := cmd.Flags().GetBool("debug")
		log.Setup(debug)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, args)
		if err != nil {
			return err
		}
		tool := objdump.FromEnv()
		slog.Debug("Using objdump", "path", tool.Path(), "cross_compile", cfg.CrossCompile)
		return run(cmd.Context(), cmd, cfg, tool)
	},
}

// loadConfig merges flags over the environment defaults.
func loadConfig(cmd *cobra.Command, args []string) (config.Config, error) {
	cfg := config.FromEnv()

	cfg.File, _ = cmd.Flags().GetString("file")
	cfg.Disasm, _ = cmd.Flags().GetString("disasm")
	cfg.Output, _ = cmd.Flags().GetString("output")
	cfg.Quiet, _ = cmd.Flags().GetBool("quiet")
	cfg.Stats, _ = cmd.Flags().GetBool("stats")
	cfg.Debug, _ = cmd.Flags().GetBool("debug")
	if profile, _ := cmd.Flags().GetString("profile"); profile != "" {
		cfg.Profile = profile
	}
	if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
		cfg.NoColor = true
	}
	cfg.Sections = args

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func run(ctx context.Context, cmd *cobra.Command, cfg config.Config, tool patch.Disassembler) error {
	if ctx == nil {
		ctx = context.Background()
	}
	profile, err := hypercall.Lookup(cfg.Profile)
	if err != nil {
		return err
	}

	// the script owns stdout unless it goes to a file
	out := cmd.OutOrStdout()
	status := cmd.ErrOrStderr()
	var script *outputFile
	if cfg.Output != "" {
		if script, err = createOutput(cfg.Output); err != nil {
			return err
		}
		defer script.Discard()
		out = script
		status = cmd.OutOrStdout()
	}
	if cfg.Quiet {
		status = io.Discard
	}

	input := cfg.File
	if cfg.Disasm != "" {
		input = cfg.Disasm
	}
	printStatus(status, cfg.NoColor, "Scanning %s with profile %s", input, profile.Name)

	job := &patch.Job{
		Profile:  profile,
		File:     cfg.File,
		Disasm:   cfg.Disasm,
		Sections: cfg.Sections,
		Tool:     progressTool(tool, status, cfg.Quiet),
	}
	stats := analysis.NewStats(profile.Name)
	res, err := job.Run(ctx, out, stats)
	if err != nil {
		slog.Debug("Patch generation failed", "error", err)
		return err
	}
	if script != nil {
		if err := script.Commit(); err != nil {
			return err
		}
	}

	printStatus(status, cfg.NoColor, "Wrote %d patches for %d instructions", len(res.Records), stats.Instructions)
	if cfg.Stats {
		printStats(status, cfg.NoColor, stats)
		symbols, hits, _ := analysis.GetDemangleCacheStats()
		slog.Debug("Demangle cache", "symbols", symbols, "hits", hits)
	}
	return nil
}

func printStatus(w io.Writer, plain bool, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if !plain {
		msg = statusStyle.Render(msg)
	}
	fmt.Fprintln(w, msg)
}

func printStats(w io.Writer, plain bool, stats *analysis.Stats) {
	header := fmt.Sprintf("elf2cpatch statistics (%s)", stats.Profile)
	if !plain {
		header = headerStyle.Render(header)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, header)
	fmt.Fprintln(w)
	fmt.Fprint(w, stats.String())
}

func Execute() {
	os.Exit(execute())
}

// execute runs the root command and returns the process exit code. The
// log is closed before returning so a failed run still flushes it.
func execute() int {
	defer log.Close()

	// Bypass fang when output is being piped so the patch script stays plain
	plain := !term.IsTerminal(os.Stdout.Fd())

	if plain {
		if err := rootCmd.Execute(); err != nil {
			return 1
		}
	} else {
		if err := fang.Execute(
			context.Background(),
			rootCmd,
			fang.WithNotifySignal(os.Interrupt),
		); err != nil {
			return 1
		}
	}
	return 0
}
