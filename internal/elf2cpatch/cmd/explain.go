package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"elf2cpatch/internal/disasm"
	"elf2cpatch/internal/hypercall"
	"elf2cpatch/internal/ui/colorize"
)

var explainCmd = &cobra.Command{
	Use:   "explain <word>...",
	Short: "Decode trap words and preview replacements",
	Long: `Explain decodes hexadecimal words. Hypercall trap words are taken apart the
way the hypervisor's handler does it; any other word is disassembled and,
when the profile catalogs it, shown with the trap word it would become.`,
	Example: `
# Decode a trap word from a cpatch script
elf2cpatch explain 0xef020000

# Preview what the ARMv7-A catalog does with an instruction
elf2cpatch explain -p arm7a e8dd7fff
  `,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("profile")
		if name == "" {
			name = hypercall.DefaultProfile
		}
		profile, err := hypercall.Lookup(name)
		if err != nil {
			return err
		}
		if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
			os.Setenv(colorize.EnvNoColor, "1")
		}

		var errs []error
		for _, arg := range args {
			word, ok := disasm.ParseHex(arg)
			if !ok {
				errs = append(errs, fmt.Errorf("invalid word %q", arg))
				continue
			}
			if err := explain(cmd.OutOrStdout(), profile, word); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	},
}

func init() {
	explainCmd.Flags().StringP("profile", "p", "", "Instruction profile: arm32, arm7a or armv7a")
	rootCmd.AddCommand(explainCmd)
}

// explain writes one word's description to w.
func explain(w io.Writer, profile *hypercall.Profile, word uint32) error {
	if hypercall.IsHypercall(word) {
		d, err := profile.Decode(word)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%08x  hypercall %s\n", word, d)
		fmt.Fprintf(w, "          %s\n", d.Rule.Summary)
		return nil
	}

	inst := disasm.Decode(word)
	fmt.Fprintln(w, colorize.Word(word, inst.Text))
	if !inst.Valid {
		return nil
	}
	m, ok := profile.Classify(sourceTokens(word, inst.Text))
	if !ok {
		fmt.Fprintln(w, "          not sensitive")
		return nil
	}
	if m.Encoding.Replace {
		fmt.Fprintf(w, "          -> %08x (%s, replaced)\n", m.Word, m.Family())
		return nil
	}
	d, err := profile.Decode(m.Word)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "          -> %08x %s\n", m.Word, d)
	return nil
}

// sourceTokens lays out a decoded instruction the way an objdump line
// tokenizes: address, raw word, mnemonic, operands.
func sourceTokens(word uint32, text string) []string {
	tokens := []string{"0:", fmt.Sprintf("%08x", word)}
	mnemonic, operands, _ := strings.Cut(text, " ")
	tokens = append(tokens, strings.ToLower(mnemonic))
	for _, op := range strings.Fields(strings.ReplaceAll(operands, ",", ", ")) {
		tokens = append(tokens, op)
	}
	return tokens
}
