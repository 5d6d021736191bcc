package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"elf2cpatch/internal/elf2cpatch/styles"
	"elf2cpatch/internal/hypercall"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles [name]",
	Short: "List the instruction catalogs",
	Long:  "List every profile's sensitive instruction families and their trap word encodings.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		list := hypercall.Profiles()
		if len(args) == 1 {
			p, err := hypercall.Lookup(args[0])
			if err != nil {
				return err
			}
			list = []*hypercall.Profile{p}
		}

		doc := catalogMarkdown(list)
		noColor, _ := cmd.Flags().GetBool("no-color")
		if noColor || !term.IsTerminal(os.Stdout.Fd()) {
			fmt.Fprint(cmd.OutOrStdout(), doc)
			return nil
		}

		width := 100
		if w, _, err := term.GetSize(os.Stdout.Fd()); err == nil && w > 0 {
			width = w
		}
		renderer, err := styles.MarkdownRenderer(width - 2)
		if err != nil {
			return fmt.Errorf("could not create markdown renderer: %w", err)
		}
		out, err := renderer.Render(doc)
		if err != nil {
			return fmt.Errorf("could not render catalog: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(profilesCmd)
}

// catalogMarkdown renders the profiles as a markdown document.
func catalogMarkdown(list []*hypercall.Profile) string {
	var b strings.Builder
	for i, p := range list {
		if i > 0 {
			b.WriteString("\n---\n\n")
		}
		fmt.Fprintf(&b, "# %s\n\n%s\n\n", p.Name, p.Description)
		fmt.Fprintf(&b, "- objdump flag: `%s`\n", p.DumpFlag)
		fmt.Fprintf(&b, "- sections: %s\n", onOff(p.RequireSections, "required on the command line", "auto-detected"))
		fmt.Fprintf(&b, "- literal-pool filter: %s\n", onOff(p.LiteralPool, "on", "off"))
		fmt.Fprintf(&b, "- symbol base in line index: %s\n", onOff(p.OrBase, "ORed", "no"))
		fmt.Fprintf(&b, "- families: %s\n\n", strings.Join(p.Families(), " "))

		b.WriteString("| family | mnemonics | variant | id | subid | cond | fields |\n")
		b.WriteString("|---|---|---|---|---|---|---|\n")
		for _, r := range p.Rules {
			mnemonics := ruleMnemonics(r)
			for _, e := range r.Variants {
				fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s |\n",
					r.Family, mnemonics, e.Name, variantID(e), variantSubID(e), e.Cond, fieldList(e))
			}
		}
		for _, r := range p.Rules {
			if r.GuardDoc != "" {
				fmt.Fprintf(&b, "\n> %s: %s\n", r.Family, r.GuardDoc)
			}
		}
	}

	if note := condNote(hypercall.Profiles()); note != "" {
		b.WriteString("\n---\n\n")
		b.WriteString(note)
	}
	return b.String()
}

// condNote lists the rfe and srs condition policies when profiles
// disagree on them.
func condNote(list []*hypercall.Profile) string {
	var rows []string
	policies := map[string]bool{}
	for _, p := range list {
		for _, r := range p.Rules {
			if r.Family != "rfe" && r.Family != "srs" {
				continue
			}
			cond := r.Variants[0].Cond.String()
			policies[cond] = true
			rows = append(rows, fmt.Sprintf("- %s %s: %s", p.Name, r.Family, cond))
		}
	}
	if len(policies) < 2 {
		return ""
	}
	return "## rfe/srs condition\n\nThe profiles disagree on the condition written into rfe and srs trap words:\n\n" +
		strings.Join(rows, "\n") + "\n"
}

func ruleMnemonics(r hypercall.Rule) string {
	switch r.Match.String() {
	case "any":
		return "any"
	case "prefix":
		return "`" + strings.Join(r.Mnemonics, "*` `") + "*`"
	default:
		return "`" + strings.Join(r.Mnemonics, "` `") + "`"
	}
}

func variantID(e hypercall.Encoding) string {
	if e.Replace {
		return "-"
	}
	return fmt.Sprint(e.ID)
}

func variantSubID(e hypercall.Encoding) string {
	if !e.HasSubID {
		return "-"
	}
	return fmt.Sprint(e.SubID)
}

func fieldList(e hypercall.Encoding) string {
	if e.Replace {
		return fmt.Sprintf("word `%08x`", e.Literal)
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f.Kind == hypercall.KindConst {
			parts = append(parts, fmt.Sprintf("%s=%d@%d", f.Name, f.Value, f.Dst))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s[%d:%d]@%d", f.Name, f.Src+f.Width-1, f.Src, f.Dst))
	}
	return strings.Join(parts, " ")
}

func onOff(on bool, yes, no string) string {
	if on {
		return yes
	}
	return no
}
