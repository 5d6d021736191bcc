package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/bubbles/v2/spinner"
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/x/term"

	"elf2cpatch/internal/patch"
)

// stepDoneMsg stops the spinner once the wrapped call returns.
type stepDoneMsg struct{}

type progressModel struct {
	spinner spinner.Model
	label   string
	done    bool
}

func newProgressModel(label string) progressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))
	return progressModel{spinner: s, label: label}
}

func (m progressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stepDoneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m progressModel) View() string {
	if m.done {
		return ""
	}
	return fmt.Sprintf("%s %s", m.spinner.View(), m.label)
}

// withSpinner runs fn while a spinner labeled label is drawn on w.
func withSpinner(ctx context.Context, w io.Writer, label string, fn func() error) error {
	program := tea.NewProgram(
		newProgressModel(label),
		tea.WithOutput(w),
		tea.WithInput(nil),
		tea.WithContext(ctx),
	)

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		if _, err := program.Run(); err != nil {
			slog.Debug("Spinner stopped", "error", err)
		}
	}()

	err := fn()
	program.Send(stepDoneMsg{})
	<-finished
	return err
}

// spinningTool draws a spinner while objdump runs.
type spinningTool struct {
	patch.Disassembler
	w io.Writer
}

func (t spinningTool) CodeSections(ctx context.Context, file string) ([]string, error) {
	var sections []string
	err := withSpinner(ctx, t.w, "Reading section table of "+file, func() error {
		var err error
		sections, err = t.Disassembler.CodeSections(ctx, file)
		return err
	})
	return sections, err
}

func (t spinningTool) Disassemble(ctx context.Context, file, flag string) ([]byte, error) {
	var text []byte
	err := withSpinner(ctx, t.w, "Disassembling "+file, func() error {
		var err error
		text, err = t.Disassembler.Disassemble(ctx, file, flag)
		return err
	})
	return text, err
}

// progressTool wraps tool with a spinner when status goes to a terminal.
func progressTool(tool patch.Disassembler, status io.Writer, quiet bool) patch.Disassembler {
	if quiet {
		return tool
	}
	f, ok := status.(*os.File)
	if !ok || !term.IsTerminal(f.Fd()) {
		return tool
	}
	return spinningTool{Disassembler: tool, w: f}
}
