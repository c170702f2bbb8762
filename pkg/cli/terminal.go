// Package cli runs a cobra command tree as an interactive shell with line
// editing, history and tab completion.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

// ErrExit is returned by a command to end the shell.
var ErrExit = errors.New("exit")

// RawArgs marks a command whose argument is the rest of the line, spaces
// included, instead of whitespace-separated fields.
const RawArgs = "cli.raw_args"

type AutoCompleteTerminal struct {
	RootCommand *cobra.Command
	term        *term.Terminal
	prompt      string
	ctx         context.Context
}

func NewAutoCompleteTerminal(rootCmd *cobra.Command, rw io.ReadWriter, prompt string) *AutoCompleteTerminal {
	t := &AutoCompleteTerminal{
		RootCommand: rootCmd,
		term:        term.NewTerminal(rw, prompt),
		prompt:      prompt,
	}
	t.term.AutoCompleteCallback = t.handleAutocomplete

	rootCmd.SetOut(t.term)
	rootCmd.SetErr(t.term)
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	return t
}

// Out is the writer commands print to.
func (t *AutoCompleteTerminal) Out() io.Writer {
	return t.term
}

// Prompt reads one line with a temporary prompt.
func (t *AutoCompleteTerminal) Prompt(prompt string) (string, error) {
	t.term.SetPrompt(prompt)
	defer t.term.SetPrompt(t.prompt)

	line, err := t.term.ReadLine()
	return strings.TrimSpace(line), err
}

// Password reads one line without echo.
func (t *AutoCompleteTerminal) Password(prompt string) (string, error) {
	return t.term.ReadPassword(prompt)
}

// Start reads and executes lines until input ends, a command returns
// ErrExit, or ctx is done before the next line.
func (t *AutoCompleteTerminal) Start(ctx context.Context) error {
	t.ctx = ctx
	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := t.term.ReadLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if err := t.Execute(line); errors.Is(err, ErrExit) {
			return nil
		}
	}
}

// Execute runs one command line. Errors other than ErrExit are printed.
func (t *AutoCompleteTerminal) Execute(line string) error {
	args := t.splitLine(line)
	if len(args) == 0 {
		return nil
	}

	if cmd, _, err := t.RootCommand.Find(args); err == nil {
		resetFlags(cmd.Flags())
	}

	ctx := t.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	t.RootCommand.SetArgs(args)
	err := t.RootCommand.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, ErrExit) {
		fmt.Fprintln(t.term, err)
	}
	return err
}

func (t *AutoCompleteTerminal) splitLine(line string) []string {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	name, rest, _ := strings.Cut(line, " ")
	cmd, _, err := t.RootCommand.Find([]string{name})
	if err == nil && cmd != t.RootCommand && cmd.Annotations[RawArgs] == "true" {
		args := []string{name}
		if rest = strings.TrimSpace(rest); rest != "" {
			args = append(args, rest)
		}
		return args
	}
	return strings.Fields(line)
}

// flag values survive between Execute calls; every line starts from defaults
func resetFlags(fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	})
}

func (t *AutoCompleteTerminal) handleAutocomplete(line string, pos int, key rune) (string, int, bool) {
	if key != '\t' || strings.Contains(line, " ") {
		return "", 0, false
	}

	completions := t.getCompletions(line)
	switch len(completions) {
	case 0:
		return "", 0, false
	case 1:
		newLine := completions[0] + " "
		return newLine, len(newLine), true
	default:
		prefix := commonPrefix(completions)
		if len(prefix) <= len(line) {
			return "", 0, false
		}
		return prefix, len(prefix), true
	}
}

func (t *AutoCompleteTerminal) getCompletions(prefix string) []string {
	var names []string
	for _, cmd := range t.RootCommand.Commands() {
		if cmd.Hidden || !cmd.IsAvailableCommand() && cmd.Name() != "help" {
			continue
		}
		if strings.HasPrefix(cmd.Name(), prefix) {
			names = append(names, cmd.Name())
		}
	}
	sort.Strings(names)
	return names
}

func commonPrefix(items []string) string {
	prefix := items[0]
	for _, s := range items[1:] {
		for !strings.HasPrefix(s, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	return prefix
}

// MakeRaw puts f into raw mode when it is a terminal and returns a function
// restoring the previous state.
func MakeRaw(f *os.File) (func(), error) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return func() {}, nil
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	return func() { term.Restore(fd, oldState) }, nil
}
