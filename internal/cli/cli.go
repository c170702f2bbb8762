// Package cli is the PeerSync peer shell: the lap, lpf, pub, unp, sch, get
// and xit commands on top of an interactive terminal.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"peersync/internal/peer"
	pkgcli "peersync/pkg/cli"
)

const (
	Prompt      = "> "
	maxAttempts = 3
)

var ErrTooManyAttempts = errors.New("too many failed login attempts")

func NewRootCommand(appCtx *AppContext) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "peersync",
		Short: "PeerSync peer shell",
	}

	rootCmd.AddCommand(
		createGetCommand(appCtx),
		createListPeersCommand(appCtx),
		createListFilesCommand(appCtx),
		createPublishCommand(appCtx),
		createSearchCommand(appCtx),
		createUnpublishCommand(appCtx),
		createHistoryCommand(appCtx),
		createExitCommand(),
	)

	for _, cmd := range rootCmd.Commands() {
		wrapErrors(cmd)
	}

	return rootCmd
}

func wrapErrors(cmd *cobra.Command) {
	run := cmd.RunE
	if run == nil {
		return
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		err := run(cmd, args)
		if err == nil || errors.Is(err, pkgcli.ErrExit) {
			return err
		}
		return errors.New(errorMessage(err))
	}
}

// Authenticator logs a peer in with a username and password.
type Authenticator interface {
	Login(ctx context.Context, username, password string) error
}

// LineReader is the part of the terminal the login flow uses.
type LineReader interface {
	Out() io.Writer
	Prompt(prompt string) (string, error)
	Password(prompt string) (string, error)
}

// Login greets the user and asks for credentials until the coordinator
// accepts them. Preset credentials are tried first, without prompting.
func Login(ctx context.Context, auth Authenticator, in LineReader, username, password string) (string, error) {
	out := in.Out()
	fmt.Fprintln(out, Welcome)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 || username == "" || password == "" {
			var err error
			if username, err = in.Prompt("Username: "); err != nil {
				return "", err
			}
			if password, err = in.Password("Password: "); err != nil {
				return "", err
			}
		}

		err := auth.Login(ctx, username, password)
		switch {
		case err == nil:
			fmt.Fprintln(out, AvailableCommands)
			return username, nil
		case errors.Is(err, peer.ErrAuthRejected):
			fmt.Fprintln(out, AuthFailed)
		default:
			return "", err
		}
	}

	return "", ErrTooManyAttempts
}
