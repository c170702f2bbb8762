package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"peersync/internal/history"
)

const (
	Welcome           = "Welcome to PeerSync!"
	AvailableCommands = "Available commands are: get, lap, lpf, pub, sch, unp, xit."
	AuthFailed        = "Authentication failed. Please try again."
	Goodbye           = "Goodbye."

	NoTransfers = "No transfers yet"
)

func plural(n int, word string) string {
	return fmt.Sprintf("%d %s(s)", n, word)
}

// printList prints "<header>:" and one item per line, or empty when there
// are no items.
func printList(w io.Writer, items []string, empty, header string) {
	if len(items) == 0 {
		fmt.Fprintln(w, empty)
		return
	}

	fmt.Fprintf(w, "%s:\n", header)
	for _, item := range items {
		fmt.Fprintln(w, item)
	}
}

func printTransfers(w io.Writer, transfers []history.Transfer) {
	if len(transfers) == 0 {
		fmt.Fprintln(w, NoTransfers)
		return
	}

	for _, t := range transfers {
		peer := t.Peer
		if peer == "" {
			peer = t.RemoteAddr
		}
		line := fmt.Sprintf("%s  %-8s  %-9s  %s  %s  %d B",
			t.StartedAt.Local().Format(time.DateTime),
			t.Direction, t.Status, t.Filename, peer, t.Bytes)
		if t.Error != "" {
			line += "  (" + t.Error + ")"
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
}
