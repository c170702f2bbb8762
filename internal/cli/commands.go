package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"peersync/internal/node"
	"peersync/internal/peer"
	"peersync/internal/protocol"
	"peersync/internal/transfer"
	pkgcli "peersync/pkg/cli"
)

var rawArgs = map[string]string{pkgcli.RawArgs: "true"}

func createListPeersCommand(appCtx *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "lap",
		Short: "List active peers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := appCtx.requestContext(cmd.Context())
			defer cancel()

			peers, err := appCtx.Peer.ListPeers(ctx)
			if err != nil {
				return err
			}
			printList(cmd.OutOrStdout(), peers, protocol.ReplyNoActivePeers, plural(len(peers), "active peer"))
			return nil
		},
	}
}

func createListFilesCommand(appCtx *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "lpf",
		Short: "List published files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := appCtx.requestContext(cmd.Context())
			defer cancel()

			files, err := appCtx.Peer.ListFiles(ctx)
			if err != nil {
				return err
			}
			printList(cmd.OutOrStdout(), files, protocol.ReplyNoPublishedFiles, plural(len(files), "file")+" published")
			return nil
		},
	}
}

func createPublishCommand(appCtx *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:         "pub <filename>",
		Short:       "Publish a file from the share directory",
		Args:        cobra.ExactArgs(1),
		Annotations: rawArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := appCtx.requestContext(cmd.Context())
			defer cancel()

			if err := appCtx.Peer.Publish(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), protocol.ReplyPublished)
			return nil
		},
	}
}

func createUnpublishCommand(appCtx *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:         "unp <filename>",
		Short:       "Unpublish a file",
		Args:        cobra.ExactArgs(1),
		Annotations: rawArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := appCtx.requestContext(cmd.Context())
			defer cancel()

			err := appCtx.Peer.Unpublish(ctx, args[0])
			switch {
			case errors.Is(err, peer.ErrNotPublished):
				fmt.Fprintln(cmd.OutOrStdout(), protocol.ReplyUnpublishFailed)
			case err != nil:
				return err
			default:
				fmt.Fprintln(cmd.OutOrStdout(), protocol.ReplyUnpublished)
			}
			return nil
		},
	}
}

func createSearchCommand(appCtx *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:         "sch <substring>",
		Short:       "Search files published by other peers",
		Args:        cobra.ExactArgs(1),
		Annotations: rawArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := appCtx.requestContext(cmd.Context())
			defer cancel()

			files, err := appCtx.Peer.Search(ctx, args[0])
			if err != nil {
				return err
			}
			printList(cmd.OutOrStdout(), files, protocol.ReplyNoFilesFound, plural(len(files), "file")+" found")
			return nil
		},
	}
}

func createGetCommand(appCtx *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:         "get <filename>",
		Short:       "Download a file from a peer that published it",
		Args:        cobra.ExactArgs(1),
		Annotations: rawArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filename := args[0]
			out := cmd.OutOrStdout()

			res, err := appCtx.Peer.Get(cmd.Context(), filename)
			switch {
			case errors.Is(err, peer.ErrFileNotFound):
				fmt.Fprintln(out, protocol.ReplyFileNotFound)
			case errors.Is(err, peer.ErrNoActivePeer):
				fmt.Fprintln(out, protocol.ReplyNoActivePeerHasIt)
			case errors.Is(err, transfer.ErrEmptyTransfer):
				// a missing file and an empty one look the same on the wire
				fmt.Fprintf(out, "Failed to download %s from %s: the file is missing on the publisher or empty\n", filename, res.From)
			case err != nil && res.From != "":
				fmt.Fprintf(out, "Failed to download %s from %s\n", filename, res.From)
			case err != nil:
				return err
			default:
				fmt.Fprintf(out, "%s downloaded successfully from %s\n", filename, res.From)
			}
			return nil
		},
	}
}

func createHistoryCommand(appCtx *AppContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent uploads and downloads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			transfers, err := appCtx.Peer.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printTransfers(cmd.OutOrStdout(), transfers)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of transfers to show")

	return cmd
}

func createExitCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "xit",
		Aliases: []string{"exit", "quit"},
		Short:   "Leave PeerSync",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), Goodbye)
			return pkgcli.ErrExit
		},
	}
}

// errorMessage turns well-known errors into short user-facing text.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, peer.ErrNoResponse):
		return "Coordinator did not respond"
	case errors.Is(err, node.ErrFileNotInShare):
		return "File is not in the share directory"
	case errors.Is(err, peer.ErrInvalidFilename):
		return "Invalid filename"
	default:
		return err.Error()
	}
}
