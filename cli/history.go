package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/blixt/nexus/conversation"
)

func (a *app) historyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Manage saved conversations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List conversations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			book, err := a.book()
			if err != nil {
				return err
			}
			printConversations(cmd.OutOrStdout(), book.All(), "")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Print every message of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			book, err := a.book()
			if err != nil {
				return err
			}
			c, ok := book.Get(args[0])
			if !ok {
				return fmt.Errorf("%w: %s", conversation.ErrNotFound, args[0])
			}
			printConversation(cmd.OutOrStdout(), c, a.cfg.ShowThinking)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete conversations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			book, err := a.book()
			if err != nil {
				return err
			}
			for _, id := range args {
				if err := book.Delete(id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", id)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete every conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			book, err := a.book()
			if err != nil {
				return err
			}
			n := len(book.All())
			if err := book.DeleteAll(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d conversations.\n", n)
			return nil
		},
	})
	return cmd
}

// printConversations prints one line per conversation, marking activeID.
func printConversations(out io.Writer, conversations []conversation.Conversation, activeID string) {
	if len(conversations) == 0 {
		fmt.Fprintln(out, "No conversations yet.")
		return
	}
	now := time.Now()
	for _, c := range conversations {
		marker := " "
		if c.ID == activeID {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s  %-10s  %-8s  %3d  %s\n", marker, c.ID, conversation.RelativeDate(c.LastActivity, now), c.Model, len(c.Messages), c.Title)
	}
}
