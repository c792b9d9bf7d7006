package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/odvcencio/gitlite/pkg/object"
	"github.com/odvcencio/gitlite/pkg/repo"
	"github.com/spf13/cobra"
)

func newCommitTreeCmd() *cobra.Command {
	var parent string
	var message string

	cmd := &cobra.Command{
		Use:   "commit-tree <tree> [-p <parent>] [-m <message>]",
		Short: "Create a commit object for a tree",
		Long:  "Create a commit object for a tree and print its id. No ref is updated.\nWithout -m the message is read from stdin.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			tree, err := resolveTree(r, args[0])
			if err != nil {
				return err
			}
			var parentID object.Hash
			if strings.TrimSpace(parent) != "" {
				if parentID, err = resolveObject(r, parent); err != nil {
					return err
				}
			}
			if !cmd.Flags().Changed("message") {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("commit-tree: read message: %w", err)
				}
				message = string(data)
			}

			h, err := r.CommitTree(repo.CommitTreeOptions{
				Tree:     tree,
				Parent:   parentID,
				Message:  message,
				Fallback: fallbackIdentity(settings),
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}

	cmd.Flags().StringVarP(&parent, "parent", "p", "", "parent commit")
	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	return cmd
}
