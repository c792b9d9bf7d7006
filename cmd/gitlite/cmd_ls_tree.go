package main

import (
	"fmt"

	"github.com/odvcencio/gitlite/pkg/repo"
	"github.com/spf13/cobra"
)

func newLsTreeCmd() *cobra.Command {
	var nameOnly bool

	cmd := &cobra.Command{
		Use:   "ls-tree [--name-only] <tree-ish>",
		Short: "List the entries of a tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			treeID, err := resolveTree(r, args[0])
			if err != nil {
				return err
			}
			tr, err := r.Store.ReadTree(treeID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, e := range tr.Entries {
				if nameOnly {
					fmt.Fprintln(out, e.Name)
					continue
				}
				fmt.Fprintf(out, "%s %s %s\t%s\n", displayMode(e.Mode), entryType(e.Mode), e.Hash, e.Name)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&nameOnly, "name-only", false, "list only entry names")
	return cmd
}
