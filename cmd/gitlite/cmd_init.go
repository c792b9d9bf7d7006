package main

import (
	"fmt"
	"path/filepath"

	"github.com/odvcencio/gitlite/pkg/repo"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	var branch string
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Create an empty repository",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) == 1 {
				path = args[0]
			}
			r, err := repo.Init(path)
			if err != nil {
				return err
			}
			if branch != "" {
				if err := r.SetHead("refs/heads/" + branch); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "initialized empty repository in %s%c\n", r.GitDir, filepath.Separator)
			return nil
		},
	}
	cmd.Flags().StringVarP(&branch, "initial-branch", "b", "", "name HEAD's unborn branch (default main)")
	return cmd
}
