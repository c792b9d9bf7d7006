package main

import (
	"fmt"
	"io"
	"os"

	"github.com/odvcencio/gitlite/pkg/object"
	"github.com/odvcencio/gitlite/pkg/repo"
	"github.com/spf13/cobra"
)

func newHashObjectCmd() *cobra.Command {
	var write bool
	var kind string

	cmd := &cobra.Command{
		Use:   "hash-object [-w] [-t <kind>] <file | ->",
		Short: "Compute an object id, optionally writing the object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			objType, err := object.ParseObjectType(kind)
			if err != nil {
				return err
			}

			var data []byte
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("hash-object: %w", err)
			}

			h := object.HashObject(objType, data)
			if write {
				r, err := repo.Open(".")
				if err != nil {
					return err
				}
				if h, err = r.Store.Write(objType, data); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&write, "write", "w", false, "write the object into the store")
	cmd.Flags().StringVarP(&kind, "type", "t", string(object.TypeBlob), "object kind")
	return cmd
}
