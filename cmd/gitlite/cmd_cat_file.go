package main

import (
	"fmt"

	"github.com/odvcencio/gitlite/pkg/object"
	"github.com/odvcencio/gitlite/pkg/repo"
	"github.com/spf13/cobra"
)

func newCatFileCmd() *cobra.Command {
	var pretty, showType, showSize bool

	cmd := &cobra.Command{
		Use:   "cat-file (-p | -t | -s) <object>",
		Short: "Print an object's content, kind, or size",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			h, err := resolveObject(r, args[0])
			if err != nil {
				return err
			}
			objType, data, err := r.Store.Read(h)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case showType:
				fmt.Fprintln(out, objType)
			case showSize:
				fmt.Fprintln(out, len(data))
			case objType == object.TypeTree:
				tr, err := object.UnmarshalTree(data)
				if err != nil {
					return fmt.Errorf("cat-file: %w", err)
				}
				for _, e := range tr.Entries {
					fmt.Fprintf(out, "%s %s %s\t%s\n", displayMode(e.Mode), entryType(e.Mode), e.Hash, e.Name)
				}
			default:
				_, err = out.Write(data)
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&pretty, "pretty", "p", false, "pretty-print the object's content")
	cmd.Flags().BoolVarP(&showType, "type", "t", false, "show the object's kind")
	cmd.Flags().BoolVarP(&showSize, "size", "s", false, "show the object's size in bytes")
	cmd.MarkFlagsMutuallyExclusive("pretty", "type", "size")
	cmd.MarkFlagsOneRequired("pretty", "type", "size")
	return cmd
}
