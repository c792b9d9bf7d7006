package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/odvcencio/gitlite/pkg/object"
	"github.com/odvcencio/gitlite/pkg/repo"
	"github.com/spf13/cobra"
)

func newUnpackObjectsCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "unpack-objects [-v] [pack-file]",
		Short: "Store every object of a pack file, reading stdin by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("unpack-objects: %w", err)
				}
				defer f.Close()
				in = f
			}
			data, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("unpack-objects: read pack: %w", err)
			}
			pack, err := object.ParsePack(data)
			if err != nil {
				return fmt.Errorf("unpack-objects: %w", err)
			}

			opts := object.UnpackOptions{BaseCacheSize: settings.Clone.BaseCacheSize}
			if verbose {
				errOut := cmd.ErrOrStderr()
				opts.Progress = func(done, total int) {
					if done == total || done%256 == 0 {
						fmt.Fprintf(errOut, "unpacking objects: %d/%d\n", done, total)
					}
				}
			}
			res, err := object.UnpackPack(r.Store, pack, opts)
			if err != nil {
				return fmt.Errorf("unpack-objects: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "unpacked %s objects (%s deltas) from %s\n",
				humanize.Comma(int64(res.Objects)),
				humanize.Comma(int64(res.Deltas)),
				humanize.Bytes(uint64(len(data))),
			)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "report progress on stderr")
	return cmd
}
