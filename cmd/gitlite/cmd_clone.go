package main

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/odvcencio/gitlite/pkg/repo"
	"github.com/spf13/cobra"
)

func newCloneCmd() *cobra.Command {
	var verbose bool
	var remoteName string

	cmd := &cobra.Command{
		Use:   "clone [-v] <url> [directory]",
		Short: "Clone a repository over smart HTTP",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := args[0]
			dest := ""
			if len(args) == 2 {
				dest = args[1]
			} else {
				dest = defaultCloneDir(source)
			}
			if strings.TrimSpace(dest) == "" {
				return fmt.Errorf("destination directory is required")
			}

			settings, err := loadSettings()
			if err != nil {
				return err
			}
			opts := repo.CloneOptions{
				Client:        settings.ClientOptions(),
				RemoteName:    remoteName,
				BaseCacheSize: settings.Clone.BaseCacheSize,
			}
			if verbose {
				errOut := cmd.ErrOrStderr()
				opts.Progress = func(msg string) {
					fmt.Fprintln(errOut, msg)
				}
			}

			res, err := repo.Clone(cmd.Context(), source, dest, opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if res.Head.IsZero() {
				fmt.Fprintf(out, "cloned empty repository %s into %s\n", source, res.Dir)
				return nil
			}
			fmt.Fprintf(out, "cloned %s into %s\n", source, res.Dir)
			fmt.Fprintf(out, "received %s: %s objects (%s deltas), %s refs\n",
				humanize.Bytes(uint64(res.PackBytes)),
				humanize.Comma(int64(res.Objects)),
				humanize.Comma(int64(res.Deltas)),
				humanize.Comma(int64(res.Refs)),
			)
			if res.Branch != "" {
				fmt.Fprintf(out, "checked out %s at %s\n", res.Branch, res.Head.Short())
			} else {
				fmt.Fprintf(out, "HEAD detached at %s\n", res.Head.Short())
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "report progress on stderr")
	cmd.Flags().StringVar(&remoteName, "remote-name", repo.DefaultRemoteName, "name to assign to the cloned remote")
	return cmd
}

// defaultCloneDir derives "repo" from ".../repo.git" or ".../repo/".
func defaultCloneDir(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	base := path.Base(strings.TrimRight(u.Path, "/"))
	base = strings.TrimSuffix(base, ".git")
	if base == "." || base == "/" {
		return ""
	}
	return base
}
