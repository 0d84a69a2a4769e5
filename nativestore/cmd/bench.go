package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	kvbbolt "github.com/ccontavalli/nativestore/lib/kvstore/bbolt"
	"github.com/ccontavalli/nativestore/lib/storebench"
	"github.com/spf13/cobra"
)

type benchCommand struct {
	*cobra.Command
	root *Root

	flags    *storebench.Flags
	mmkvPath string
}

// NewBench returns the command comparing the store with two alternatives:
// "async", arrays kept in the same backend without any cache, and "mmkv",
// arrays kept in a memory mapped bbolt file.
func NewBench(root *Root) *cobra.Command {
	command := &benchCommand{
		Command: &cobra.Command{
			Use:   "bench",
			Short: "Times array and single item operations against the alternatives",
			Args:  cobra.NoArgs,
		},
		root:  root,
		flags: storebench.DefaultFlags(),
	}
	command.flags.Register(command.Flags(), "")
	command.Flags().StringVar(&command.mmkvPath, "mmkv-path", "", "bbolt file used by the mmkv contender (defaults to a temporary file)")
	command.RunE = command.run
	return command.Command
}

func (c *benchCommand) run(cmd *cobra.Command, args []string) error {
	async, err := c.root.opener(c.root.flags.App, c.root.flags.Namespace+"-async")
	if err != nil {
		return fmt.Errorf("could not open async store: %w", err)
	}

	path := c.mmkvPath
	if path == "" {
		dir, err := os.MkdirTemp("", "nativestore-bench-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)
		path = filepath.Join(dir, "mmkv.bbolt")
	}
	db, err := kvbbolt.New(kvbbolt.WithPath(path))
	if err != nil {
		return fmt.Errorf("could not open mmkv store: %w", err)
	}
	defer db.Close()
	mmkv, err := db.Open(c.root.flags.App, c.root.flags.Namespace)
	if err != nil {
		return err
	}

	report, err := storebench.Run(cmd.Context(), []storebench.Contender{
		storebench.NewStoreContender("native", c.root.Store()),
		storebench.NewLoaderContender("async", async),
		storebench.NewLoaderContender("mmkv", c.root.traced("mmkv", mmkv)),
	}, storebench.FromFlags(c.flags), storebench.WithLogger(c.root.log))
	if err != nil {
		return err
	}
	report.Render(cmd.OutOrStdout())
	return nil
}
