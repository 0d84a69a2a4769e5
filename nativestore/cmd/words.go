package cmd

import (
	"fmt"
	"strings"

	"github.com/ccontavalli/nativestore/lib/storebench"
	"github.com/spf13/cobra"
)

func NewWords(root *Root) *cobra.Command {
	words := &cobra.Command{
		Use:   "words",
		Short: "Manages a list of words, kept as an array",
	}

	words.AddCommand(&cobra.Command{
		Use:   "add <word>...",
		Short: "Adds words at the end of the list. Blank words are ignored",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, word := range args {
				if err := storebench.AddWord(root.Store(), word); err != nil {
					return err
				}
			}
			return nil
		},
	})

	words.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Prints the words, numbered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := storebench.Words(root.Store())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No words stored.")
				return nil
			}
			var out strings.Builder
			for i, word := range list {
				fmt.Fprintf(&out, "%d. %s\n", i+1, word)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), out.String())
			return err
		},
	})

	words.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Removes the words, and everything else in the namespace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return storebench.ClearAll(root.Store())
		},
	})
	return words
}
