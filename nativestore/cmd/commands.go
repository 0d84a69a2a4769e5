package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// ErrNotFound is returned by the get commands for keys that have no value.
type ErrNotFound struct {
	Key string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("key %q not found", e.Key)
}

func NewSet(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Stores a single value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.Store().SetItem(args[0], args[1])
		},
	}
}

func NewGet(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Prints a single value, as stored",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, ok, err := root.Store().GetItem(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return &ErrNotFound{Key: args[0]}
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), value)
			return err
		},
	}
}

func NewSetArray(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "set-array <key> [item]...",
		Short: "Stores the items as an array, replacing any previous value",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.Store().SetStringArray(args[0], args[1:])
		},
	}
}

func NewSetBulk(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "set-bulk <key> [item]...",
		Short: "Writes a whole array at once",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.Store().SetStringArrayBulk(args[0], args[1:])
		},
	}
}

type getArrayCommand struct {
	*cobra.Command
	root *Root
	json bool
}

func NewGetArray(root *Root) *cobra.Command {
	command := &getArrayCommand{
		Command: &cobra.Command{
			Use:   "get-array <key>",
			Short: "Prints the items of an array, one per line",
			Args:  cobra.ExactArgs(1),
		},
		root: root,
	}
	command.Flags().BoolVar(&command.json, "json", false, "Print the array as a JSON list instead")
	command.RunE = command.run
	return command.Command
}

func (c *getArrayCommand) run(cmd *cobra.Command, args []string) error {
	items, ok, err := c.root.Store().GetStringArray(args[0])
	if err != nil {
		return err
	}
	if !ok {
		return &ErrNotFound{Key: args[0]}
	}
	if c.json {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetEscapeHTML(false)
		return encoder.Encode(items)
	}
	for _, item := range items {
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), item); err != nil {
			return err
		}
	}
	return nil
}

func NewAppend(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "append <key> <item>...",
		Short: "Appends items to an array, one at a time",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, item := range args[1:] {
				if err := root.Store().AppendToStringArray(args[0], item); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func NewRemove(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <key>...",
		Aliases: []string{"rm"},
		Short:   "Deletes keys, array or not",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, key := range args {
				if err := root.Store().RemoveItem(key); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func NewClear(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Deletes every key in the namespace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.Store().Clear()
		},
	}
}
