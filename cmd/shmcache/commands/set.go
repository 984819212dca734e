package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var setSerialized bool

var setCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a key unconditionally",
	Args:  cobra.ExactArgs(2),
	RunE:  runSet,
}

var addCmd = &cobra.Command{
	Use:   "add <key> <value>",
	Short: "Set a key only if it is absent",
	Args:  cobra.ExactArgs(2),
	RunE:  runAdd,
}

var replaceCmd = &cobra.Command{
	Use:   "replace <key> <value>",
	Short: "Set a key only if it already exists",
	Args:  cobra.ExactArgs(2),
	RunE:  runReplace,
}

func init() {
	for _, c := range []*cobra.Command{setCmd, addCmd, replaceCmd} {
		c.Flags().BoolVar(&setSerialized, "serialized", false, "mark the stored value as serialized (opaque passthrough flag, not interpreted by this cache)")
	}
}

func runSet(cmd *cobra.Command, args []string) error {
	c, err := openCache()
	if err != nil {
		return err
	}
	defer closeCache(c)

	if err := c.Set(args[0], []byte(args[1]), setSerialized); err != nil {
		return fmt.Errorf("set %q: %w", args[0], err)
	}
	return nil
}

func runAdd(cmd *cobra.Command, args []string) error {
	c, err := openCache()
	if err != nil {
		return err
	}
	defer closeCache(c)

	stored, err := c.Add(args[0], []byte(args[1]), setSerialized)
	if err != nil {
		return fmt.Errorf("add %q: %w", args[0], err)
	}
	if !stored {
		return fmt.Errorf("key %q already exists", args[0])
	}
	return nil
}

func runReplace(cmd *cobra.Command, args []string) error {
	c, err := openCache()
	if err != nil {
		return err
	}
	defer closeCache(c)

	stored, err := c.Replace(args[0], []byte(args[1]), setSerialized)
	if err != nil {
		return fmt.Errorf("replace %q: %w", args[0], err)
	}
	if !stored {
		return fmt.Errorf("key %q does not exist", args[0])
	}
	return nil
}
