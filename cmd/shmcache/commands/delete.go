package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:     "delete <key>",
	Aliases: []string{"del", "rm"},
	Short:   "Delete a key",
	Args:    cobra.ExactArgs(1),
	RunE:    runDelete,
}

func runDelete(cmd *cobra.Command, args []string) error {
	c, err := openCache()
	if err != nil {
		return err
	}
	defer closeCache(c)

	existed, err := c.Delete(args[0])
	if err != nil {
		return fmt.Errorf("delete %q: %w", args[0], err)
	}
	if !existed {
		return fmt.Errorf("key %q not found", args[0])
	}
	return nil
}
