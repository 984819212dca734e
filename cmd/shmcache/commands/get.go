package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print the value stored for a key",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func runGet(cmd *cobra.Command, args []string) error {
	c, err := openCache()
	if err != nil {
		return err
	}
	defer closeCache(c)

	value, _, found, err := c.Get(args[0])
	if err != nil {
		return fmt.Errorf("get %q: %w", args[0], err)
	}
	if !found {
		return fmt.Errorf("key %q not found", args[0])
	}

	_, err = os.Stdout.Write(value)
	return err
}

var existsCmd = &cobra.Command{
	Use:   "exists <key>",
	Short: "Report whether a key is present",
	Args:  cobra.ExactArgs(1),
	RunE:  runExists,
}

func runExists(cmd *cobra.Command, args []string) error {
	c, err := openCache()
	if err != nil {
		return err
	}
	defer closeCache(c)

	found, err := c.Exists(args[0])
	if err != nil {
		return fmt.Errorf("exists %q: %w", args[0], err)
	}
	if !found {
		cmd.Println("false")
		os.Exit(1)
	}
	cmd.Println("true")
	return nil
}
