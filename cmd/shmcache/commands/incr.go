package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	incrDelta   int64
	incrInitial int64
)

var incrCmd = &cobra.Command{
	Use:     "incr <key>",
	Aliases: []string{"increment"},
	Short:   "Atomically increment a numeric value",
	Args:    cobra.ExactArgs(1),
	RunE:    runIncr,
}

var decrCmd = &cobra.Command{
	Use:     "decr <key>",
	Aliases: []string{"decrement"},
	Short:   "Atomically decrement a numeric value, floored at zero",
	Args:    cobra.ExactArgs(1),
	RunE:    runDecr,
}

func init() {
	for _, c := range []*cobra.Command{incrCmd, decrCmd} {
		c.Flags().Int64Var(&incrDelta, "delta", 1, "amount to add or subtract")
		c.Flags().Int64Var(&incrInitial, "initial", 0, "value to use if the key is absent")
	}
}

func runIncr(cmd *cobra.Command, args []string) error {
	c, err := openCache()
	if err != nil {
		return err
	}
	defer closeCache(c)

	result, err := c.Increment(args[0], incrDelta, incrInitial)
	if err != nil {
		return fmt.Errorf("incr %q: %w", args[0], err)
	}
	cmd.Println(result)
	return nil
}

func runDecr(cmd *cobra.Command, args []string) error {
	c, err := openCache()
	if err != nil {
		return err
	}
	defer closeCache(c)

	result, err := c.Decrement(args[0], incrDelta, incrInitial)
	if err != nil {
		return fmt.Errorf("decr %q: %w", args[0], err)
	}
	cmd.Println(result)
	return nil
}
