package commands

import (
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
)

var destroyYes bool

var destroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Remove the region entirely, including for other attached processes",
	Long: `Destroy marks the underlying shared-memory segment for removal,
removes the region's lock semaphores, and detaches this process. The
segment itself disappears once the last attached process detaches; until
then those processes keep their mapping, but their lock operations fail,
so their cache operations return lock errors. Any later command that
opens the same name creates a brand new, empty region.`,
	Args: cobra.NoArgs,
	RunE: runDestroy,
}

func init() {
	destroyCmd.Flags().BoolVarP(&destroyYes, "yes", "y", false, "skip the confirmation prompt")
}

func runDestroy(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if !destroyYes {
		confirmed, err := confirmDestroy(cfg.Region.Name)
		if err != nil {
			return err
		}
		if !confirmed {
			cmd.Println("aborted")
			return nil
		}
	}

	c, err := openCache()
	if err != nil {
		return err
	}
	if err := c.Destroy(); err != nil {
		return fmt.Errorf("destroy %q: %w", cfg.Region.Name, err)
	}
	return nil
}

func confirmDestroy(regionName string) (bool, error) {
	prompt := promptui.Prompt{
		Label:     fmt.Sprintf("Destroy region %q", regionName),
		IsConfirm: true,
	}
	result, err := prompt.Run()
	if err != nil {
		if err == promptui.ErrAbort {
			return false, nil
		}
		return false, err
	}
	return result == "y" || result == "Y", nil
}
