// Package commands implements the shmcache CLI's command tree.
package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile    string
	regionName string
	regionSize string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "shmcache",
	Short: "Inspect and operate a shmcache shared-memory region",
	Long: `shmcache operates the APCu-style key/value cache backed by a single
fixed-size region of OS shared memory. Every subcommand attaches to the
named region (creating it on first use), performs one operation, and
detaches again - the region and its contents outlive the process.

Use "shmcache [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Called once by main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/shmcache/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&regionName, "region", "", "region name (overrides config)")
	rootCmd.PersistentFlags().StringVar(&regionSize, "size", "", "region size, e.g. 64Mi (overrides config, ignored once a region exists)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(replaceCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(existsCmd)
	rootCmd.AddCommand(incrCmd)
	rootCmd.AddCommand(decrCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(flushCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global --config flag.
func GetConfigFile() string {
	return cfgFile
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}

// Exit prints an error and exits with code 1.
func Exit(format string, args ...any) {
	PrintErr(format, args...)
	os.Exit(1)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.Printf("shmcache %s (commit: %s, built: %s)\n", Version, Commit, Date)
		return nil
	},
}
