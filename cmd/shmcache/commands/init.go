package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/shmcache/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample configuration file",
	Long: `Write a sample shmcache configuration file.

By default, the configuration file is created at
$XDG_CONFIG_HOME/shmcache/config.yaml. Use --config to specify a custom
path.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	var path string
	var err error
	if configFile != "" {
		err = config.InitConfigToPath(configFile, initForce)
		path = configFile
	} else {
		path, err = config.InitConfig(initForce)
	}
	if err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}

	cmd.Printf("Configuration file created at: %s\n", path)
	return nil
}
