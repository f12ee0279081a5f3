package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFiles []string
	root := &cobra.Command{
		Use:           "zone-bridge",
		Short:         "Bridge geofence zone events to local notifications and MQTT",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadDotEnv(envFiles)
		},
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files loaded before reading the environment")

	root.AddCommand(
		newServeCmd(),
		newSyncCmd(),
		newEmitCmd(),
		newCheckConfigCmd(),
		newDeviceTokenCmd(),
	)
	return root
}
