package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
)

const defaultAPIAddress = "http://127.0.0.1:7583"

func newRootCommand() *cobra.Command {
	var apiFlag string

	client := &apiClient{}

	rootCmd := &cobra.Command{
		Use:           "kiln",
		Short:         "Kiln build daemon CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			address := strings.TrimSpace(apiFlag)
			if address == "" {
				address = strings.TrimSpace(os.Getenv("KILN_API"))
			}
			if address == "" {
				address = defaultAPIAddress
			}
			client.base = strings.TrimRight(address, "/")
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&apiFlag, "api", "", "Daemon API address (default "+defaultAPIAddress+")")

	rootCmd.AddCommand(newSubmitCommand(client))
	rootCmd.AddCommand(newShowCommand(client))
	rootCmd.AddCommand(newListCommand(client))
	rootCmd.AddCommand(newCancelCommand(client))
	rootCmd.AddCommand(newRebuildCommand(client))
	rootCmd.AddCommand(newStatusCommand(client))
	rootCmd.AddCommand(newConfigCommand())

	return rootCmd
}
