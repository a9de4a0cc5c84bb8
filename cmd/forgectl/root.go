package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8080"

type commandContext struct {
	server  *string
	owner   *string
	jsonOut *bool
}

func (c *commandContext) client() *apiClient {
	server := strings.TrimSpace(*c.server)
	if server == "" {
		server = os.Getenv("FORGE_SERVER")
	}
	if server == "" {
		server = defaultServer
	}
	owner := strings.TrimSpace(*c.owner)
	if owner == "" {
		owner = os.Getenv("FORGE_OWNER")
	}
	return newAPIClient(server, owner)
}

func newRootCommand() *cobra.Command {
	var serverFlag, ownerFlag string
	var jsonFlag bool

	ctx := &commandContext{server: &serverFlag, owner: &ownerFlag, jsonOut: &jsonFlag}

	rootCmd := &cobra.Command{
		Use:           "forgectl",
		Short:         "Submit and follow content pipeline jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "API base URL (default $FORGE_SERVER or "+defaultServer+")")
	rootCmd.PersistentFlags().StringVar(&ownerFlag, "owner", "", "Owner id sent as X-Owner-Id (default $FORGE_OWNER)")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Print raw JSON")

	rootCmd.AddCommand(newSubmitCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newWatchCommand(ctx))
	rootCmd.AddCommand(newSelectCommand(ctx))
	rootCmd.AddCommand(newAbandonCommand(ctx))
	rootCmd.AddCommand(newRestartCommand(ctx))
	rootCmd.AddCommand(newResultCommand(ctx))

	return rootCmd
}
