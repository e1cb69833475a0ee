package main

import (
	"strings"

	"github.com/spf13/cobra"

	"mapsmith/internal/api"
	"mapsmith/internal/config"
)

// commandContext carries the flags shared by every subcommand and lazily
// resolves the daemon address from them.
type commandContext struct {
	serverFlag *string
	configFlag *string
}

func newCommandContext(serverFlag, configFlag *string) *commandContext {
	return &commandContext{serverFlag: serverFlag, configFlag: configFlag}
}

// client resolves the daemon address: the --server flag wins, then the
// configured api_bind, then the default bind.
func (c *commandContext) client() (*api.Client, error) {
	if server := strings.TrimSpace(*c.serverFlag); server != "" {
		return api.NewClient(server), nil
	}
	cfg, _, err := config.Load(*c.configFlag)
	if err != nil {
		return nil, err
	}
	return api.NewClient(cfg.Paths.APIBind), nil
}

func newRootCommand() *cobra.Command {
	var serverFlag string
	var configFlag string

	ctx := newCommandContext(&serverFlag, &configFlag)

	rootCmd := &cobra.Command{
		Use:           "mapsmith",
		Short:         "Mapsmith beatmap generation CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "Daemon address (host:port)")
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newJobsCommand(ctx))
	rootCmd.AddCommand(newSubmitCommand(ctx))
	rootCmd.AddCommand(newJobStatusCommand(ctx))
	rootCmd.AddCommand(newProgressCommand(ctx))
	rootCmd.AddCommand(newWatchCommand(ctx))
	rootCmd.AddCommand(newFilesCommand(ctx))
	rootCmd.AddCommand(newDownloadCommand(ctx))
	rootCmd.AddCommand(newCancelCommand(ctx))
	rootCmd.AddCommand(newDeleteCommand(ctx))
	rootCmd.AddCommand(newConfigCommand())

	return rootCmd
}
