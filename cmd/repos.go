package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"aurora/internal/config"
	"aurora/internal/repos"
)

// newReposCmd manages the registry of known workspaces.
func newReposCmd() *cobra.Command {
	reposCmd := &cobra.Command{
		Use:   "repos",
		Short: "Manages the registry of known workspaces",
	}

	reposCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Lists registered workspaces",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				paths, err := registry().List()
				if err != nil {
					return err
				}
				if len(paths) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No workspaces registered. Run `aurora ingest <path>` first.")
					return nil
				}
				for _, p := range paths {
					fmt.Fprintln(cmd.OutOrStdout(), p)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "add <path>",
			Short: "Registers a workspace",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return registry().Add(args[0])
			},
		},
		&cobra.Command{
			Use:   "remove <path>",
			Short: "Unregisters a workspace",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return registry().Remove(args[0])
			},
		},
	)
	return reposCmd
}

func registry() *repos.Registry {
	return repos.NewRegistry(config.Get().Graph.DataDir)
}
