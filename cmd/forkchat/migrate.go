package main

import (
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Rewrite stored chats that still use the linear message list",
		RunE: func(cmd *cobra.Command, args []string) error {
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			a, err := newApp(settings)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			report, err := a.chats.MigrateAll(cmd.Context(), dryRun)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(os.Stdout)
			defer enc.Close()
			return enc.Encode(report)
		},
	}
	cmd.Flags().Bool("dry-run", false, "Only report what would be migrated")
	return cmd
}
