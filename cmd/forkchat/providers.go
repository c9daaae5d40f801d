package main

import (
	"os"

	"github.com/go-go-golems/forkchat/pkg/providers/factory"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newProvidersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List providers, whether they are configured, and their models",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := factory.NewRegistryFromSettings(settings.Providers)
			enc := yaml.NewEncoder(os.Stdout)
			defer enc.Close()
			return enc.Encode(registry.Describe())
		},
	}
}
