package main

import (
	"os"

	"github.com/go-go-golems/forkchat/pkg/config"
	"github.com/go-go-golems/forkchat/pkg/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	v        *viper.Viper
	settings *config.Settings
)

var rootCmd = &cobra.Command{
	Use:   "forkchat",
	Short: "forkchat serves branching chats with several LLM providers",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		envFile, _ := cmd.Flags().GetString("env-file")
		if envFile != "" {
			config.LoadDotEnv(envFile)
		} else {
			config.LoadDotEnv()
		}

		configFile, _ := cmd.Flags().GetString("config")
		v = config.NewViper(configFile)
		if err := bindFlags(cmd); err != nil {
			return err
		}

		s, err := config.Load(v)
		if err != nil {
			return err
		}
		settings = s
		return initLogger(cmd, settings)
	},
	SilenceUsage: true,
}

// flagKeys maps flags onto their settings keys.
var flagKeys = map[string]string{
	"log-level":    "log.level",
	"log-format":   "log.format",
	"log-file":     "log.file",
	"with-caller":  "log.with-caller",
	"address":      "server.address",
	"storage":      "storage.backend",
	"storage-path": "storage.path",
	"echo":         "providers.echo",
}

func bindFlags(cmd *cobra.Command) error {
	for flag, key := range flagKeys {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

func initLogger(cmd *cobra.Command, s *config.Settings) error {
	level := s.Log.Level
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose && level != "trace" {
		level = "debug"
	}
	return logging.InitLogger(&logging.Config{
		Level:      level,
		Format:     s.Log.Format,
		File:       s.Log.File,
		WithCaller: s.Log.WithCaller,
	})
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default ./forkchat.yaml or ~/.forkchat/forkchat.yaml)")
	rootCmd.PersistentFlags().String("env-file", "", "Path to a .env file (default .env)")
	rootCmd.PersistentFlags().Bool("with-caller", false, "Log caller")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace, debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (json, text)")
	rootCmd.PersistentFlags().String("log-file", "", "Log file (default: stderr)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Verbose output")

	rootCmd.PersistentFlags().String("storage", "file", "Chat storage backend (memory, file, sqlite, pebble)")
	rootCmd.PersistentFlags().String("storage-path", "data/chats", "Chat storage location")
	rootCmd.PersistentFlags().Bool("echo", false, "Enable the offline echo provider")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newMigrateCommand())
	rootCmd.AddCommand(newProvidersCommand())
	rootCmd.AddCommand(newSchemaCommand())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("forkchat failed")
		os.Exit(1)
	}
}
