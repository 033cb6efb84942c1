package cmd

import (
	"fmt"
	"os"

	"github.com/samsaffron/llm-gateway/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Long: `Write a default config file. Provider keys are written as references to
the usual environment variables ($API_KEY, $OPENROUTER_API_KEY, ...); they
also accept op:// (1Password) and $(command) values.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			var err error
			if path, err = config.GetConfigPath(); err != nil {
				return err
			}
		}
		if _, err := os.Stat(path); err == nil && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.Save(config.Default(), path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := *appConfig
		cfg.Serve.Token = mask(cfg.Serve.Token)
		cfg.Client.Token = mask(cfg.Client.Token)
		cfg.Store.DSN = mask(cfg.Store.DSN)
		providers := make(map[string]config.ProviderConfig, len(cfg.Providers))
		for name, p := range cfg.Providers {
			p.APIKey = mask(p.APIKey)
			providers[name] = p
		}
		cfg.Providers = providers

		data, err := yaml.Marshal(&cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd)
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")
}

// mask keeps the last four characters of a secret.
func mask(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "****"
	default:
		return "****" + s[len(s)-4:]
	}
}
