package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"webmaster-monitor/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "wm-agent",
	Short:         "Webmaster Monitor site agent",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			return os.Setenv("WM_CONFIG_FILE", cfgFile)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (overrides WM_CONFIG_FILE)")
}

func loadConfig() (config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
