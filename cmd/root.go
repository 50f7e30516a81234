// Package cmd provides the litterbox command-line interface.
//
// Configuration is read, highest priority first, from command-line flags,
// LITTERBOX_<SECTION>_<OPTION> environment variables, the file named by
// --config or LITTERBOX_CONFIG_FILE, and finally .litterbox.yml in the
// working directory.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/litterbox/internal/config"
	"github.com/conneroisu/litterbox/internal/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "litterbox",
	Short: "A live HTML/CSS/JS sandbox with an in-memory filesystem",
	Long: `Litterbox keeps an HTML, a CSS and a JavaScript document in an in-memory
filesystem and renders them together in a sandboxed browser frame.

Markup and script edits recompose the page; style edits are patched into the
running page without a reload.

Quick Start:
  litterbox serve                   Start the preview server
  litterbox serve --mirror ./site   Preview and follow a host directory
  litterbox compose index.html      Print the composed document
  litterbox ls                      List the sandbox filesystem`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .litterbox.yml, can also use LITTERBOX_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig picks the config file and enables LITTERBOX_ environment
// overrides. A missing config file is not an error.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv(config.EnvPrefix + "_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".litterbox")
	}

	config.ConfigureEnv(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig loads the configuration and the logger it describes.
func loadConfig() (*config.Config, logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	return cfg, cfg.NewLogger(os.Stderr), nil
}
