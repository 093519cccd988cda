// Package cmd provides the podev command-line interface with configuration
// from files, environment variables, and flags.
//
// Configuration precedence, highest first:
//  1. Command-line flags (--port, --mode, ...)
//  2. Environment variables with PODEV_ prefix (PODEV_APP_PORT, ...)
//  3. Configuration file (.podev.yml)
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "podev",
	Short: "Development-mode orchestrator for server-rendered podlets",
	Long: `podev keeps a running HTTP server and a compiled client/SSR asset
bundle continuously in sync with on-disk source changes.

It watches two independent file scopes: client-affecting changes drive an
incremental rebuild of the client bundle (with browser reload signaling),
server-affecting changes drive a full server restart. UI components are
bundled and imported on demand into an element registry, then rendered
server-side, client-side, or hydrated, depending on configuration.

Quick Start:
  podev init                    Write a default .podev.yml
  podev dev                     Start the dev orchestrator
  podev build                   Produce production bundles`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .podev.yml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig wires viper to the config file and PODEV_ environment variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".podev")
	}

	viper.SetEnvPrefix("PODEV")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// A missing config file is fine; defaults and environment cover it.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
