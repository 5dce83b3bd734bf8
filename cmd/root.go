// Copyright © 2019 Andrei Gubarev <agubarev@protonmail.com>

package cmd

import (
	"fmt"
	"os"

	"github.com/agubarev/aegis/internal/config"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "aegis",
	Short: "Aegis endpoint telemetry and anomaly detection server.",
	Long: `Aegis enrolls endpoint agents, ingests their telemetry, classifies
commands by severity, scores events against per-device baselines and
streams alerts to operator dashboards.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.aegis.yaml)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	config.Prepare(viper.GetViper())

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		// Search config in home directory with name ".aegis" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigName(".aegis")
	}

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "using config file:", viper.ConfigFileUsed())
	} else if cfgFile != "" {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig decodes the configuration prepared by initConfig
func loadConfig() (config.Config, error) {
	return config.Load(viper.GetViper())
}
