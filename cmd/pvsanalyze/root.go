package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/RyanBlaney/sonido-pvs/config"
	"github.com/RyanBlaney/sonido-pvs/logging"
)

var (
	configFile   string
	logLevel     string
	outputFormat string

	// v holds defaults, the config file, PVS_ environment overrides and bound flags
	v *viper.Viper
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pvsanalyze",
	Short: "Phase vocoder spectral centroid and pitch analysis",
	Long: `Run phase vocoder analysis over an audio file or a synthetic tone and
report the spectral centroid and fundamental pitch of every control period.

Configuration is layered: built-in defaults, then the YAML file given with
--config, then PVS_ environment variables (PVS_ANALYSIS_FFT_SIZE, ...), then
command-line flags.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initializeConfig(cmd)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"config file (yaml or json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table",
		"output format (table, json, yaml, csv)")
}

// persistentKeys maps root flags onto configuration keys
var persistentKeys = map[string]string{
	"log-level": "log_level",
	"output":    "output_format",
}

// initializeConfig loads the configuration and binds cmd's flags on top of it
func initializeConfig(cmd *cobra.Command) error {
	var err error
	v, err = config.NewViper(configFile)
	if err != nil {
		return err
	}

	if err := bindFlags(cmd, v, persistentKeys); err != nil {
		return err
	}
	if keys, ok := commandKeys[cmd.Name()]; ok {
		if err := bindFlags(cmd, v, keys); err != nil {
			return err
		}
	}

	level, err := logging.ParseLevel(v.GetString("log_level"))
	if err != nil {
		return err
	}

	// stdout carries the report
	logger := logging.NewWriterLogger(os.Stderr, os.Stderr)
	logger.SetLevel(level)
	logging.SetGlobalLogger(logger)

	return nil
}

// bindFlags binds each named flag of cmd to its configuration key
func bindFlags(cmd *cobra.Command, v *viper.Viper, keys map[string]string) error {
	var lastErr error

	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := keys[f.Name]
		if !ok {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			lastErr = err
		}
	})

	return lastErr
}

// loadConfig decodes and validates the bound configuration
func loadConfig() (*config.Config, error) {
	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
