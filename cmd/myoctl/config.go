package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/myolink/pkg/config"
)

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (YAML); explicit flags take precedence")
}

// loadCLIConfig loads the file named by --config. Returns nil when the flag
// was not given, so callers can tell "no config file" from "config with
// default values" - flag defaults stay in charge in the former case.
func loadCLIConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return nil, nil
	}
	return config.Load(path)
}

// resolveDeviceAddress picks the device address from the positional argument,
// falling back to default_device from the config file.
func resolveDeviceAddress(cfg *config.Config, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if cfg != nil && cfg.DefaultDevice != "" {
		return cfg.DefaultDevice, nil
	}
	return "", fmt.Errorf("no device address given (pass one as an argument or set default_device in the config file)")
}

// resolveConnectTimeout returns the connection timeout for a command: the
// --connect-timeout flag when the caller set it, connect_timeout from the
// config file otherwise.
func resolveConnectTimeout(cmd *cobra.Command, flagValue time.Duration, cfg *config.Config) time.Duration {
	if cfg == nil || cmd.Flags().Changed("connect-timeout") {
		return flagValue
	}
	return cfg.ConnectTimeout
}

// resolveOutputJSON maps the config file's output_format onto a command's
// --json flag when the flag itself was not given.
func resolveOutputJSON(cmd *cobra.Command, flagValue bool, cfg *config.Config) bool {
	if cfg == nil || cmd.Flags().Changed("json") {
		return flagValue
	}
	return cfg.OutputFormat == "json"
}
