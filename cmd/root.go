// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ffutop/rtu-slave/internal/config"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "rtuslave",
	Short: "Modbus RTU slave station",
	Long: `rtuslave - A Modbus RTU slave station for a serial line.

Frames are delimited by line silence (1.5 / 3.5 character times), checked,
and answered from an in-memory register store.

Configuration is read from config.yaml in /etc/rtuslave/, $HOME/.rtuslave
or the working directory, or from the file given with --config. Flags
override file values.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-file", "", "Log file path (empty or - for stdout)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(configFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	setupLogger(cfg.Log)
	return cfg, nil
}
