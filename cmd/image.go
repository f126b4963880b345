// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ffutop/rtu-slave/internal/slave/image"
)

var imageOut string

var imageCmd = &cobra.Command{
	Use:   "image",
	Short: "Write a seed image of the configured initial store",
	Long: `Render the store described by the configuration (capacities and initial
values) into a binary image that serve can load with --image.

Layout: coils packed LSB first, discrete inputs packed LSB first, holding
registers big-endian, input registers big-endian.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		m, err := buildStore(cfg.Slave.Store, false)
		if err != nil {
			return fmt.Errorf("failed to build store: %w", err)
		}
		if err := image.Write(imageOut, m); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", imageOut, image.Size(m.Capacity()))
		return nil
	},
}

func init() {
	imageCmd.Flags().StringVarP(&imageOut, "out", "o", "", "Output file")
	imageCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(imageCmd)
}
