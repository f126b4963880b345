// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package cmd

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ffutop/rtu-slave/modbus/crc"
	"github.com/ffutop/rtu-slave/modbus/rtu"
)

var crcVerify bool

var crcCmd = &cobra.Command{
	Use:   "crc HEX...",
	Short: "Compute or check the CRC-16/MODBUS of a frame",
	Long: `Compute the CRC-16/MODBUS of the given bytes and print the framed ADU.
With --verify the input is taken as a complete ADU and its trailing CRC is
checked instead.

Examples:
  rtuslave crc 11 03 00 00 00 02
  rtuslave crc --verify 110300000002C69B`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := hex.DecodeString(strings.Join(args, ""))
		if err != nil {
			return fmt.Errorf("invalid hex input: %w", err)
		}
		out := cmd.OutOrStdout()

		if crcVerify {
			if err := rtu.VerifyCRC(data); err != nil {
				return err
			}
			fmt.Fprintf(out, "CRC OK: 0x%04X\n", crc.Checksum(data[:len(data)-2]))
			return nil
		}

		fmt.Fprintf(out, "CRC-16/MODBUS: 0x%04X\n", crc.Checksum(data))
		fmt.Fprintf(out, "Frame: % X\n", rtu.AppendCRC(data))
		return nil
	},
}

func init() {
	crcCmd.Flags().BoolVar(&crcVerify, "verify", false, "Check the trailing CRC of a complete frame")
	rootCmd.AddCommand(crcCmd)
}
