// SPDX-License-Identifier: MIT
//
// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.

//go:build linux
// +build linux

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/warthog618/hx711"
)

func init() {
	tareCmd.Flags().IntVarP(&tareOpts.Samples, "samples", "n", hx711.DefaultTareSamples, "number of samples averaged")
	tareCmd.SetHelpTemplate(tareCmd.HelpTemplate() + extendedTareHelp)
	rootCmd.AddCommand(tareCmd)
}

var (
	tareCmd = &cobra.Command{
		Use:   "tare",
		Short: "Measure the offset of the unloaded cell",
		Args:  cobra.NoArgs,
		RunE:  tare,
	}
	tareOpts = struct {
		Samples int
	}{}
)

var extendedTareHelp = `
The offset is printed so it may be saved as the offset in the config file
or passed with --offset.
`

func tare(cmd *cobra.Command, args []string) error {
	return withDevice(cmd, func(d *device) error {
		if err := d.Tare(tareOpts.Samples); err != nil {
			return err
		}
		fmt.Printf("%.1f\n", d.Offset())
		return nil
	})
}
