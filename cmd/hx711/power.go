// SPDX-License-Identifier: MIT
//
// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.

//go:build linux
// +build linux

package main

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	powerCmd.Flags().DurationVarP(&powerOpts.Duration, "duration", "d", time.Second, "time to remain powered down, 0 to wait for interrupt")
	powerCmd.SetHelpTemplate(powerCmd.HelpTemplate() + extendedPowerHelp)
	rootCmd.AddCommand(powerCmd)
}

var (
	powerCmd = &cobra.Command{
		Use:   "power",
		Short: "Power cycle the converter",
		Args:  cobra.NoArgs,
		RunE:  power,
	}
	powerOpts = struct {
		Duration time.Duration
	}{}
)

var extendedPowerHelp = `
The converter is powered down, then powered up and a sample read to confirm
it has recovered with the configured gain.

The clock line is released on exit, which powers the converter up, so the
converter cannot be left powered down.
`

func power(cmd *cobra.Command, args []string) error {
	return withDevice(cmd, func(d *device) error {
		if err := d.PowerDown(); err != nil {
			return err
		}
		d.log.Info().Msg("powered down")
		if powerOpts.Duration > 0 {
			time.Sleep(powerOpts.Duration)
		} else {
			sigdone := make(chan os.Signal, 1)
			signal.Notify(sigdone, os.Interrupt)
			<-sigdone
			signal.Stop(sigdone)
		}
		start := time.Now()
		if err := d.PowerUp(); err != nil {
			return err
		}
		v, err := d.Read()
		if err != nil {
			return err
		}
		d.log.Info().Dur("wake", time.Since(start)).Msg("powered up")
		fmt.Printf("%d\n", v)
		return nil
	})
}
