// SPDX-License-Identifier: MIT
//
// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.

//go:build linux
// +build linux

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	readCmd.Flags().IntVarP(&readOpts.Num, "num", "n", 1, "number of samples to read")
	readCmd.Flags().DurationVarP(&readOpts.Interval, "interval", "i", 0, "delay between samples")
	readCmd.Flags().BoolVarP(&readOpts.Lowpass, "lowpass", "l", false, "report the low-pass filter output")
	readCmd.Flags().IntVarP(&readOpts.Average, "average", "a", 0, "report the mean of this many samples")
	rootCmd.AddCommand(readCmd)
}

var (
	readCmd = &cobra.Command{
		Use:     "read",
		Short:   "Read raw samples",
		Args:    cobra.NoArgs,
		RunE:    read,
		Example: "  hx711 read -n 10 -i 100ms\n  hx711 --gain 32 read -a 15",
	}
	readOpts = struct {
		Num      int
		Interval time.Duration
		Lowpass  bool
		Average  int
	}{}
)

func read(cmd *cobra.Command, args []string) error {
	return withDevice(cmd, func(d *device) error {
		for i := 0; i < readOpts.Num; i++ {
			if i > 0 && readOpts.Interval > 0 {
				time.Sleep(readOpts.Interval)
			}
			switch {
			case readOpts.Average > 0:
				v, err := d.ReadAverage(readOpts.Average)
				if err != nil {
					return err
				}
				fmt.Printf("%.1f\n", v)
			case readOpts.Lowpass:
				v, err := d.ReadLowpass()
				if err != nil {
					return err
				}
				fmt.Printf("%.1f\n", v)
			default:
				v, err := d.Read()
				if err != nil {
					return err
				}
				fmt.Printf("%d\n", v)
			}
		}
		return nil
	})
}
