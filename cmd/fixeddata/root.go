// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mochi-mqtt/fixeddata"
)

// newRootCmd returns the fixeddata command with its subcommands attached.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "fixeddata",
		Short: "FixedData server for chunked device transfers over mqtt",
		Long: `fixeddata registers devices, exchanges reliable chunked payloads with them
over an mqtt broker, and exposes transfer progress and server stats over http.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the fixeddata server version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "fixeddata version %s\n", fixeddata.Version)
			return nil
		},
	}
}
