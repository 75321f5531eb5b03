// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package main implements the creditctl CLI for CreditLens operators.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "1.0.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "creditctl",
		Short:         "CreditLens CLI tool",
		Long:          `creditctl uploads bureau documents, builds summaries and runs credit-risk analyses against the configured stores.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CREDITLENS_CONFIG"), "path to the YAML configuration file")

	rootCmd.AddCommand(uploadCmd(&configPath))
	rootCmd.AddCommand(summarizeCmd(&configPath))
	rootCmd.AddCommand(runCmd(&configPath))
	rootCmd.AddCommand(runsCmd(&configPath))

	return rootCmd
}
