// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package main

import (
	"flag"
	"log"
	"os"

	"creditlens/platform/orchestrator"
)

func main() {
	configPath := flag.String("config", os.Getenv("CREDITLENS_CONFIG"), "path to the YAML configuration file")
	flag.Parse()

	if err := orchestrator.Run(*configPath); err != nil {
		log.Fatalf("[Orchestrator] %v", err)
	}
}
