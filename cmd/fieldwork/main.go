// Package main provides the entry point for the fieldwork CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"fieldwork/internal/cli"
)

func main() {
	// Load .env file if it exists (for local development)
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
