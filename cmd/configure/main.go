package main

import (
	"fmt"
	"os"

	"github.com/benvon/authgate/cmd/configure/commands"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

func main() {
	// A local .env is optional; variables already set win.
	_ = godotenv.Load()

	if err := commands.NewRootCmd(env.ToMap(os.Environ())).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
