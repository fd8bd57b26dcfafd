package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/corefin/payrun/internal/cli"
)

func main() {
	// Local development convenience; signing keys and environment come
	// from the process environment in deployment.
	_ = godotenv.Load()

	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
