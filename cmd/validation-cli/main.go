package main

import (
	"os"

	"vms-validation-service/cmd/validation-cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
