package main

import (
	"os"

	"custodian/cmd/custodianctl/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
