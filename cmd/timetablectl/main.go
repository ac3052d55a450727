package main

import (
	"os"
)

var version = "dev"

func main() {
	if version != "" {
		rootCmd.Version = version
	}
	if err := Execute(); err != nil {
		PrintError(err.Error())
		os.Exit(1)
	}
}
