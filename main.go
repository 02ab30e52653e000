package main

import (
	"os"

	"github.com/seclens/feedbridge/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
