package main

import (
	"os"

	"github.com/Iron-Ham/instamo/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
