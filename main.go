package main

import (
	"os"

	"github.com/skillscope/skillscope/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
