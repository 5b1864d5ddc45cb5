package main

import (
	"os"

	"github.com/zodrickjohn/Recuria/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
