package main

import (
	"os"

	parlorcmder "github.com/parlorhq/parlor/cmd/parlor"
)

func main() {
	cmd := parlorcmder.NewParlorCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
