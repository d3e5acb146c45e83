package main

import (
	"fmt"
	"os"

	"github.com/pixperk/sharelock/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "sharelock: %v\n", err)
		os.Exit(cli.ExitCode(err))
	}
}
