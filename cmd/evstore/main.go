// Command evstore is the CLI for the durable local event store.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/evstore/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
