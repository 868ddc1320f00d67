// Command oakvm defines array classes from CUE specs, runs scenario
// files against them and serves attach operations.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/oakvm/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "oakvm:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
