// Command taskforge is the runtime's CLI entrypoint: run/status/bench
// subcommands built from internal/cliapp, mirroring the teacher's
// cmd/beaver-raft main.go (parse flags, build the Cobra tree, execute).
package main

import (
	"fmt"
	"os"

	"github.com/taskforge/taskforge/internal/cliapp"
)

func main() {
	if err := cliapp.BuildCLI().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
