// Command labcore manages a laboratory reagent ledger and executes experiment
// recipes against it.
package main

import (
	"fmt"
	"io"
	"os"

	"labcore/internal/cli"
)

var exitFunc = os.Exit

func main() {
	code := run(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func run(args []string, stdout, stderr io.Writer) int {
	cmd := cli.NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.Execute(); err != nil {
		if _, writeErr := fmt.Fprintf(stderr, "Error: %v\n", err); writeErr != nil {
			return cli.ExitFailure
		}
		return cli.GetExitCode(err)
	}
	return cli.ExitSuccess
}
