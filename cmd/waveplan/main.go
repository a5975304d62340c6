// Command waveplan plans and runs dependency-ordered service deployments.
//
// Usage:
//
//	waveplan plan --catalog services.yaml --strategy parallel_optimized
//	waveplan validate --catalog services.yaml
//	waveplan rollback --catalog services.yaml --deployed auth,menu
//	waveplan serve --config waveplan.yaml
//	waveplan version
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitCode(err)
	}
	return ExitSuccess
}

// exitCode maps an error to the process exit code.
func exitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode
	}
	return ExitConfigError
}
