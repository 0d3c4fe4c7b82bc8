// Command zkfocil runs the zk-FOCIL block production simulator.
//
// Usage:
//
//	zkfocil run        full node: producer, control API and metrics
//	zkfocil oracle     mock proof oracle HTTP service
//	zkfocil simulate   synchronous production attempts with statistics
//	zkfocil lottery    key-image includer lottery
//	zkfocil version    print version and exit
//
// Every configuration key can also be set in a YAML/TOML/JSON file passed
// with --config, or through ZKFOCIL_* environment variables
// (e.g. ZKFOCIL_PRODUCER_INTERVAL_MS=3000).
package main

import (
	"fmt"
	"os"
)

// Build-time version info, overridable with ldflags:
//
//	go build -ldflags "-X main.version=v0.2.0 -X main.commit=abc1234"
var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is the actual entry point, returning an exit code. Accepts CLI
// arguments (without the program name) so it can be tested in isolation.
func run(args []string) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
