// Package main is the entry point for testd, the driver adapter test executor.
// It serves JSON-RPC requests on stdin and stdout.
package main

import (
	"testd/executor/cmd"
)

func main() {
	cmd.Execute()
}
