// lexreview-engine hosts the contract redline review engine: a JSON-RPC
// stdio server for add-in hosts, plus offline scan tooling.
package main

import (
	"os"

	"lexreview/engine/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
