// Command substrate is the CLI entry point over the content-addressed code
// database and graph interpreter (SPEC_FULL.md §6).
package main

import (
	"os"

	"github.com/opal-lang/substrate/cli"
)

func main() {
	os.Exit(cli.Execute())
}
