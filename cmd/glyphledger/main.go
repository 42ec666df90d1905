// Command glyphledger operates a glyph ledger persisted in a local bbolt
// database. Every mutating command loads the stored snapshot, applies one
// operation and saves the result.
package main

import (
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand(os.Stdout, os.Stderr)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
