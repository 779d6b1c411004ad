// Command fre is the file retrieval engine: an HTTP indexing and search
// service plus one-shot indexing and operational subcommands.
package main

import (
	"os"

	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/cmd/fre/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
