// Command ragchat is the entry point for the EBLA RAG chat service.
// It provides a CLI interface (via Cobra) and an HTTP server exposing the
// retrieval-augmented chat API.
package main

import (
	"fmt"
	"os"

	"github.com/eblahq/ragchat/cmd/ragchat/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
