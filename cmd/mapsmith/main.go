// Command mapsmith is the CLI client for the mapsmith daemon: submit audio,
// watch generation progress, and fetch finished beatmaps.
package main

import (
	"fmt"
	"os"
)

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
