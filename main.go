// ./main.go
package main

import (
	"aurora/cmd"
)

// main is the entry point for the aurora CLI application.
func main() {
	// Execute the root command defined in the cmd package.
	// This handles all command-line parsing, configuration, and execution.
	cmd.Execute()
}
