// The main package for the importer executable.
package main

import (
	"github.com/jobgrid/feed-importer/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
