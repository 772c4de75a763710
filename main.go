// The main package for the stockd executable.
package main

import (
	"github.com/JakeFAU/garden-stock/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
