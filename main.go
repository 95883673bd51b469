// The main package for the albumlist executable.
package main

import (
	"github.com/JakeFAU/album-list/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
