// The main package for the sitecrawler executable.
package main

import (
	"github.com/JakeFAU/site-visibility-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
