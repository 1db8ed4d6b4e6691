// The main package for the hnmirror executable.
package main

import (
	"github.com/JakeFAU/hnmirror/cmd"
)

func main() {
	cmd.Execute()
}
