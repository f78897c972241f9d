// main.go
//
// Entry point for ttnn-vis; command handling lives in the Cobra tree under cmd/

package main

import (
	"github.com/ttnn-vis/ttnn-vis-cli/cmd"
)

func main() {
	cmd.Execute()
}
