package main

import (
	"os"

	"github.com/telhawk-systems/telhawk-sentinel/sentinel/cli/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
