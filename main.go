package main

import (
	"os"

	"github.com/firefly-engineering/keyrelay/cmd"
	"github.com/firefly-engineering/keyrelay/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(errors.GetExitCode(err))
	}
}
