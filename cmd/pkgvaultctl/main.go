package main

import (
	"fmt"
	"os"

	"github.com/cordum/pkgvault/core/infra/logging"
)

func main() {
	root := newRootCmd()
	err := root.Execute()
	logging.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
