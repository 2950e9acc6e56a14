package main

import (
	"os"
)

func main() {
	a := defaultApp()

	if err := newRootCmd(a).Execute(); err != nil {
		reportError(a.stderr, err)
		os.Exit(1)
	}
}
