package cli

import (
	"os"

	"github.com/carewise/carestore/pkg/carestore"
)

// requireClient opens the store discovered from CWD, or exits with error.
func requireClient() *carestore.Client {
	cwd, err := os.Getwd()
	if err != nil {
		fmtErr("cannot get current directory: %v", err)
		os.Exit(1)
	}
	client, err := carestore.Open(cwd)
	if err != nil {
		fmtErr("not a carestore directory (run 'carestore init' first): %v", err)
		os.Exit(1)
	}
	return client
}
