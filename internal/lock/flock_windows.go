//go:build windows

package lock

import "os"

// Flock is not available on Windows; the in-process mutex covers the common
// single-process deployment.
func lockFile(_ *os.File) error   { return nil }
func unlockFile(_ *os.File) error { return nil }
