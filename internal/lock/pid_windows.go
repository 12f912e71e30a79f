//go:build windows

package lock

// pidAlive cannot probe reliably on Windows without extra syscalls; report
// alive and let lease expiry handle reclamation.
func pidAlive(_ int) bool { return true }
