//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package cli

import "os"

// IsTerminal reports false where window-size queries are unavailable.
func IsTerminal(f *os.File) bool {
	return false
}
