//go:build !linux

package obs

import "os"

// statDir falls back to a plain stat on non-Linux platforms; the Linux
// build uses unix.Statfs for a real filesystem-level reachability probe.
func statDir(path string) error {
	_, err := os.Stat(path)
	return err
}
