//go:build linux

package obs

import "golang.org/x/sys/unix"

// statDir verifies path exists and is reachable via statfs, matching the
// approach the sidecar's diskspace probe uses for its headroom check.
func statDir(path string) error {
	var stat unix.Statfs_t
	return unix.Statfs(path, &stat)
}
