//go:build !(linux || darwin || freebsd)

package core

// FreeSpace is not implemented on this platform; the second result is false
// so callers skip the check.
func FreeSpace(dir string) (uint64, bool, error) {
	return 0, false, nil
}
