//go:build !unix

package engage

// lockDir is a no-op where advisory locks are unavailable; the lock file
// alone guards the protocol.
func lockDir(string) (func(), error) {
	return func() {}, nil
}
