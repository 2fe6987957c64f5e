//go:build !unix

package mmfile

// Map reads the entire file when mmap is not available.
func Map(path string) ([]byte, func() error, error) {
	return readAll(path)
}
