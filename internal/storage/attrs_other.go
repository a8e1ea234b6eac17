//go:build !windows

package storage

func archiveBit(string) bool {
	return false
}
