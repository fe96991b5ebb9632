//go:build !windows

package kit

func isPathKey(key string) bool {
	return key == "PATH"
}
