//go:build windows

package kit

import "strings"

// Windows environment keys are case-insensitive ("Path" is common).
func isPathKey(key string) bool {
	return strings.EqualFold(key, "PATH")
}
