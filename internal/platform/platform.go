// Package platform maps a host (GOOS, GOARCH) pair to the prebuilt agent
// binary shipped next to the launcher.
package platform

import (
	"path/filepath"
	"runtime"

	"github.com/menace-cli/menace/internal/errors"
)

// Target is one supported host platform and its agent binary.
type Target struct {
	OS     string
	Arch   string
	Binary string
}

// targets mirrors the cross-platform build matrix. Order is significant for
// display only.
var targets = []Target{
	{OS: "linux", Arch: "amd64", Binary: "menace-go-linux"},
	{OS: "darwin", Arch: "amd64", Binary: "menace-go-darwin"},
	{OS: "darwin", Arch: "arm64", Binary: "menace-go-darwin-arm64"},
	{OS: "windows", Arch: "amd64", Binary: "menace-go-win.exe"},
}

// Targets returns a copy of the supported platform table.
func Targets() []Target {
	out := make([]Target, len(targets))
	copy(out, targets)
	return out
}

// Resolve returns the agent binary filename for the given pair.
// Unmapped pairs fail with an error matching errors.ErrUnsupportedPlatform.
func Resolve(goos, goarch string) (string, error) {
	for _, t := range targets {
		if t.OS == goos && t.Arch == goarch {
			return t.Binary, nil
		}
	}
	return "", errors.NewPlatformError(goos, goarch)
}

// Host resolves the binary for the platform the launcher is running on.
func Host() (string, error) {
	return Resolve(runtime.GOOS, runtime.GOARCH)
}

// BinaryPath joins dir with the resolved binary name.
func BinaryPath(dir, goos, goarch string) (string, error) {
	name, err := Resolve(goos, goarch)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}
