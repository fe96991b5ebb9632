package platform

import (
	"path/filepath"
	"testing"

	"github.com/menace-cli/menace/internal/errors"
)

func TestResolve_Supported(t *testing.T) {
	tests := []struct {
		goos, goarch string
		want         string
	}{
		{"linux", "amd64", "menace-go-linux"},
		{"darwin", "amd64", "menace-go-darwin"},
		{"darwin", "arm64", "menace-go-darwin-arm64"},
		{"windows", "amd64", "menace-go-win.exe"},
	}

	for _, tt := range tests {
		t.Run(tt.goos+"/"+tt.goarch, func(t *testing.T) {
			got, err := Resolve(tt.goos, tt.goarch)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve() = %q, want %q", got, tt.want)
			}
			// Deterministic across calls.
			again, _ := Resolve(tt.goos, tt.goarch)
			if again != got {
				t.Errorf("second Resolve() = %q, want %q", again, got)
			}
		})
	}
}

func TestResolve_Unsupported(t *testing.T) {
	pairs := [][2]string{
		{"freebsd", "amd64"},
		{"linux", "arm64"},
		{"windows", "arm64"},
		{"darwin", "386"},
		{"", ""},
	}

	for _, p := range pairs {
		t.Run(p[0]+"/"+p[1], func(t *testing.T) {
			got, err := Resolve(p[0], p[1])
			if err == nil {
				t.Fatalf("Resolve() = %q, want error", got)
			}
			if !errors.Is(err, errors.ErrUnsupportedPlatform) {
				t.Errorf("error %v should match ErrUnsupportedPlatform", err)
			}
			if got != "" {
				t.Errorf("Resolve() returned %q alongside error", got)
			}
		})
	}
}

func TestTargets_ReturnsCopy(t *testing.T) {
	a := Targets()
	if len(a) != 4 {
		t.Fatalf("len(Targets()) = %d, want 4", len(a))
	}
	a[0].Binary = "mutated"
	if Targets()[0].Binary == "mutated" {
		t.Error("Targets() must not expose the internal table")
	}
	for _, tgt := range Targets() {
		if tgt.Binary == "" {
			t.Errorf("target %s/%s has empty binary", tgt.OS, tgt.Arch)
		}
	}
}

func TestBinaryPath(t *testing.T) {
	got, err := BinaryPath("/opt/menace/bin", "darwin", "arm64")
	if err != nil {
		t.Fatalf("BinaryPath() error = %v", err)
	}
	want := filepath.Join("/opt/menace/bin", "menace-go-darwin-arm64")
	if got != want {
		t.Errorf("BinaryPath() = %q, want %q", got, want)
	}

	if _, err := BinaryPath("/x", "plan9", "amd64"); !errors.Is(err, errors.ErrUnsupportedPlatform) {
		t.Errorf("BinaryPath() error = %v, want ErrUnsupportedPlatform", err)
	}
}
