package provision

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/menace-cli/menace/internal/kit"
	"github.com/menace-cli/menace/internal/logging"
)

// EnvVar is the variable that records the environment root for later
// sessions and for the agent.
const EnvVar = "MENACE_VENV_PATH"

// Environment is an isolated Python runtime directory.
type Environment struct {
	Root           string `yaml:"root"`
	BinDir         string `yaml:"bin_dir"`
	Interpreter    string `yaml:"interpreter"`
	PackageManager string `yaml:"package_manager"`
	Kit            string `yaml:"kit"`
	Provisioned    bool   `yaml:"provisioned"`
}

// Layout returns the executable locations inside root for goos.
// Provisioned is left false.
func Layout(root, goos string) Environment {
	bin, exe := "bin", ""
	if goos == "windows" {
		bin, exe = "Scripts", ".exe"
	}
	binDir := filepath.Join(root, bin)
	return Environment{
		Root:           root,
		BinDir:         binDir,
		Interpreter:    filepath.Join(binDir, "python"+exe),
		PackageManager: filepath.Join(binDir, "pip"+exe),
		Kit:            kit.Binary(root, goos),
	}
}

// HostLayout is Layout for the running OS.
func HostLayout(root string) Environment {
	return Layout(root, runtime.GOOS)
}

// Tool returns the kit helper of this environment. The environment's bin
// directory is first on kit's PATH.
func (e Environment) Tool(logger *logging.Logger) *kit.Tool {
	return kit.New(e.Kit, e.BinDir, logger)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
