package toolchain

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/pkg/errors"

	"github.com/m910q/Vale/report"
)

// LLVMPathEnvVar names the environment variable that points at an LLVM
// installation.  Its `bin` directory is searched before the system path.
const LLVMPathEnvVar = "LLVM_PATH"

// ErrToolNotFound is returned when an LLVM tool cannot be located.
var ErrToolNotFound = errors.New("LLVM tool not found")

// Tools holds the paths of the LLVM tools the backend drives.
type Tools struct {
	// LLC compiles LLVM IR to assembly or object code.
	LLC string

	// Opt verifies and optimizes LLVM IR.
	Opt string
}

// Find locates `llc` and `opt`.  LLVM_PATH is searched first, then the
// system path and finally, on Windows, the directory the LLVM installer
// records in the registry.
func Find() (*Tools, error) {
	llc, err := FindTool("llc")
	if err != nil {
		return nil, err
	}

	opt, err := FindTool("opt")
	if err != nil {
		return nil, err
	}

	return &Tools{LLC: llc, Opt: opt}, nil
}

// FindTool locates a single LLVM tool by name.
func FindTool(name string) (string, error) {
	exe := name
	if runtime.GOOS == "windows" {
		exe += ".exe"
	}

	if root, ok := os.LookupEnv(LLVMPathEnvVar); ok && root != "" {
		for _, dir := range []string{filepath.Join(root, "bin"), root} {
			if path, ok := executableIn(dir, exe); ok {
				return path, nil
			}
		}

		report.ReportWarning("`%s` is not in %s=%s, searching the system path", name, LLVMPathEnvVar, root)
	}

	if path, err := exec.LookPath(exe); err == nil {
		return path, nil
	}

	if root, ok := registryLLVMDir(); ok {
		if path, ok := executableIn(filepath.Join(root, "bin"), exe); ok {
			return path, nil
		}
	}

	return "", errors.Wrapf(ErrToolNotFound, "unable to locate `%s` (set %s to your LLVM installation)", name, LLVMPathEnvVar)
}

// executableIn returns the path of exe in dir if it is a regular file.
func executableIn(dir, exe string) (string, bool) {
	path := filepath.Join(dir, exe)

	finfo, err := os.Stat(path)
	if err != nil || finfo.IsDir() {
		return "", false
	}

	if runtime.GOOS != "windows" && finfo.Mode()&0111 == 0 {
		return "", false
	}

	return path, true
}
