package toolchain

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/pkg/errors"
	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m910q/Vale/report"
)

const llcVersionText = `Debian LLVM version 14.0.6
  Optimized build.
  Default target: x86_64-pc-linux-gnu
  Host CPU: icelake-client

  Registered Targets:
    aarch64    - AArch64 (little endian)
    wasm32     - WebAssembly 32-bit
    x86        - 32-bit X86: Pentium-Pro and above
    x86-64     - 64-bit X86: EM64T and AMD64
`

func TestParseRegisteredTargets(t *testing.T) {
	assert.Equal(t,
		[]string{"aarch64", "wasm32", "x86", "x86-64"},
		parseRegisteredTargets([]byte(llcVersionText)),
	)

	assert.Empty(t, parseRegisteredTargets([]byte("LLVM version 14.0.6\n")))
}

type cannedRunner struct {
	out  string
	err  error
	args []string
}

func (cr *cannedRunner) Run(_ context.Context, tool string, args ...string) ([]byte, error) {
	cr.args = append([]string{tool}, args...)
	return []byte(cr.out), cr.err
}

func TestRegisteredTargetsQueriesLLC(t *testing.T) {
	cr := &cannedRunner{out: llcVersionText}

	targets, err := RegisteredTargets(context.Background(), cr, "/opt/llvm/bin/llc")
	require.NoError(t, err)
	assert.Contains(t, targets, "x86-64")
	assert.Equal(t, []string{"/opt/llvm/bin/llc", "--version"}, cr.args)

	cr.err = errors.New("boom")
	_, err = RegisteredTargets(context.Background(), cr, "llc")
	assert.Error(t, err)
}

func TestFindToolPrefersLLVMPath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("executable bits are not meaningful on Windows")
	}

	root := t.TempDir()
	bin := filepath.Join(root, "bin")
	require.NoError(t, os.MkdirAll(bin, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(bin, "llc"), []byte("#!/bin/sh\n"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(bin, "opt"), []byte("#!/bin/sh\n"), 0644))

	t.Setenv(LLVMPathEnvVar, root)
	t.Setenv("PATH", t.TempDir())

	path, err := FindTool("llc")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(bin, "llc"), path)

	// Files that are not executable are skipped.
	_, err = FindTool("opt")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrToolNotFound))

	_, err = Find()
	assert.True(t, errors.Is(err, ErrToolNotFound))
}

func TestFindToolWarnsOnLLVMPathFallback(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("executable bits are not meaningful on Windows")
	}

	sysBin := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(sysBin, "llc"), []byte("#!/bin/sh\n"), 0755))

	t.Setenv(LLVMPathEnvVar, t.TempDir())
	t.Setenv("PATH", sysBin)

	buff := &bytes.Buffer{}
	report.SetOutput(buff)
	pterm.DisableColor()
	report.InitReporter(report.LogLevelWarn)
	t.Cleanup(func() {
		report.SetOutput(os.Stdout)
		pterm.EnableColor()
		report.InitReporter(report.LogLevelSilent)
	})

	path, err := FindTool("llc")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(sysBin, "llc"), path)
	assert.Contains(t, buff.String(), "`llc` is not in "+LLVMPathEnvVar)
}

func TestExecRunnerCapturesDiagnostics(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("no shell available")
	}

	r := ExecRunner{}

	out, err := r.Run(context.Background(), sh, "-c", "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(out))

	_, err = r.Run(context.Background(), sh, "-c", "echo bad input >&2; exit 3")
	require.Error(t, err)

	var te *ToolError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "bad input\n", te.Stderr)
	assert.Equal(t, "sh: bad input", err.Error())

	var exitErr *exec.ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.ExitCode())
}
