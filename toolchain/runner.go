package toolchain

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Runner invokes external tools.  The backend only ever talks to LLVM
// through a Runner so that tests can observe and fake tool invocations.
type Runner interface {
	// Run executes tool with args and returns its standard output.
	Run(ctx context.Context, tool string, args ...string) ([]byte, error)
}

// ToolError is returned when a tool exits unsuccessfully.  Stderr holds the
// diagnostic the tool printed.
type ToolError struct {
	Tool   string
	Args   []string
	Stderr string
	Err    error
}

func (te *ToolError) Error() string {
	msg := strings.TrimSpace(te.Stderr)
	if msg == "" {
		msg = te.Err.Error()
	}

	return fmt.Sprintf("%s: %s", filepath.Base(te.Tool), msg)
}

func (te *ToolError) Unwrap() error {
	return te.Err
}

// ExecRunner runs tools as child processes.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, tool string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, tool, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), &ToolError{Tool: tool, Args: args, Stderr: stderr.String(), Err: err}
	}

	return stdout.Bytes(), nil
}

// -----------------------------------------------------------------------------

// RegisteredTargets returns the names of the targets `llc` was built with.
func RegisteredTargets(ctx context.Context, r Runner, llc string) ([]string, error) {
	out, err := r.Run(ctx, llc, "--version")
	if err != nil {
		return nil, err
	}

	return parseRegisteredTargets(out), nil
}

// parseRegisteredTargets extracts the target names listed under the
// `Registered Targets:` heading of `llc --version`.
func parseRegisteredTargets(versionText []byte) []string {
	var targets []string
	inTargets := false

	sc := bufio.NewScanner(bytes.NewReader(versionText))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())

		if !inTargets {
			inTargets = line == "Registered Targets:"
			continue
		}

		if line == "" {
			continue
		}

		name, _, ok := strings.Cut(line, " - ")
		if !ok {
			break
		}

		targets = append(targets, strings.TrimSpace(name))
	}

	return targets
}
