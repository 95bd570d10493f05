package backend

import (
	"context"
	"os"
	"path/filepath"

	"github.com/llir/llvm/ir"
	"github.com/pkg/errors"

	"github.com/m910q/Vale/common"
	"github.com/m910q/Vale/report"
	"github.com/m910q/Vale/toolchain"
)

// Sentinels identifying the stage a fatal backend error came from.
var (
	ErrSetupFailed    = errors.New("LLVM setup failed")
	ErrVerifyFailed   = errors.New("module verification failed")
	ErrOptimizeFailed = errors.New("module optimization failed")
)

// stageError attaches the diagnostic of a backend tool to the sentinel of the
// stage that failed.
type stageError struct {
	stage error
	diag  error
}

func (se *stageError) Error() string {
	return se.stage.Error() + ": " + se.diag.Error()
}

func (se *stageError) Is(target error) bool {
	return target == se.stage
}

func (se *stageError) Unwrap() error {
	return se.diag
}

// Backend turns generated modules into files using the LLVM tools.
type Backend struct {
	profile *common.BuildProfile
	tools   *toolchain.Tools
	runner  toolchain.Runner
	tm      *TargetMachine
}

// New creates a backend for profile.  The target machine is resolved against
// the targets `llc` reports.
func New(ctx context.Context, profile *common.BuildProfile, tools *toolchain.Tools, runner toolchain.Runner) (*Backend, error) {
	registered, err := toolchain.RegisteredTargets(ctx, runner, tools.LLC)
	if err != nil {
		return nil, &stageError{stage: ErrSetupFailed, diag: err}
	}

	tm, err := NewTargetMachine(profile, registered)
	if err != nil {
		return nil, err
	}

	return &Backend{profile: profile, tools: tools, runner: runner, tm: tm}, nil
}

// TargetMachine returns the machine the backend compiles for.
func (b *Backend) TargetMachine() *TargetMachine {
	return b.tm
}

// Emit runs the backend pipeline over m: optional IR dump, optional
// verification, optimization, optional optimized IR dump, then assembly and
// object emission as the profile requests.  It returns the paths of the
// files written to the output directory.  Emission failures are reported as
// warnings and do not stop the remaining steps.
func (b *Backend) Emit(ctx context.Context, m *ir.Module) ([]string, error) {
	m.TargetTriple = b.tm.Triple

	workDir, err := os.MkdirTemp("", "vale-")
	if err != nil {
		return nil, &stageError{stage: ErrSetupFailed, diag: err}
	}
	defer os.RemoveAll(workDir)

	e := &emitter{Backend: b, ctx: ctx}

	base := b.profile.BaseName()
	irPath := filepath.Join(workDir, base+".ll")
	if err := os.WriteFile(irPath, []byte(m.String()), 0644); err != nil {
		return nil, &stageError{stage: ErrSetupFailed, diag: err}
	}

	if b.profile.PrintLLVMIR {
		e.copyOut(irPath, b.profile.OutputPath("ll"))
	}

	if b.profile.Verify {
		report.ReportPhase("verifying module")
		if _, err := b.runner.Run(ctx, b.tools.Opt, "-passes=verify", "-disable-output", irPath); err != nil {
			return e.written, &stageError{stage: ErrVerifyFailed, diag: err}
		}
	}

	report.ReportPhase("optimizing module")
	optPath := filepath.Join(workDir, base+".opt.ll")
	if _, err := b.runner.Run(ctx, b.tools.Opt, "-passes="+b.tm.OptPasses(), "-S", "-o", optPath, irPath); err != nil {
		return e.written, &stageError{stage: ErrOptimizeFailed, diag: err}
	}

	if b.profile.PrintLLVMIR {
		e.copyOut(optPath, b.profile.OutputPath("opt.ll"))
	}

	if b.profile.PrintASM {
		e.compile("asm", optPath, b.profile.OutputPath(b.tm.AsmExt()))
	}

	if b.profile.EmitObject {
		e.compile("obj", optPath, b.profile.OutputPath(b.tm.ObjExt()))
	}

	return e.written, nil
}

// emitter writes the outputs of a single Emit call.
type emitter struct {
	*Backend
	ctx     context.Context
	written []string
}

// copyOut copies an intermediate file to the output directory.
func (e *emitter) copyOut(src, dest string) {
	data, err := os.ReadFile(src)
	if err == nil {
		err = e.prepare(dest)
	}

	if err == nil {
		err = os.WriteFile(dest, data, 0644)
	}

	e.finish(dest, err)
}

// compile runs `llc` to produce dest from src.
func (e *emitter) compile(fileType, src, dest string) {
	report.ReportPhase("emitting " + filepath.Base(dest))

	err := e.prepare(dest)
	if err == nil {
		_, err = e.runner.Run(e.ctx, e.tools.LLC, e.tm.llcArgs(fileType, src, dest)...)
	}

	e.finish(dest, err)
}

func (e *emitter) prepare(dest string) error {
	return os.MkdirAll(filepath.Dir(dest), 0755)
}

func (e *emitter) finish(dest string, err error) {
	if err != nil {
		report.ReportError("could not write `%s`: %s", dest, err)
		return
	}

	size := int64(0)
	if finfo, err := os.Stat(dest); err == nil {
		size = finfo.Size()
	}

	report.ReportOutputWritten(dest, size)
	e.written = append(e.written, dest)
}
