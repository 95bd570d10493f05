package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/ComedicChimera/olive"
	"github.com/pkg/errors"

	"github.com/m910q/Vale/backend"
	"github.com/m910q/Vale/codegen"
	"github.com/m910q/Vale/common"
	"github.com/m910q/Vale/metal"
	"github.com/m910q/Vale/report"
	"github.com/m910q/Vale/toolchain"
)

// Execute runs the main `vale` application.
func Execute() {
	cli := newCLI()

	result, err := olive.ParseArgs(cli, os.Args)
	if err != nil {
		report.ReportFatal(common.ExitBadOpts, "usage error: %s", err)
		return
	}

	logLevel := report.LogLevelNames[result.Arguments["loglevel"].(string)]

	subcmdName, subResult, _ := result.Subcommand()
	switch subcmdName {
	case "build":
		execBuildCommand(subResult, logLevel)
	case "init":
		execInitCommand(subResult, logLevel)
	case "version":
		report.ReportInfo("Vale Version", common.ValeVersion)
	}
}

// newCLI builds the command line interface of `vale`.
func newCLI() *olive.Command {
	cli := olive.NewCLI("vale", "vale lowers Vale IR documents to native code", true)
	logLvlArg := cli.AddSelectorArg("loglevel", "ll", "the compiler log level", false, []string{"silent", "error", "warn", "verbose"})
	logLvlArg.SetDefaultValue("verbose")

	buildCmd := cli.AddSubcommand("build", "compile an IR document", true)
	buildCmd.AddPrimaryArg("ir-path", "the path to the IR document to compile", true)
	buildCmd.AddStringArg("triple", "t", "the target triple", false)
	buildCmd.AddStringArg("cpu", "c", "the target CPU", false)
	buildCmd.AddStringArg("features", "f", "the target feature string", false)
	buildCmd.AddStringArg("output-dir", "o", "the directory to write outputs to", false)
	buildCmd.AddStringArg("profile", "p", "the path to a TOML build profile", false)
	buildCmd.AddFlag("pic", "pic", "generate position independent code")
	buildCmd.AddFlag("library", "lib", "build a library (implies --pic)")
	buildCmd.AddFlag("release", "r", "optimize and omit debug information")
	buildCmd.AddFlag("wasm", "w", "target WebAssembly")
	buildCmd.AddFlag("verify", "v", "verify the generated module")
	buildCmd.AddFlag("print-llvmir", "pir", "write the LLVM IR before and after optimization")
	buildCmd.AddFlag("print-asm", "pasm", "write target assembly")
	buildCmd.AddFlag("no-obj", "no", "do not write an object file")
	buildCmd.AddFlag("census", "cen", "track every live object at run time")
	buildCmd.AddFlag("obj-ids", "oid", "give every object a unique id")

	initCmd := cli.AddSubcommand("init", "write a default build profile", true)
	initCmd.AddPrimaryArg("dir", "the directory to write the profile to", false)

	cli.AddSubcommand("version", "print the Vale version", false)

	return cli
}

// buildOptionsFromArgs extracts the build options from a parsed `build`
// command.
func buildOptionsFromArgs(result *olive.ArgParseResult) *buildOptions {
	opts := &buildOptions{
		PIC:         result.HasFlag("pic"),
		Library:     result.HasFlag("library"),
		Release:     result.HasFlag("release"),
		Wasm:        result.HasFlag("wasm"),
		Verify:      result.HasFlag("verify"),
		PrintLLVMIR: result.HasFlag("print-llvmir"),
		PrintASM:    result.HasFlag("print-asm"),
		NoObject:    result.HasFlag("no-obj"),
		Census:      result.HasFlag("census"),
		ObjectIDs:   result.HasFlag("obj-ids"),
	}

	opts.SrcPath, _ = result.PrimaryArg()

	for name, dest := range map[string]*string{
		"triple":     &opts.Triple,
		"cpu":        &opts.CPU,
		"features":   &opts.Features,
		"output-dir": &opts.OutputDir,
		"profile":    &opts.ProfilePath,
	} {
		if val, ok := result.Arguments[name]; ok {
			*dest = val.(string)
		}
	}

	return opts
}

// execBuildCommand executes the build subcommand and handles all errors.
func execBuildCommand(result *olive.ArgParseResult, logLevel int) {
	report.InitReporter(logLevel)
	defer report.CatchErrors()

	profile, err := resolveProfile(buildOptionsFromArgs(result))
	if err != nil {
		report.ReportFatal(common.ExitBadOpts, "%s", err)
		return
	}

	tools, err := toolchain.Find()
	if err != nil {
		report.ReportFatal(common.ExitLLVMSetupFailed, "%s", err)
		return
	}

	reportBuild(context.Background(), profile, tools, toolchain.ExecRunner{})
}

// reportBuild runs Build and reports its outcome.  Failures terminate the
// process with the matching exit code.
func reportBuild(ctx context.Context, profile *common.BuildProfile, tools *toolchain.Tools, runner toolchain.Runner) {
	err := Build(ctx, profile, tools, runner)

	var ie *inputError
	switch {
	case errors.As(err, &ie):
		report.ReportInputError(ie)
	case err != nil:
		report.ReportFatal(ExitCode(err), "%s", err)
	default:
		report.ReportBuildFinished()
		report.ExitIfErrors(common.ExitEmitFailed)
	}
}

// execInitCommand executes the init subcommand.
func execInitCommand(result *olive.ArgParseResult, logLevel int) {
	report.InitReporter(logLevel)

	dir, ok := result.PrimaryArg()
	if !ok {
		dir = "."
	}

	path, err := writeDefaultProfile(dir)
	if err != nil {
		report.ReportFatal(common.ExitBadOpts, "%s", err)
		return
	}

	report.ReportInfo("Profile", fmt.Sprintf("wrote %s", path))
}

// -----------------------------------------------------------------------------

// inputError marks errors caused by the IR document.
type inputError struct {
	err error
}

func (ie *inputError) Error() string {
	return ie.err.Error()
}

func (ie *inputError) Unwrap() error {
	return ie.err
}

// Build runs the whole pipeline for profile: it resolves the target machine,
// loads and lowers the IR document and hands the module to the backend.
func Build(ctx context.Context, profile *common.BuildProfile, tools *toolchain.Tools, runner toolchain.Runner) error {
	profile.Triple = backend.ResolveTriple(profile)
	report.ReportBuildHeader(common.ValeVersion, profile.Triple, profile.Release)

	b, err := backend.New(ctx, profile, tools, runner)
	if err != nil {
		return err
	}

	report.ReportPhase("loading " + profile.SrcPath)
	prog, err := metal.LoadProgram(profile.SrcPath)
	if err != nil {
		return &inputError{err: err}
	}

	m, err := codegen.Generate(prog, profile)
	if err != nil {
		return &inputError{err: err}
	}

	_, err = b.Emit(ctx, m)
	return err
}

// ExitCode maps an error returned by Build onto the process exit code.
func ExitCode(err error) int {
	var ie *inputError

	switch {
	case err == nil:
		return common.ExitSuccess
	case errors.As(err, &ie):
		return common.ExitBadInput
	case errors.Is(err, backend.ErrSetupFailed), errors.Is(err, toolchain.ErrToolNotFound):
		return common.ExitLLVMSetupFailed
	case errors.Is(err, backend.ErrVerifyFailed):
		return common.ExitVerifyFailed
	default:
		return common.ExitInternalError
	}
}
