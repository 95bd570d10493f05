package backend

import (
	"regexp"
	"runtime"
	"strings"

	"github.com/pkg/errors"

	"github.com/m910q/Vale/common"
)

// WasmTriple is the triple used for bytecode builds when none is given.
const WasmTriple = "wasm32-unknown-unknown"

// TargetMachine describes the machine code is generated for.
type TargetMachine struct {
	// Triple is the full target triple.
	Triple string

	// Target is the name `llc` registers the triple's architecture under.
	Target string

	CPU      string
	Features string

	// PIC selects position independent code.  Libraries are always PIC.
	PIC bool

	// Release selects aggressive optimization.
	Release bool
}

var hostArchs = map[string]string{
	"amd64":   "x86_64",
	"386":     "i686",
	"arm64":   "aarch64",
	"arm":     "armv7",
	"riscv64": "riscv64",
	"ppc64le": "powerpc64le",
	"wasm":    "wasm32",
}

var hostVendorOS = map[string]string{
	"linux":   "unknown-linux-gnu",
	"darwin":  "apple-darwin",
	"windows": "pc-windows-msvc",
	"freebsd": "unknown-freebsd",
	"netbsd":  "unknown-netbsd",
	"openbsd": "unknown-openbsd",
}

// HostTriple returns the triple of the machine running the compiler.
func HostTriple() string {
	arch, ok := hostArchs[runtime.GOARCH]
	if !ok {
		arch = runtime.GOARCH
	}

	vendorOS, ok := hostVendorOS[runtime.GOOS]
	if !ok {
		vendorOS = "unknown-" + runtime.GOOS
	}

	return arch + "-" + vendorOS
}

// ResolveTriple returns the triple a profile builds for.
func ResolveTriple(profile *common.BuildProfile) string {
	switch {
	case profile.Triple != "":
		return profile.Triple
	case profile.Wasm:
		return WasmTriple
	default:
		return HostTriple()
	}
}

// IsBytecodeTriple returns whether triple names a WebAssembly target.
func IsBytecodeTriple(triple string) bool {
	return strings.HasPrefix(triple, "wasm")
}

var x86Arch = regexp.MustCompile(`^i[3-6]86$`)

// targetName maps the architecture of a triple onto the name of the `llc`
// target that implements it.
func targetName(triple string) string {
	arch := strings.SplitN(triple, "-", 2)[0]

	switch {
	case arch == "x86_64" || arch == "amd64":
		return "x86-64"
	case x86Arch.MatchString(arch):
		return "x86"
	case arch == "arm64":
		return "aarch64"
	case strings.HasPrefix(arch, "thumb"):
		return "thumb"
	case strings.HasPrefix(arch, "armv"):
		return "arm"
	default:
		return arch
	}
}

// NewTargetMachine resolves the target machine for a profile.  registered
// lists the targets available to `llc`; a triple whose architecture is not
// among them is rejected.
func NewTargetMachine(profile *common.BuildProfile, registered []string) (*TargetMachine, error) {
	triple := ResolveTriple(profile)
	target := targetName(triple)

	found := false
	for _, name := range registered {
		if name == target {
			found = true
			break
		}
	}

	if !found {
		return nil, &stageError{
			stage: ErrSetupFailed,
			diag:  errors.Errorf("no registered target `%s` for triple `%s`", target, triple),
		}
	}

	cpu := profile.CPU
	if cpu == "" {
		cpu = "generic"
	}

	return &TargetMachine{
		Triple:   triple,
		Target:   target,
		CPU:      cpu,
		Features: profile.Features,
		PIC:      profile.PIC || profile.Library,
		Release:  profile.Release,
	}, nil
}

// IsWindows returns whether the target is a Windows platform.
func (tm *TargetMachine) IsWindows() bool {
	return strings.Contains(tm.Triple, "windows") || strings.Contains(tm.Triple, "win32") || strings.Contains(tm.Triple, "mingw")
}

// IsBytecode returns whether the target emits WebAssembly.
func (tm *TargetMachine) IsBytecode() bool {
	return IsBytecodeTriple(tm.Triple)
}

// AsmExt returns the extension of assembly output.
func (tm *TargetMachine) AsmExt() string {
	switch {
	case tm.IsBytecode():
		return "wat"
	case tm.IsWindows():
		return "asm"
	default:
		return "s"
	}
}

// ObjExt returns the extension of object output.
func (tm *TargetMachine) ObjExt() string {
	switch {
	case tm.IsBytecode():
		return "wasm"
	case tm.IsWindows():
		return "obj"
	default:
		return "o"
	}
}

// OptPasses returns the optimization pipeline passed to `opt`.
func (tm *TargetMachine) OptPasses() string {
	passes := "function(mem2reg,instcombine,reassociate,gvn,simplifycfg)"
	if tm.Release {
		passes += ",cgscc(inline)"
	}

	return passes
}

func (tm *TargetMachine) optLevel() string {
	if tm.Release {
		return "-O3"
	}

	return "-O0"
}

// llcArgs returns the arguments that make `llc` compile in to out.
// fileType is either `asm` or `obj`.
func (tm *TargetMachine) llcArgs(fileType, in, out string) []string {
	args := []string{
		"-mtriple=" + tm.Triple,
		"-mcpu=" + tm.CPU,
	}

	if tm.Features != "" {
		args = append(args, "-mattr="+tm.Features)
	}

	args = append(args, tm.optLevel())

	if tm.PIC {
		args = append(args, "-relocation-model=pic")
	}

	return append(args, "-filetype="+fileType, "-o", out, in)
}
