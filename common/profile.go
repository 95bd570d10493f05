package common

import (
	"path/filepath"
	"strings"
)

// BuildProfile is the full configuration surface consumed by the backend.
type BuildProfile struct {
	// SrcPath is the path to the serialized IR document.
	SrcPath string

	// OutputDir is the directory all emitted files are placed in.
	OutputDir string

	Triple   string
	CPU      string
	Features string

	PIC     bool
	Library bool

	// Release controls both the optimization level and whether debug
	// information is emitted.
	Release bool

	// Wasm selects the bytecode target: outputs become a `.wat`/`.wasm` pair.
	Wasm bool

	Verify      bool
	PrintLLVMIR bool
	PrintASM    bool
	EmitObject  bool

	Checks MemoryChecks
}

// MemoryChecks toggles the diagnostic parts of the object memory scheme.
// Refcounting, the live object counter and weak reference cells are always
// generated since the exit postconditions depend on them.
type MemoryChecks struct {
	// ObjectIDs adds an object id field to every control block.
	ObjectIDs bool

	// Census records every live object pointer with the runtime so that
	// double frees and use after frees are caught.
	Census bool
}

// DefaultProfile returns the profile used when none is specified.
func DefaultProfile() *BuildProfile {
	return &BuildProfile{
		OutputDir:  ".",
		CPU:        "generic",
		EmitObject: true,
		Checks: MemoryChecks{
			ObjectIDs: true,
			Census:    true,
		},
	}
}

// BaseName returns the name outputs are derived from: the source file's base
// name with its extension stripped.
func (bp *BuildProfile) BaseName() string {
	base := filepath.Base(bp.SrcPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// OutputPath returns the path of an output file with the given extension.
func (bp *BuildProfile) OutputPath(ext string) string {
	return filepath.Join(bp.OutputDir, bp.BaseName()+"."+ext)
}
