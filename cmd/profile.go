package cmd

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"github.com/m910q/Vale/backend"
	"github.com/m910q/Vale/common"
)

// tomlProfile is a build profile as it is encoded in TOML.  Booleans are
// pointers so that keys left out of the file keep their defaults.
type tomlProfile struct {
	Triple      string      `toml:"triple,omitempty"`
	CPU         string      `toml:"cpu,omitempty"`
	Features    string      `toml:"features,omitempty"`
	OutputDir   string      `toml:"output-dir,omitempty"`
	PIC         *bool       `toml:"pic"`
	Library     *bool       `toml:"library"`
	Release     *bool       `toml:"release"`
	Wasm        *bool       `toml:"wasm"`
	Verify      *bool       `toml:"verify"`
	PrintLLVMIR *bool       `toml:"print-llvmir"`
	PrintASM    *bool       `toml:"print-asm"`
	EmitObject  *bool       `toml:"emit-obj"`
	Checks      *tomlChecks `toml:"checks,omitempty"`
}

// tomlChecks is the `[checks]` table of a profile.
type tomlChecks struct {
	Census    *bool `toml:"census"`
	ObjectIDs *bool `toml:"object-ids"`
}

// buildOptions are the profile settings given on the command line.  Flags can
// only turn settings on.
type buildOptions struct {
	SrcPath     string
	ProfilePath string

	Triple, CPU, Features, OutputDir string

	PIC, Library, Release, Wasm   bool
	Verify, PrintLLVMIR, PrintASM bool
	NoObject, Census, ObjectIDs   bool
}

// loadProfileFile decodes the TOML profile at path.
func loadProfileFile(path string) (*tomlProfile, error) {
	buff, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read build profile")
	}

	tp := &tomlProfile{}
	if err := toml.Unmarshal(buff, tp); err != nil {
		return nil, errors.Wrapf(err, "malformed build profile %s", path)
	}

	return tp, nil
}

// findProfileFile returns the profile to load for a build: the one named on
// the command line or else a profile file sitting next to the IR document.
func findProfileFile(opts *buildOptions) (string, bool) {
	if opts.ProfilePath != "" {
		return opts.ProfilePath, true
	}

	path := filepath.Join(filepath.Dir(opts.SrcPath), common.ProfileFileName)
	if finfo, err := os.Stat(path); err == nil && !finfo.IsDir() {
		return path, true
	}

	return "", false
}

// resolveProfile merges the defaults, the profile file and the command line
// in that order of precedence and validates the result.
func resolveProfile(opts *buildOptions) (*common.BuildProfile, error) {
	if opts.SrcPath == "" {
		return nil, errors.New("no IR document given")
	}

	tp := &tomlProfile{}
	if path, ok := findProfileFile(opts); ok {
		var err error
		if tp, err = loadProfileFile(path); err != nil {
			return nil, err
		}
	}

	bp := common.DefaultProfile()
	bp.SrcPath = opts.SrcPath

	setString(&bp.Triple, tp.Triple, opts.Triple)
	setString(&bp.CPU, tp.CPU, opts.CPU)
	setString(&bp.Features, tp.Features, opts.Features)
	setString(&bp.OutputDir, tp.OutputDir, opts.OutputDir)

	setBool(&bp.PIC, tp.PIC, opts.PIC)
	setBool(&bp.Library, tp.Library, opts.Library)
	setBool(&bp.Release, tp.Release, opts.Release)
	setBool(&bp.Wasm, tp.Wasm, opts.Wasm)
	setBool(&bp.Verify, tp.Verify, opts.Verify)
	setBool(&bp.PrintLLVMIR, tp.PrintLLVMIR, opts.PrintLLVMIR)
	setBool(&bp.PrintASM, tp.PrintASM, opts.PrintASM)
	setBool(&bp.EmitObject, tp.EmitObject, false)
	if opts.NoObject {
		bp.EmitObject = false
	}

	// Memory checks default to on in debug builds only.
	bp.Checks = common.MemoryChecks{ObjectIDs: !bp.Release, Census: !bp.Release}
	if tp.Checks != nil {
		setBool(&bp.Checks.Census, tp.Checks.Census, false)
		setBool(&bp.Checks.ObjectIDs, tp.Checks.ObjectIDs, false)
	}
	bp.Checks.Census = bp.Checks.Census || opts.Census
	bp.Checks.ObjectIDs = bp.Checks.ObjectIDs || opts.ObjectIDs

	if err := validateProfile(bp); err != nil {
		return nil, err
	}

	return bp, nil
}

// validateProfile rejects contradictory settings.
func validateProfile(bp *common.BuildProfile) error {
	if bp.Wasm && bp.Triple != "" && !backend.IsBytecodeTriple(bp.Triple) {
		return errors.Errorf("`wasm` cannot be used with the non-WebAssembly triple `%s`", bp.Triple)
	}

	if !bp.Wasm && backend.IsBytecodeTriple(bp.Triple) {
		bp.Wasm = true
	}

	if bp.OutputDir == "" {
		return errors.New("output directory cannot be empty")
	}

	return nil
}

func setString(dest *string, fromFile, fromCLI string) {
	if fromFile != "" {
		*dest = fromFile
	}

	if fromCLI != "" {
		*dest = fromCLI
	}
}

func setBool(dest *bool, fromFile *bool, fromCLI bool) {
	if fromFile != nil {
		*dest = *fromFile
	}

	if fromCLI {
		*dest = true
	}
}

// -----------------------------------------------------------------------------

// writeDefaultProfile writes a profile file holding the default settings into
// dir.  The `[checks]` table is left out so that the checks follow the build
// mode.
func writeDefaultProfile(dir string) (string, error) {
	path := filepath.Join(dir, common.ProfileFileName)

	if _, err := os.Stat(path); err == nil {
		return "", errors.Errorf("build profile %s already exists", path)
	} else if !os.IsNotExist(err) {
		return "", errors.Wrap(err, "build profile error")
	}

	bp := common.DefaultProfile()
	tp := &tomlProfile{
		CPU:         bp.CPU,
		OutputDir:   bp.OutputDir,
		PIC:         &bp.PIC,
		Library:     &bp.Library,
		Release:     &bp.Release,
		Wasm:        &bp.Wasm,
		Verify:      &bp.Verify,
		PrintLLVMIR: &bp.PrintLLVMIR,
		PrintASM:    &bp.PrintASM,
		EmitObject:  &bp.EmitObject,
	}

	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(err, "failed to create build profile")
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(tp); err != nil {
		return "", errors.Wrap(err, "failed to write build profile")
	}

	return path, nil
}
