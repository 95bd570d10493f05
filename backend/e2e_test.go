package backend

import (
	"bytes"
	"context"
	"debug/elf"
	"encoding/binary"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m910q/Vale/codegen"
	"github.com/m910q/Vale/common"
	"github.com/m910q/Vale/metal"
	"github.com/m910q/Vale/toolchain"
)

// nativeBuild is an executable compiled from a test program and linked
// against the C runtime.
type nativeBuild struct {
	obj, exe string
}

// buildNative compiles testdata/name through the real LLVM tools.  The test
// is skipped when they or a C compiler are unavailable.
func buildNative(t *testing.T, name string) *nativeBuild {
	t.Helper()

	if runtime.GOOS != "linux" {
		t.Skip("native builds are only tested on Linux")
	}

	tools, err := toolchain.Find()
	if err != nil {
		t.Skip(err.Error())
	}

	cc, err := exec.LookPath("cc")
	if err != nil {
		t.Skip("no C compiler available")
	}

	prog, err := metal.LoadProgram(filepath.Join("..", "testdata", name))
	require.NoError(t, err)

	profile := common.DefaultProfile()
	profile.SrcPath = name
	profile.OutputDir = t.TempDir()
	profile.PIC = true
	profile.Verify = true
	profile.Triple = ResolveTriple(profile)

	m, err := codegen.Generate(prog, profile)
	require.NoError(t, err)

	ctx := context.Background()
	b, err := New(ctx, profile, tools, toolchain.ExecRunner{})
	require.NoError(t, err)

	_, err = b.Emit(ctx, m)
	require.NoError(t, err)

	nb := &nativeBuild{
		obj: profile.OutputPath("o"),
		exe: filepath.Join(profile.OutputDir, profile.BaseName()),
	}

	link := exec.Command(cc, "-o", nb.exe, nb.obj, filepath.Join("..", "testdata", "runtime", "runtime.c"))
	out, err := link.CombinedOutput()
	require.NoError(t, err, string(out))

	return nb
}

// run executes the build and returns its exit code and output.
func (nb *nativeBuild) run(t *testing.T) (int, string, string) {
	var stdout, stderr bytes.Buffer
	cmd := exec.Command(nb.exe)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return 0, stdout.String(), stderr.String()
	}

	var exitErr *exec.ExitError
	require.True(t, errors.As(err, &exitErr), err)
	return exitErr.ExitCode(), stdout.String(), stderr.String()
}

func TestNativePointProgram(t *testing.T) {
	nb := buildNative(t, "point.json")

	code, _, stderr := nb.run(t)
	assert.Equal(t, 0, code, stderr)

	f, err := elf.Open(nb.obj)
	require.NoError(t, err)
	defer f.Close()

	syms, err := f.Symbols()
	require.NoError(t, err)

	names := make(map[string]elf.Symbol)
	for _, sym := range syms {
		names[sym.Name] = sym
	}

	assert.Contains(t, names, "vale.Point.area")
	assert.Contains(t, names, "main")

	vtable, ok := names["__vtable.Point.Shape"]
	require.True(t, ok)
	assert.Equal(t, []string{"vale.Point.area"}, relocationTargets(t, f, syms, vtable))
}

// relocationTargets returns the names of the symbols referenced by the
// relocations applied to the data of sym.
func relocationTargets(t *testing.T, f *elf.File, syms []elf.Symbol, sym elf.Symbol) []string {
	if f.Class != elf.ELFCLASS64 {
		t.Skip("relocations are only inspected in 64-bit objects")
	}

	var targets []string
	for _, sec := range f.Sections {
		if sec.Type != elf.SHT_RELA || elf.SectionIndex(sec.Info) != sym.Section {
			continue
		}

		data, err := sec.Data()
		require.NoError(t, err)

		relas := make([]elf.Rela64, len(data)/binary.Size(elf.Rela64{}))
		require.NoError(t, binary.Read(bytes.NewReader(data), f.ByteOrder, relas))

		for _, rela := range relas {
			if rela.Off < sym.Value || rela.Off >= sym.Value+sym.Size {
				continue
			}

			// Symbols omits the null symbol at index 0.
			idx := elf.R_SYM64(rela.Info)
			if idx > 0 && int(idx) <= len(syms) {
				targets = append(targets, syms[idx-1].Name)
			}
		}
	}

	return targets
}

func TestNativeLeakFailsPostcondition(t *testing.T) {
	nb := buildNative(t, "leak.json")

	code, _, stderr := nb.run(t)
	assert.NotEqual(t, 0, code)
	assert.Contains(t, stderr, "Expected 0 but was 1")
}

func TestNativeCensusCatchesDoubleFree(t *testing.T) {
	nb := buildNative(t, "cycle.json")

	code, _, stderr := nb.run(t)
	assert.NotEqual(t, 0, code)
	assert.Contains(t, stderr, "Assertion failed!")
}

func TestNativeFeatures(t *testing.T) {
	nb := buildNative(t, "features.json")

	code, stdout, stderr := nb.run(t)
	assert.Equal(t, 0, code, stderr)
	assert.Equal(t, "truearea=71false", stdout)
}
