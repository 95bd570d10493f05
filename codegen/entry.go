package codegen

import (
	"strings"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
	"github.com/pkg/errors"

	"github.com/m910q/Vale/common"
	"github.com/m910q/Vale/metal"
	"github.com/m910q/Vale/report"
)

// EntryFunctionName is the symbol of the process entry function.
const EntryFunctionName = "main"

// ErrMissingMain is returned when the program has no entry function.
var ErrMissingMain = errors.Errorf("program has no `%s` function", common.MainFunctionName)

// BuildEntry synthesizes the process entry function.  It calls the program's
// main, asserts that no heap objects and no weak reference cells are
// outstanding, and returns main's result as the exit status.
func (gs *GlobalState) BuildEntry() error {
	gs.requirePhase(PhaseEntry, "building the entry function")
	report.Assert(gs.entry == nil, "entry function built twice")

	mainDef, ok := gs.Program.Functions[common.MainFunctionName]
	if !ok || mainDef.Extern {
		return ErrMissingMain
	}

	proto := mainDef.Prototype
	if len(proto.Params) != 0 {
		return errors.Errorf("`%s` must not take parameters", common.MainFunctionName)
	}

	if !proto.Return.IsVoid() && proto.Return.Kind != metal.KindInt {
		return errors.Errorf("`%s` must return Int or nothing, not %s", common.MainFunctionName, proto.Return.Repr())
	}

	mainFn, ok := gs.functions[irFuncName(mainDef, common.MainFunctionName)]
	report.Assert(ok, "entry built before `%s` was declared", common.MainFunctionName)

	entry := gs.Module.NewFunc(
		EntryFunctionName,
		types.I64,
		ir.NewParam("argc", types.I64),
		ir.NewParam("argv", types.NewPointer(types.I8Ptr)),
	)
	applyEntryConvention(entry, gs.Profile.Triple)

	block := entry.NewBlock("entry")

	var result value.Value = i64(0)
	call := block.NewCall(mainFn)
	if !proto.Return.IsVoid() {
		result = call
	}

	liveObjs := block.NewLoad(types.I64, gs.liveHeapObjCounter)
	block.NewCall(gs.Intrinsic(IntrinsicAssertI64Eq), i64(0), liveObjs)

	numWrcs := block.NewCall(gs.Intrinsic(IntrinsicGetNumWrcs))
	block.NewCall(gs.Intrinsic(IntrinsicAssertI64Eq), i64(0), numWrcs)

	block.NewRet(result)

	gs.entry = entry
	return nil
}

// applyEntryConvention sets the calling convention of the entry function.  The
// platform's stdcall convention and DLL export are only meaningful for 32 bit
// x86 Windows; every other target uses the C convention.
func applyEntryConvention(entry *ir.Func, triple string) {
	if isWin32X86(triple) {
		entry.CallingConv = enum.CallingConvX86StdCall
		entry.DLLStorageClass = enum.DLLStorageClassDLLExport
		return
	}

	entry.CallingConv = enum.CallingConvC
}

func isWin32X86(triple string) bool {
	parts := strings.Split(triple, "-")
	if len(parts) < 3 {
		return false
	}

	switch parts[0] {
	case "i386", "i486", "i586", "i686", "x86":
	default:
		return false
	}

	for _, part := range parts[1:] {
		if strings.HasPrefix(part, "windows") || strings.HasPrefix(part, "win32") {
			return true
		}
	}

	return false
}
