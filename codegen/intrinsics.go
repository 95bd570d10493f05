package codegen

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"

	"github.com/m910q/Vale/report"
)

// Intrinsic identifies a routine provided by the runtime the generated code is
// linked against.  The names and signatures below are the ABI between compiled
// programs and that runtime: they must never change.
type Intrinsic int

// Enumeration of runtime intrinsics.
const (
	IntrinsicMalloc Intrinsic = iota
	IntrinsicFree
	IntrinsicExit
	IntrinsicAssert
	IntrinsicAssertI64Eq
	IntrinsicFlareI64
	IntrinsicPrintCStr
	IntrinsicGetChar
	IntrinsicPrintI64
	IntrinsicPrintBool
	IntrinsicInitStr
	IntrinsicAddStr
	IntrinsicEqStr
	IntrinsicPrintStr
	IntrinsicIntToCStr
	IntrinsicStrlen
	IntrinsicCensusContains
	IntrinsicCensusAdd
	IntrinsicCensusRemove
	IntrinsicAllocWrc
	IntrinsicIncrementWrc
	IntrinsicDecrementWrc
	IntrinsicWrcIsLive
	IntrinsicMarkWrcDead
	IntrinsicGetNumWrcs

	numIntrinsics
)

// intrinsicSig describes one runtime routine.  Pointer parameters that refer
// to managed strings use the inner string type, which only exists after the
// object layout is built, so signatures are produced by a function.
type intrinsicSig struct {
	name string
	sig  func(strPtr types.Type) (ret types.Type, params []types.Type)
}

func sig(ret types.Type, params ...types.Type) func(types.Type) (types.Type, []types.Type) {
	return func(types.Type) (types.Type, []types.Type) { return ret, params }
}

var intrinsicTable = [numIntrinsics]intrinsicSig{
	IntrinsicMalloc:      {"malloc", sig(types.I8Ptr, types.I64)},
	IntrinsicFree:        {"free", sig(types.Void, types.I8Ptr)},
	IntrinsicExit:        {"exit", sig(types.Void, types.I8)},
	IntrinsicAssert:      {"__vassert", sig(types.Void, types.I1)},
	IntrinsicAssertI64Eq: {"__vassertI64Eq", sig(types.Void, types.I64, types.I64)},
	IntrinsicFlareI64:    {"__vflare_i64", sig(types.Void, types.I64, types.I64)},
	IntrinsicPrintCStr:   {"__vprintCStr", sig(types.Void, types.I8Ptr)},
	IntrinsicGetChar:     {"getchar", sig(types.I64)},
	IntrinsicPrintI64:    {"__vprintI64", sig(types.Void, types.I64)},
	IntrinsicPrintBool:   {"__vprintBool", sig(types.Void, types.I1)},
	IntrinsicInitStr: {"__vinitStr", func(str types.Type) (types.Type, []types.Type) {
		return types.Void, []types.Type{str, types.I8Ptr}
	}},
	IntrinsicAddStr: {"__vaddStr", func(str types.Type) (types.Type, []types.Type) {
		return types.Void, []types.Type{str, str, str}
	}},
	IntrinsicEqStr: {"__veqStr", func(str types.Type) (types.Type, []types.Type) {
		return types.I8, []types.Type{str, str}
	}},
	IntrinsicPrintStr: {"__vprintStr", func(str types.Type) (types.Type, []types.Type) {
		return types.Void, []types.Type{str}
	}},
	IntrinsicIntToCStr:      {"__vintToCStr", sig(types.Void, types.I64, types.I8Ptr, types.I64)},
	IntrinsicStrlen:         {"strlen", sig(types.I64, types.I8Ptr)},
	IntrinsicCensusContains: {"__vcensusContains", sig(types.I1, types.I8Ptr)},
	IntrinsicCensusAdd:      {"__vcensusAdd", sig(types.Void, types.I8Ptr)},
	IntrinsicCensusRemove:   {"__vcensusRemove", sig(types.Void, types.I8Ptr)},
	IntrinsicAllocWrc:       {"__allocWrc", sig(types.I64)},
	IntrinsicIncrementWrc:   {"__incrementWrc", sig(types.Void, types.I64)},
	IntrinsicDecrementWrc:   {"__decrementWrc", sig(types.Void, types.I64)},
	IntrinsicWrcIsLive:      {"__wrcIsLive", sig(types.I1, types.I64)},
	IntrinsicMarkWrcDead:    {"__markWrcDead", sig(types.Void, types.I64)},
	IntrinsicGetNumWrcs:     {"__getNumWrcs", sig(types.I64)},
}

// IntrinsicName returns the runtime symbol name of an intrinsic.
func IntrinsicName(id Intrinsic) string {
	return intrinsicTable[id].name
}

// isIntrinsicName returns whether name is taken by a runtime intrinsic.
func isIntrinsicName(name string) bool {
	for _, entry := range intrinsicTable {
		if entry.name == name {
			return true
		}
	}

	return false
}

// DeclareIntrinsics declares every runtime intrinsic in the module.  Calling it
// more than once has no effect.  The string intrinsics reference the managed
// string layout, so the inner string type is declared here if it does not
// exist yet.
func (gs *GlobalState) DeclareIntrinsics() {
	if gs.intrinsics != nil {
		return
	}

	strPtr := types.NewPointer(strInnerType(gs.Module))

	gs.intrinsics = make(map[Intrinsic]*ir.Func, numIntrinsics)
	for id, entry := range intrinsicTable {
		for _, fn := range gs.Module.Funcs {
			report.Assert(fn.Name() != entry.name, "runtime intrinsic `%s` declared twice", entry.name)
		}

		ret, paramTypes := entry.sig(strPtr)
		params := make([]*ir.Param, len(paramTypes))
		for i, pt := range paramTypes {
			params[i] = ir.NewParam("", pt)
		}

		gs.intrinsics[Intrinsic(id)] = gs.Module.NewFunc(entry.name, ret, params...)
	}
}

// Intrinsic returns the declaration of a runtime intrinsic.
func (gs *GlobalState) Intrinsic(id Intrinsic) *ir.Func {
	report.Assert(gs.intrinsics != nil, "runtime intrinsic `%s` queried before intrinsics were declared", IntrinsicName(id))
	return gs.intrinsics[id]
}
