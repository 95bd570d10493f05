package codegen

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/llir/llvm/asm"
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m910q/Vale/common"
	"github.com/m910q/Vale/metal"
	"github.com/m910q/Vale/report"
)

func TestMain(m *testing.M) {
	report.InitReporter(report.LogLevelSilent)
	os.Exit(m.Run())
}

func testProfile(src string) *common.BuildProfile {
	bp := common.DefaultProfile()
	bp.SrcPath = src
	bp.Triple = "x86_64-pc-linux-gnu"
	return bp
}

func loadTestProgram(t *testing.T, name string) *metal.Program {
	prog, err := metal.LoadProgram(filepath.Join("..", "testdata", name))
	require.NoError(t, err)
	return prog
}

func parseTestProgram(t *testing.T, doc string) *metal.Program {
	prog, err := metal.ParseProgram([]byte(doc))
	require.NoError(t, err)
	return prog
}

// requireICE asserts that f raises an internal compiler error.
func requireICE(t *testing.T, f func()) {
	t.Helper()

	defer func() {
		x := recover()
		require.NotNil(t, x, "expected an internal error")
		_, ok := x.(*report.InternalError)
		require.True(t, ok, "expected an internal error, got %v", x)
	}()

	f()
}

// generateAndParse generates a module and checks that the LLVM assembly
// parser accepts its textual form.
func generateAndParse(t *testing.T, prog *metal.Program, profile *common.BuildProfile) *GlobalState {
	t.Helper()

	gs := NewGlobalState(prog, profile)
	require.NoError(t, gs.Run())

	_, err := asm.ParseString(profile.SrcPath, gs.Module.String())
	require.NoError(t, err, gs.Module.String())
	return gs
}

// -----------------------------------------------------------------------------

func TestControlBlocksShareAPrefix(t *testing.T) {
	for _, checks := range []common.MemoryChecks{
		{ObjectIDs: true, Census: true},
		{ObjectIDs: true, Census: false},
		{ObjectIDs: false, Census: true},
		{ObjectIDs: false, Census: false},
	} {
		ol := BuildObjectLayout(ir.NewModule(), checks)

		w, nw := ol.Weakable, ol.NonWeakable
		assert.Equal(t, nw.TypeStrIndex, w.TypeStrIndex)
		assert.Equal(t, nw.ObjIDIndex, w.ObjIDIndex)
		assert.Equal(t, nw.RcIndex, w.RcIndex)

		assert.Equal(t, int64(-1), nw.WrciIndex)
		assert.Equal(t, int64(len(w.Type.Fields)-1), w.WrciIndex)
		assert.Equal(t, len(nw.Type.Fields)+1, len(w.Type.Fields))

		for i, field := range nw.Type.Fields {
			assert.True(t, field.Equal(w.Type.Fields[i]))
		}

		if checks.ObjectIDs {
			assert.Equal(t, int64(1), w.ObjIDIndex)
		} else {
			assert.Equal(t, int64(-1), w.ObjIDIndex)
		}
	}
}

func TestDivergentControlBlocksAbort(t *testing.T) {
	m := ir.NewModule()
	withIDs := newControlBlock(m, "a", common.MemoryChecks{ObjectIDs: true}, true)
	withoutIDs := newControlBlock(m, "b", common.MemoryChecks{}, false)

	requireICE(t, func() { assertSharedPrefix(withIDs, withoutIDs) })
}

func TestStringLayout(t *testing.T) {
	ol := BuildObjectLayout(ir.NewModule(), common.MemoryChecks{ObjectIDs: true})

	require.Len(t, ol.StrInner.Fields, 2)
	assert.True(t, ol.StrInner.Fields[0].Equal(types.I64))
	assert.True(t, ol.StrInner.Fields[1].Equal(types.NewArray(0, types.I8)))

	require.Len(t, ol.StrWrapper.Fields, 2)
	assert.True(t, ol.StrWrapper.Fields[0].Equal(ol.NonWeakable.Type))
	assert.True(t, ol.StrWrapper.Fields[1].Equal(ol.StrInner))
}

func TestIntrinsicsDeclaredOnce(t *testing.T) {
	gs := NewGlobalState(&metal.Program{}, testProfile("x.json"))

	requireICE(t, func() { gs.Intrinsic(IntrinsicMalloc) })

	gs.DeclareIntrinsics()
	gs.DeclareIntrinsics()

	assert.Len(t, gs.Module.Funcs, int(numIntrinsics))
	assert.Equal(t, "__vassertI64Eq", gs.Intrinsic(IntrinsicAssertI64Eq).Name())
	assert.Equal(t, "__getNumWrcs", gs.Intrinsic(IntrinsicGetNumWrcs).Name())
	assert.True(t, gs.Intrinsic(IntrinsicCensusContains).Sig.RetType.Equal(types.I1))
	assert.True(t, gs.Intrinsic(IntrinsicAllocWrc).Sig.RetType.Equal(types.I64))
}

func TestPhaseOrderIsEnforced(t *testing.T) {
	prog := loadTestProgram(t, "point.json")
	gs := NewGlobalState(prog, testProfile("point.json"))

	// Phases cannot be skipped.
	requireICE(t, func() { gs.EnterPhase(PhaseDeclareStructs) })

	gs.EnterPhase(PhaseSetup)
	gs.Setup()

	// Struct translation before declaration is rejected.
	requireICE(t, func() { gs.TranslateStruct(prog.Structs["Point"]) })

	gs.EnterPhase(PhaseDeclareStructs)
	gs.DeclareStruct(prog.Structs["Point"])
	requireICE(t, func() { gs.DeclareStruct(prog.Structs["Point"]) })

	// Phases cannot be repeated.
	requireICE(t, func() { gs.EnterPhase(PhaseDeclareStructs) })
}

func TestStructTypesCreatedOnce(t *testing.T) {
	gs := generateAndParse(t, loadTestProgram(t, "point.json"), testProfile("point.json"))

	count := 0
	for _, td := range gs.Module.TypeDefs {
		if td.Name() == "Point.rc" {
			count++
		}
	}
	assert.Equal(t, 1, count)

	wrapper := gs.StructType("Point")
	area, ok := gs.Function("Point.area")
	require.True(t, ok)

	param, ok := area.Sig.Params[0].(*types.PointerType)
	require.True(t, ok)
	assert.Same(t, wrapper, param.ElemType)

	inner, ok := wrapper.Fields[1].(*types.StructType)
	require.True(t, ok)
	assert.Equal(t, "Point", inner.Name())
	assert.False(t, inner.Opaque)
	assert.Len(t, inner.Fields, 2)
}

func TestMutuallyRecursiveDefinitions(t *testing.T) {
	gs := generateAndParse(t, loadTestProgram(t, "cycle.json"), testProfile("cycle.json"))

	for _, td := range gs.Module.TypeDefs {
		if st, ok := td.(*types.StructType); ok {
			assert.False(t, st.Opaque, td.Name())
		}
	}

	aInner, ok := gs.StructType("A").Fields[1].(*types.StructType)
	require.True(t, ok)
	bPtr, ok := aInner.Fields[1].(*types.PointerType)
	require.True(t, ok)
	assert.Same(t, gs.StructType("B"), bPtr.ElemType)

	bInner, ok := gs.StructType("B").Fields[1].(*types.StructType)
	require.True(t, ok)
	weakA, ok := bInner.Fields[0].(*types.StructType)
	require.True(t, ok)
	assert.Equal(t, "A.w", weakA.Name())
	assert.Same(t, gs.InterfaceType("Link"), bInner.Fields[1])

	vt, ok := gs.Vtable("B", "Link")
	require.True(t, ok)
	assert.NotNil(t, vt.Init)
}

const twoMethodProgram = `{
  "structs": [{
    "name": "Circle",
    "members": [{"name": "r", "type": {"kind": "Int"}}],
    "edges": [{"interface": "Shape", "methods": ["zzz.perimeter", "aaa.scale"]}]
  }],
  "interfaces": [{
    "name": "Shape",
    "methods": [
      {"name": "perimeter", "params": [], "return": {"kind": "Int"}},
      {"name": "scale", "params": [{"kind": "Int"}], "return": {"kind": "Bool"}}
    ]
  }],
  "functions": [
    {
      "prototype": {"name": "zzz.perimeter", "params": [{"kind": "Struct", "name": "Circle", "ownership": "borrow"}], "return": {"kind": "Int"}},
      "block": {"__type": "ConstantInt", "value": 6}
    },
    {
      "prototype": {"name": "aaa.scale", "params": [{"kind": "Struct", "name": "Circle", "ownership": "borrow"}, {"kind": "Int"}], "return": {"kind": "Bool"}},
      "block": {"__type": "ConstantBool", "value": true}
    },
    {
      "prototype": {"name": "main", "params": [], "return": {"kind": "Void"}},
      "block": {"__type": "Block", "exprs": []}
    }
  ]
}`

func TestVtableFollowsInterfaceMethodOrder(t *testing.T) {
	gs := generateAndParse(t, parseTestProgram(t, twoMethodProgram), testProfile("circle.json"))

	vt, ok := gs.Vtable("Circle", "Shape")
	require.True(t, ok)
	assert.Equal(t, "__vtable.Circle.Shape", vt.Name())

	init, ok := vt.Init.(*constant.Struct)
	require.True(t, ok)
	require.Len(t, init.Fields, 2)

	itable := gs.interfaceHandle("Shape").itable
	for i, name := range []string{"zzz.perimeter", "aaa.scale"} {
		cast, ok := init.Fields[i].(*constant.ExprBitCast)
		require.True(t, ok)

		fn, ok := gs.Function(name)
		require.True(t, ok)
		assert.Same(t, fn, cast.From)
		assert.True(t, cast.To.Equal(itable.Fields[i]))

		// The slot takes the receiver as an i8* followed by the method's
		// parameters.
		slot := itable.Fields[i].(*types.PointerType).ElemType.(*types.FuncType)
		assert.Equal(t, len(fn.Sig.Params), len(slot.Params))
		assert.True(t, slot.Params[0].Equal(types.I8Ptr))
		assert.True(t, slot.RetType.Equal(fn.Sig.RetType))
	}
}

func TestMismatchedImplementationIsRejected(t *testing.T) {
	doc := strings.Replace(twoMethodProgram, `"return": {"kind": "Bool"}},
      "block"`, `"return": {"kind": "Int"}},
      "block"`, 1)
	doc = strings.Replace(doc, `{"__type": "ConstantBool", "value": true}`, `{"__type": "ConstantInt", "value": 1}`, 1)

	_, err := Generate(parseTestProgram(t, doc), testProfile("circle.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returns the wrong type")
}

func TestDuplicateFunctionIsRejected(t *testing.T) {
	prog := loadTestProgram(t, "point.json")
	gs := NewGlobalState(prog, testProfile("point.json"))

	gs.EnterPhase(PhaseSetup)
	gs.Setup()
	gs.EnterPhase(PhaseDeclareStructs)
	gs.DeclareStruct(prog.Structs["Point"])
	gs.EnterPhase(PhaseDeclareInterfaces)
	gs.DeclareInterface(prog.Interfaces["Shape"])
	gs.EnterPhase(PhaseTranslateStructs)
	gs.TranslateStruct(prog.Structs["Point"])
	gs.EnterPhase(PhaseTranslateInterfaces)
	gs.TranslateInterface(prog.Interfaces["Shape"])
	gs.EnterPhase(PhaseDeclareEdges)
	gs.EnterPhase(PhaseDeclareFunctions)

	area := prog.Functions["Point.area"]
	fn, err := gs.DeclareFunction(area)
	require.NoError(t, err)
	assert.Empty(t, fn.Blocks)

	_, err = gs.DeclareFunction(area)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateFunction))
}

func TestReservedExternsAreRejected(t *testing.T) {
	const doc = `{"functions": [
		{"prototype": {"name": "%s", "params": [], "return": {"kind": "Int"}}, "extern": true},
		{"prototype": {"name": "run", "params": [], "return": {"kind": "Int"}},
		 "block": {"__type": "ConstantInt", "value": 0}}
	]}`

	for _, name := range []string{
		LiveHeapObjCounterName,
		ObjIDCounterName,
		"__vtable.Point.Shape",
		"__tname.0",
		IntrinsicName(IntrinsicMalloc),
		EntryFunctionName,
	} {
		prog := parseTestProgram(t, strings.Replace(doc, "%s", name, 1))
		err := NewGlobalState(prog, testProfile("reserved.json")).Run()
		if assert.Error(t, err, name) {
			assert.Contains(t, err.Error(), "collides with a runtime symbol", name)
		}
	}
}

func TestTranslatedBodyMatchesSignature(t *testing.T) {
	gs := generateAndParse(t, loadTestProgram(t, "point.json"), testProfile("point.json"))

	fn, ok := gs.Function("Point.area")
	require.True(t, ok)
	assert.Equal(t, "vale.Point.area", fn.Name())
	require.NotEmpty(t, fn.Blocks)

	require.Len(t, fn.Params, 1)
	assert.True(t, fn.Params[0].Type().Equal(types.NewPointer(gs.StructType("Point"))))
	assert.True(t, fn.Sig.RetType.Equal(types.I64))

	ret, ok := fn.Blocks[len(fn.Blocks)-1].Term.(*ir.TermRet)
	require.True(t, ok)
	assert.True(t, ret.X.Type().Equal(types.I64))
}

func TestEntryChecksPostconditions(t *testing.T) {
	gs := generateAndParse(t, loadTestProgram(t, "point.json"), testProfile("point.json"))

	entry := gs.Entry()
	require.NotNil(t, entry)
	assert.Equal(t, EntryFunctionName, entry.Name())
	assert.True(t, entry.Sig.RetType.Equal(types.I64))
	require.Len(t, entry.Sig.Params, 2)
	assert.True(t, entry.Sig.Params[0].Equal(types.I64))
	assert.True(t, entry.Sig.Params[1].Equal(types.NewPointer(types.I8Ptr)))
	assert.Equal(t, enum.CallingConvC, entry.CallingConv)

	require.Len(t, entry.Blocks, 1)
	var callees []string
	for _, inst := range entry.Blocks[0].Insts {
		if call, ok := inst.(*ir.InstCall); ok {
			callees = append(callees, call.Callee.(*ir.Func).Name())
		}
	}

	assert.Equal(t, []string{"vale.main", "__vassertI64Eq", "__getNumWrcs", "__vassertI64Eq"}, callees)

	ret, ok := entry.Blocks[0].Term.(*ir.TermRet)
	require.True(t, ok)
	_, returnsMain := ret.X.(*ir.InstCall)
	assert.True(t, returnsMain)
}

func TestEntryConvention(t *testing.T) {
	for triple, stdcall := range map[string]bool{
		"i686-pc-windows-msvc":     true,
		"i386-pc-win32":            true,
		"x86_64-pc-windows-msvc":   false,
		"x86_64-pc-linux-gnu":      false,
		"wasm32-unknown-unknown":   false,
		"aarch64-apple-darwin20.1": false,
	} {
		fn := ir.NewFunc("main", types.I64)
		applyEntryConvention(fn, triple)

		if stdcall {
			assert.Equal(t, enum.CallingConvX86StdCall, fn.CallingConv, triple)
			assert.Equal(t, enum.DLLStorageClassDLLExport, fn.DLLStorageClass, triple)
		} else {
			assert.Equal(t, enum.CallingConvC, fn.CallingConv, triple)
		}
	}
}

func TestMissingMainIsAnInputError(t *testing.T) {
	prog := parseTestProgram(t, `{"functions": [{
		"prototype": {"name": "helper", "params": [], "return": {"kind": "Int"}},
		"block":     {"__type": "ConstantInt", "value": 1}
	}]}`)

	_, err := Generate(prog, testProfile("helper.json"))
	assert.Equal(t, ErrMissingMain, err)
}

func TestGeneratedModulesParse(t *testing.T) {
	for _, name := range []string{"point.json", "leak.json", "features.json", "cycle.json"} {
		for _, release := range []bool{false, true} {
			for _, checks := range []common.MemoryChecks{{ObjectIDs: true, Census: true}, {}} {
				profile := testProfile(name)
				profile.Release = release
				profile.Checks = checks

				generateAndParse(t, loadTestProgram(t, name), profile)
			}
		}
	}
}

func TestDebugInfoOnlyInDebugBuilds(t *testing.T) {
	prog := loadTestProgram(t, "point.json")

	debug := generateAndParse(t, prog, testProfile("point.json"))
	assert.Contains(t, debug.Module.NamedMetadataDefs, "llvm.dbg.cu")
	assert.Contains(t, debug.Module.String(), "DICompileUnit")

	profile := testProfile("point.json")
	profile.Release = true
	release := generateAndParse(t, prog, profile)
	assert.Empty(t, release.Module.NamedMetadataDefs)
}

func TestCensusCallsFollowChecks(t *testing.T) {
	prog := loadTestProgram(t, "point.json")

	withCensus := generateAndParse(t, prog, testProfile("point.json")).Module.String()
	assert.Contains(t, withCensus, "call void @__vcensusAdd")
	assert.Contains(t, withCensus, "call void @__vcensusRemove")

	profile := testProfile("point.json")
	profile.Checks = common.MemoryChecks{}
	without := generateAndParse(t, prog, profile).Module.String()
	assert.NotContains(t, without, "call void @__vcensusAdd")
	assert.NotContains(t, without, "load i64, i64* @__objIdCounter")
	assert.Contains(t, without, "@__liveHeapObjCounter")
}

func TestBodyErrorsAreReported(t *testing.T) {
	prog := parseTestProgram(t, `{"functions": [{
		"prototype": {"name": "main", "params": [], "return": {"kind": "Int"}},
		"block":     {"__type": "Return", "source": {"__type": "ConstantBool", "value": true}}
	}]}`)

	_, err := Generate(prog, testProfile("main.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "in function `main`")
	assert.Contains(t, err.Error(), "returned Bool from a function returning Int")
}

// recordingTranslator emits a trivial body and records which functions it
// was asked to lower.
type recordingTranslator struct {
	lowered []string
}

func (rt *recordingTranslator) TranslateBody(gs *GlobalState, fdef *metal.FunctionDefinition, fn *ir.Func) error {
	rt.lowered = append(rt.lowered, fdef.Prototype.Name)

	block := fn.NewBlock("")
	if fdef.Prototype.Return.IsVoid() {
		block.NewRet(nil)
	} else {
		block.NewRet(constant.NewZeroInitializer(fn.Sig.RetType))
	}

	return nil
}

func TestExprTranslatorIsPluggable(t *testing.T) {
	prog := loadTestProgram(t, "point.json")
	gs := NewGlobalState(prog, testProfile("point.json"))

	rt := &recordingTranslator{}
	gs.Exprs = rt
	require.NoError(t, gs.Run())

	assert.Equal(t, []string{"Point.area", "main"}, rt.lowered)
	assert.Equal(t, PhaseDone, gs.Phase())
}
