package codegen

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"

	"github.com/m910q/Vale/common"
	"github.com/m910q/Vale/metal"
	"github.com/m910q/Vale/report"
)

// Phase is a step of module generation.  Phases must be entered strictly in
// their declared order: each one depends on the handles created by the ones
// before it.
type Phase int

// Enumeration of phases.
const (
	phaseCreated Phase = iota
	PhaseSetup
	PhaseDeclareStructs
	PhaseDeclareInterfaces
	PhaseTranslateStructs
	PhaseTranslateInterfaces
	PhaseDeclareEdges
	PhaseDeclareFunctions
	PhaseTranslateEdges
	PhaseTranslateFunctions
	PhaseEntry
	PhaseDone
)

var phaseNames = [...]string{
	"created",
	"setup",
	"declare structs",
	"declare interfaces",
	"translate structs",
	"translate interfaces",
	"declare edges",
	"declare functions",
	"translate edges",
	"translate functions",
	"build entry",
	"done",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("Phase(%d)", int(p))
	}

	return phaseNames[p]
}

// GlobalState is the compilation context.  It owns the module being built and
// every handle created while lowering a program into it.  It is created once
// per compilation and mutated only by the phase operations, in phase order.
type GlobalState struct {
	// The module being generated.
	Module *ir.Module

	// The program being lowered.
	Program *metal.Program

	// The build configuration.
	Profile *common.BuildProfile

	// The collaborator used to lower function bodies.
	Exprs ExprTranslator

	// The current phase.
	phase Phase

	// The runtime intrinsics: nil until they are declared.
	intrinsics map[Intrinsic]*ir.Func

	// The control block and string layouts: nil until setup.
	layout *ObjectLayout

	// The process-wide counters embedded in the generated program.
	liveHeapObjCounter *ir.Global
	objIDCounter       *ir.Global

	// The lowered type handles keyed by definition name.
	structs    map[string]*structHandles
	interfaces map[string]*interfaceHandles

	// The vtable globals keyed by struct then interface name.
	vtables map[string]map[string]*ir.Global

	// The declared functions keyed by IR name.
	functions map[string]*ir.Func

	// The process entry function: nil until built.
	entry *ir.Func

	// The C string constants keyed by their contents.
	cstrings map[string]*ir.Global
}

// structHandles holds the lowered types of one struct.
type structHandles struct {
	def *metal.StructDefinition

	// inner is the struct's members only.
	inner *types.StructType

	// wrapper is the heap object: a control block followed by inner.
	wrapper *types.StructType

	// weakRef is the representation of a weak reference to this struct.  It
	// is nil for non-weakable structs.
	weakRef *types.StructType

	// typeTag is the C string naming the struct stored in every control block.
	typeTag *ir.Global
}

// interfaceHandles holds the lowered types of one interface.
type interfaceHandles struct {
	def *metal.InterfaceDefinition

	// ref is an interface reference: an object pointer and a vtable pointer.
	ref *types.StructType

	// itable is the vtable shape: one function pointer per method.
	itable *types.StructType

	// methods are the signatures of the vtable slots in method order.
	methods []*types.FuncType
}

// NewGlobalState creates a new compilation context for the given program.
func NewGlobalState(prog *metal.Program, profile *common.BuildProfile) *GlobalState {
	mod := ir.NewModule()
	mod.SourceFilename = profile.SrcPath
	mod.TargetTriple = profile.Triple

	return &GlobalState{
		Module:     mod,
		Program:    prog,
		Profile:    profile,
		Exprs:      NewExprTranslator(),
		phase:      phaseCreated,
		structs:    make(map[string]*structHandles),
		interfaces: make(map[string]*interfaceHandles),
		vtables:    make(map[string]map[string]*ir.Global),
		functions:  make(map[string]*ir.Func),
		cstrings:   make(map[string]*ir.Global),
	}
}

// Phase returns the current phase of the context.
func (gs *GlobalState) Phase() Phase {
	return gs.phase
}

// EnterPhase moves the context into the next phase.  Skipping or repeating a
// phase is an internal error.
func (gs *GlobalState) EnterPhase(p Phase) {
	report.Assert(
		p == gs.phase+1,
		"cannot enter phase `%s` from phase `%s`", p, gs.phase,
	)

	gs.phase = p
}

// requirePhase asserts that the context is in the given phase.
func (gs *GlobalState) requirePhase(p Phase, op string) {
	report.Assert(
		gs.phase == p,
		"%s must run during phase `%s` but the context is in phase `%s`", op, p, gs.phase,
	)
}

// Layout returns the object layout built during setup.
func (gs *GlobalState) Layout() *ObjectLayout {
	report.Assert(gs.layout != nil, "object layout queried before setup")
	return gs.layout
}

// Function returns the declared function with the given IR name.
func (gs *GlobalState) Function(name string) (*ir.Func, bool) {
	fn, ok := gs.functions[irFuncName(gs.Program.Functions[name], name)]
	return fn, ok
}

// Entry returns the process entry function.
func (gs *GlobalState) Entry() *ir.Func {
	return gs.entry
}

// Vtable returns the vtable global for the edge from a struct to an interface.
func (gs *GlobalState) Vtable(structName, ifaceName string) (*ir.Global, bool) {
	vt, ok := gs.vtables[structName][ifaceName]
	return vt, ok
}

// -----------------------------------------------------------------------------

// Setup declares the runtime intrinsics, builds the object layouts, creates
// the global counters and, for debug builds, attaches debug info.
func (gs *GlobalState) Setup() {
	gs.requirePhase(PhaseSetup, "setup")

	gs.DeclareIntrinsics()
	gs.layout = BuildObjectLayout(gs.Module, gs.Profile.Checks)

	gs.liveHeapObjCounter = gs.Module.NewGlobalDef(LiveHeapObjCounterName, i64(0))
	gs.objIDCounter = gs.Module.NewGlobalDef(ObjIDCounterName, i64(ObjIDSeed))

	if !gs.Profile.Release {
		attachDebugInfo(gs.Module, gs.Profile.SrcPath)
	}
}

// cstring returns a private global holding a null terminated copy of s.
// Identical strings share one global.
func (gs *GlobalState) cstring(prefix, s string) *ir.Global {
	if g, ok := gs.cstrings[s]; ok {
		return g
	}

	g := gs.Module.NewGlobalDef(fmt.Sprintf("%s.%d", prefix, len(gs.cstrings)), cstringConst(s))
	g.Immutable = true
	g.Linkage = enum.LinkagePrivate
	gs.cstrings[s] = g
	return g
}
