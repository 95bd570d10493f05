package codegen

import (
	"github.com/llir/llvm/ir"

	"github.com/m910q/Vale/common"
	"github.com/m910q/Vale/metal"
	"github.com/m910q/Vale/report"
)

// Generate lowers a program into a new LLVM module.  Definitions are visited
// in name order so the output is deterministic.  Input errors are returned;
// internal errors panic and must be caught with report.CatchErrors.
func Generate(prog *metal.Program, profile *common.BuildProfile) (*ir.Module, error) {
	gs := NewGlobalState(prog, profile)
	if err := gs.Run(); err != nil {
		return nil, err
	}

	return gs.Module, nil
}

// Run executes every phase against the context in order.
func (gs *GlobalState) Run() error {
	prog := gs.Program

	gs.EnterPhase(PhaseSetup)
	gs.Setup()

	gs.EnterPhase(PhaseDeclareStructs)
	for _, name := range prog.StructNames() {
		gs.DeclareStruct(prog.Structs[name])
	}

	gs.EnterPhase(PhaseDeclareInterfaces)
	for _, name := range prog.InterfaceNames() {
		gs.DeclareInterface(prog.Interfaces[name])
	}

	gs.EnterPhase(PhaseTranslateStructs)
	for _, name := range prog.StructNames() {
		gs.TranslateStruct(prog.Structs[name])
	}

	gs.EnterPhase(PhaseTranslateInterfaces)
	for _, name := range prog.InterfaceNames() {
		gs.TranslateInterface(prog.Interfaces[name])
	}

	gs.EnterPhase(PhaseDeclareEdges)
	for _, name := range prog.StructNames() {
		for _, edge := range prog.Structs[name].Edges {
			gs.DeclareEdge(edge)
		}
	}

	gs.EnterPhase(PhaseDeclareFunctions)
	for _, name := range prog.FunctionNames() {
		if _, err := gs.DeclareFunction(prog.Functions[name]); err != nil {
			return err
		}
	}

	// The entry function is looked up before any body is lowered so that a
	// program without one fails fast.
	if _, ok := prog.Functions[common.MainFunctionName]; !ok {
		return ErrMissingMain
	}

	gs.EnterPhase(PhaseTranslateEdges)
	for _, name := range prog.StructNames() {
		for _, edge := range prog.Structs[name].Edges {
			if err := gs.TranslateEdge(edge); err != nil {
				return err
			}
		}
	}

	gs.EnterPhase(PhaseTranslateFunctions)
	for _, name := range prog.FunctionNames() {
		report.ReportPhase("lowering `" + name + "`")
		if err := gs.TranslateFunction(prog.Functions[name]); err != nil {
			return err
		}
	}

	gs.EnterPhase(PhaseEntry)
	if err := gs.BuildEntry(); err != nil {
		return err
	}

	gs.EnterPhase(PhaseDone)
	return nil
}
