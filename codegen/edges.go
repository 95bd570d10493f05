package codegen

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/pkg/errors"

	"github.com/m910q/Vale/metal"
	"github.com/m910q/Vale/report"
)

// vtableName returns the name of the vtable global for an edge.
func vtableName(structName, ifaceName string) string {
	return fmt.Sprintf("__vtable.%s.%s", structName, ifaceName)
}

// DeclareEdge reserves the vtable global for an edge.  The vtable has no
// contents until TranslateEdge runs, since its entries refer to functions that
// do not exist yet.
func (gs *GlobalState) DeclareEdge(edge *metal.Edge) {
	gs.requirePhase(PhaseDeclareEdges, "declaring edge `"+edge.Struct+"` -> `"+edge.Interface+"`")

	gs.structHandle(edge.Struct)
	ih := gs.interfaceHandle(edge.Interface)

	_, exists := gs.vtables[edge.Struct][edge.Interface]
	report.Assert(!exists, "edge `%s` -> `%s` declared twice", edge.Struct, edge.Interface)

	if gs.vtables[edge.Struct] == nil {
		gs.vtables[edge.Struct] = make(map[string]*ir.Global)
	}

	gs.vtables[edge.Struct][edge.Interface] = gs.Module.NewGlobal(vtableName(edge.Struct, edge.Interface), ih.itable)
}

// TranslateEdge fills the vtable of an edge with one entry per interface
// method, in the interface's method order.  Every function must already be
// declared.  An implementation whose signature does not match the method it
// implements is an input error.
func (gs *GlobalState) TranslateEdge(edge *metal.Edge) error {
	gs.requirePhase(PhaseTranslateEdges, "translating edge `"+edge.Struct+"` -> `"+edge.Interface+"`")

	vt, ok := gs.vtables[edge.Struct][edge.Interface]
	report.Assert(ok, "edge `%s` -> `%s` translated before it was declared", edge.Struct, edge.Interface)
	report.Assert(vt.Init == nil, "edge `%s` -> `%s` translated twice", edge.Struct, edge.Interface)

	ih := gs.interfaceHandle(edge.Interface)
	if len(edge.Methods) != len(ih.def.Methods) {
		return errors.Errorf(
			"struct `%s` provides %d methods for interface `%s` which has %d",
			edge.Struct, len(edge.Methods), edge.Interface, len(ih.def.Methods),
		)
	}

	entries := make([]constant.Constant, len(edge.Methods))
	for i, fnName := range edge.Methods {
		method := ih.def.Methods[i]

		fdef, ok := gs.Program.Functions[fnName]
		if !ok {
			return errors.Errorf("struct `%s` implements `%s.%s` with undefined function `%s`", edge.Struct, edge.Interface, method.Name, fnName)
		}

		if err := checkImplementation(edge.Struct, method, fdef.Prototype); err != nil {
			return errors.Wrapf(err, "struct `%s` implementing `%s.%s`", edge.Struct, edge.Interface, method.Name)
		}

		fn, ok := gs.Function(fnName)
		report.Assert(ok, "function `%s` used in a vtable before it was declared", fnName)

		entries[i] = constant.NewBitCast(fn, ih.itable.Fields[i])
	}

	vt.Init = constant.NewStruct(ih.itable, entries...)
	vt.Immutable = true
	return nil
}

// checkImplementation checks that proto can fill the vtable slot for method
// on the given struct: it must take the struct as its first parameter followed
// by exactly the method's parameters, and return the method's return type.
func checkImplementation(structName string, method *metal.InterfaceMethod, proto *metal.Prototype) error {
	if len(proto.Params) != len(method.Params)+1 {
		return errors.Errorf("`%s` takes %d parameters, expected %d", proto.Name, len(proto.Params), len(method.Params)+1)
	}

	self := proto.Params[0]
	if self.Kind != metal.KindStruct || self.Name != structName || self.Ownership == metal.Weak {
		return errors.Errorf("the first parameter of `%s` must be a reference to `%s`", proto.Name, structName)
	}

	for i, param := range method.Params {
		if !param.Equals(proto.Params[i+1]) {
			return errors.Errorf("parameter %d of `%s` is %s, expected %s", i+1, proto.Name, proto.Params[i+1].Repr(), param.Repr())
		}
	}

	if !method.Return.Equals(proto.Return) {
		return errors.Errorf("`%s` returns the wrong type", proto.Name)
	}

	return nil
}
