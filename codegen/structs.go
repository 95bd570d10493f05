package codegen

import (
	"github.com/llir/llvm/ir/types"

	"github.com/m910q/Vale/metal"
	"github.com/m910q/Vale/report"
)

// Suffixes of the names of the types derived from a struct or interface.
const (
	wrapperSuffix = ".rc"
	weakRefSuffix = ".w"
	itableSuffix  = ".itable"
)

// opaqueStruct returns a new named opaque struct type in the module.
func (gs *GlobalState) opaqueStruct(name string) *types.StructType {
	for _, td := range gs.Module.TypeDefs {
		report.Assert(td.Name() != name, "type `%s` declared twice", name)
	}

	st := types.NewStruct()
	st.Opaque = true
	return gs.Module.NewTypeDef(name, st).(*types.StructType)
}

// fill completes a previously opaque struct type.
func fill(st *types.StructType, fields ...types.Type) {
	report.Assert(st.Opaque, "type `%s` translated twice", st.Name())

	st.Opaque = false
	st.Fields = fields
}

// DeclareStruct creates the opaque placeholder types for a struct.  Every
// struct must be declared before any struct or interface is translated so
// that they may refer to one another.
func (gs *GlobalState) DeclareStruct(sdef *metal.StructDefinition) {
	gs.requirePhase(PhaseDeclareStructs, "declaring struct `"+sdef.Name+"`")
	_, exists := gs.structs[sdef.Name]
	report.Assert(!exists, "struct `%s` declared twice", sdef.Name)

	sh := &structHandles{
		def:     sdef,
		inner:   gs.opaqueStruct(sdef.Name),
		wrapper: gs.opaqueStruct(sdef.Name + wrapperSuffix),
	}

	if sdef.Weakable {
		sh.weakRef = gs.opaqueStruct(sdef.Name + weakRefSuffix)
	}

	gs.structs[sdef.Name] = sh
}

// TranslateStruct fills in the members of a declared struct along with its
// heap wrapper and weak reference types.
func (gs *GlobalState) TranslateStruct(sdef *metal.StructDefinition) {
	gs.requirePhase(PhaseTranslateStructs, "translating struct `"+sdef.Name+"`")
	sh := gs.structHandle(sdef.Name)

	fields := make([]types.Type, len(sdef.Members))
	for i, member := range sdef.Members {
		fields[i] = gs.convType(member.Type)
	}

	fill(sh.inner, fields...)
	fill(sh.wrapper, gs.Layout().ControlBlockFor(sdef.Weakable).Type, sh.inner)

	if sh.weakRef != nil {
		fill(sh.weakRef, types.I64, types.NewPointer(sh.wrapper))
	}

	sh.typeTag = gs.cstring("__tname", sdef.Name)
}

// DeclareInterface creates the opaque placeholder types for an interface.
func (gs *GlobalState) DeclareInterface(idef *metal.InterfaceDefinition) {
	gs.requirePhase(PhaseDeclareInterfaces, "declaring interface `"+idef.Name+"`")
	_, exists := gs.interfaces[idef.Name]
	report.Assert(!exists, "interface `%s` declared twice", idef.Name)

	gs.interfaces[idef.Name] = &interfaceHandles{
		def:    idef,
		ref:    gs.opaqueStruct(idef.Name),
		itable: gs.opaqueStruct(idef.Name + itableSuffix),
	}
}

// TranslateInterface fills in the vtable shape of an interface and the layout
// of its references.  Each vtable slot takes the receiver as an opaque object
// pointer followed by the method's parameters.
func (gs *GlobalState) TranslateInterface(idef *metal.InterfaceDefinition) {
	gs.requirePhase(PhaseTranslateInterfaces, "translating interface `"+idef.Name+"`")
	ih := gs.interfaceHandle(idef.Name)

	slots := make([]types.Type, len(idef.Methods))
	ih.methods = make([]*types.FuncType, len(idef.Methods))
	for i, method := range idef.Methods {
		params := []types.Type{types.I8Ptr}
		for _, param := range method.Params {
			params = append(params, gs.convType(param))
		}

		ih.methods[i] = types.NewFunc(gs.convType(method.Return), params...)
		slots[i] = types.NewPointer(ih.methods[i])
	}

	fill(ih.itable, slots...)
	fill(ih.ref, types.I8Ptr, types.NewPointer(ih.itable))
}

// -----------------------------------------------------------------------------

func (gs *GlobalState) structHandle(name string) *structHandles {
	sh, ok := gs.structs[name]
	report.Assert(ok, "struct `%s` referenced before it was declared", name)
	return sh
}

func (gs *GlobalState) interfaceHandle(name string) *interfaceHandles {
	ih, ok := gs.interfaces[name]
	report.Assert(ok, "interface `%s` referenced before it was declared", name)
	return ih
}

// StructType returns the heap wrapper type of a declared struct.
func (gs *GlobalState) StructType(name string) *types.StructType {
	return gs.structHandle(name).wrapper
}

// InterfaceType returns the reference type of a declared interface.
func (gs *GlobalState) InterfaceType(name string) *types.StructType {
	return gs.interfaceHandle(name).ref
}

// convType converts a program type into its LLVM representation.  Structs and
// strings are passed as pointers to their heap wrapper; interface and weak
// references are passed by value.
func (gs *GlobalState) convType(t *metal.Type) types.Type {
	if t.IsVoid() {
		return types.Void
	}

	switch t.Kind {
	case metal.KindInt:
		return types.I64
	case metal.KindBool:
		return types.I1
	case metal.KindStr:
		return types.NewPointer(gs.Layout().StrWrapper)
	case metal.KindStruct:
		sh := gs.structHandle(t.Name)
		if t.Ownership == metal.Weak {
			report.Assert(sh.weakRef != nil, "weak reference to non-weakable struct `%s`", t.Name)
			return sh.weakRef
		}

		return types.NewPointer(sh.wrapper)
	case metal.KindInterface:
		return gs.interfaceHandle(t.Name).ref
	}

	report.ReportICE("unknown type kind: %s", t.Kind)
	return nil
}
