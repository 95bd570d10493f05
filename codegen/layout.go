package codegen

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"

	"github.com/m910q/Vale/common"
	"github.com/m910q/Vale/report"
)

// Names of the types and globals making up the object representation.
const (
	WeakableControlBlockName    = "__ControlBlock_w"
	NonWeakableControlBlockName = "__ControlBlock"
	StrInnerName                = "__Str"
	StrWrapperName              = "__Str_rc"

	LiveHeapObjCounterName = "__liveHeapObjCounter"
	ObjIDCounterName       = "__objIdCounter"
)

// ObjIDSeed is the first object id handed out.
const ObjIDSeed = 501

// ControlBlock is the header placed in front of every heap object.  Field
// indices are -1 when the field is absent from this configuration.
type ControlBlock struct {
	Type *types.StructType

	TypeStrIndex int64
	ObjIDIndex   int64
	RcIndex      int64
	WrciIndex    int64
}

// ObjectLayout holds the control block and managed string layouts.  It is
// built once and shared by every later declaration.
type ObjectLayout struct {
	Weakable    *ControlBlock
	NonWeakable *ControlBlock

	// StrInner is {length, chars}: chars is a flexible byte array.
	StrInner *types.StructType

	// StrWrapper is {non-weakable control block, inner string}.
	StrWrapper *types.StructType
}

// ControlBlockFor returns the control block used by weakable or non-weakable
// objects.
func (ol *ObjectLayout) ControlBlockFor(weakable bool) *ControlBlock {
	if weakable {
		return ol.Weakable
	}

	return ol.NonWeakable
}

// BuildObjectLayout builds the control block and string layouts into m.  The
// two control blocks must share a common prefix so that code handling any
// object can reach its type tag, object id and refcount without knowing
// whether it is weakable.
func BuildObjectLayout(m *ir.Module, checks common.MemoryChecks) *ObjectLayout {
	ol := &ObjectLayout{
		Weakable:    newControlBlock(m, WeakableControlBlockName, checks, true),
		NonWeakable: newControlBlock(m, NonWeakableControlBlockName, checks, false),
	}

	assertSharedPrefix(ol.Weakable, ol.NonWeakable)

	ol.StrInner = strInnerType(m)
	ol.StrWrapper = m.NewTypeDef(StrWrapperName, types.NewStruct(
		ol.NonWeakable.Type,
		ol.StrInner,
	)).(*types.StructType)

	return ol
}

// newControlBlock lays out one control block variant.
func newControlBlock(m *ir.Module, name string, checks common.MemoryChecks, weakable bool) *ControlBlock {
	cb := &ControlBlock{TypeStrIndex: -1, ObjIDIndex: -1, RcIndex: -1, WrciIndex: -1}

	var fields []types.Type
	add := func(t types.Type) int64 {
		fields = append(fields, t)
		return int64(len(fields) - 1)
	}

	cb.TypeStrIndex = add(types.I8Ptr)
	if checks.ObjectIDs {
		cb.ObjIDIndex = add(types.I64)
	}
	cb.RcIndex = add(types.I64)
	if weakable {
		cb.WrciIndex = add(types.I64)
	}

	cb.Type = m.NewTypeDef(name, types.NewStruct(fields...)).(*types.StructType)
	return cb
}

// assertSharedPrefix aborts if the fields common to both control blocks are
// not at identical offsets with identical types.
func assertSharedPrefix(weakable, nonWeakable *ControlBlock) {
	report.Assert(weakable.TypeStrIndex == nonWeakable.TypeStrIndex, "control block type tag offsets diverge")
	report.Assert(weakable.ObjIDIndex == nonWeakable.ObjIDIndex, "control block object id offsets diverge")
	report.Assert(weakable.RcIndex == nonWeakable.RcIndex, "control block refcount offsets diverge")

	prefix := nonWeakable.Type.Fields
	report.Assert(len(weakable.Type.Fields) >= len(prefix), "weakable control block is shorter than the non-weakable one")
	for i, field := range prefix {
		report.Assert(
			field.Equal(weakable.Type.Fields[i]),
			"control block field %d differs: %s vs %s", i, field, weakable.Type.Fields[i],
		)
	}
}

// strInnerType returns the inner managed string type, declaring it on first
// use.
func strInnerType(m *ir.Module) *types.StructType {
	for _, td := range m.TypeDefs {
		if td.Name() == StrInnerName {
			return td.(*types.StructType)
		}
	}

	return m.NewTypeDef(StrInnerName, types.NewStruct(
		types.I64,
		types.NewArray(0, types.I8),
	)).(*types.StructType)
}
