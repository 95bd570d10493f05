package codegen

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// strTypeTag is the type tag stored in the control block of every string.
const strTypeTag = "Str"

// builder emits instructions into one function body.  cur is the block being
// appended to; it is nil once the current path has been terminated.
type builder struct {
	gs    *GlobalState
	fn    *ir.Func
	entry *ir.Block
	cur   *ir.Block

	nblocks int
}

func newBuilder(gs *GlobalState, fn *ir.Func) *builder {
	entry := fn.NewBlock("entry")
	return &builder{gs: gs, fn: fn, entry: entry, cur: entry}
}

// newBlock appends a new uniquely named block to the function.
func (b *builder) newBlock(prefix string) *ir.Block {
	b.nblocks++
	return b.fn.NewBlock(fmt.Sprintf("%s.%d", prefix, b.nblocks))
}

// alloca creates a stack slot at the top of the entry block so that it
// dominates every use.
func (b *builder) alloca(t types.Type) *ir.InstAlloca {
	slot := b.entry.NewAlloca(t)

	insts := b.entry.Insts
	copy(insts[1:], insts[:len(insts)-1])
	insts[0] = slot

	return slot
}

func (b *builder) call(id Intrinsic, args ...value.Value) *ir.InstCall {
	return b.cur.NewCall(b.gs.Intrinsic(id), args...)
}

// cstrPtr returns an i8* to the first character of a C string global.
func cstrPtr(g *ir.Global) constant.Constant {
	return constant.NewGetElementPtr(g.ContentType, g, i64(0), i64(0))
}

// -----------------------------------------------------------------------------

// controlBlockPtr views the start of any heap object as a non-weakable control
// block.  This is valid for weakable objects too since both control blocks
// share a prefix.
func (b *builder) controlBlockPtr(obj value.Value) value.Value {
	return b.cur.NewBitCast(obj, types.NewPointer(b.gs.Layout().NonWeakable.Type))
}

func (b *builder) fieldPtr(st *types.StructType, ptr value.Value, path ...int64) value.Value {
	return b.cur.NewGetElementPtr(st, ptr, fieldIndices(path...)...)
}

// adjustCounter adds delta to an i64 global and returns the previous value.
func (b *builder) adjustCounter(g *ir.Global, delta int64) value.Value {
	prev := b.cur.NewLoad(types.I64, g)
	b.cur.NewStore(b.cur.NewAdd(prev, i64(delta)), g)
	return prev
}

// assertLive aborts at run time unless the census holds obj.
func (b *builder) assertLive(raw value.Value) {
	if b.gs.Profile.Checks.Census {
		b.call(IntrinsicAssert, b.call(IntrinsicCensusContains, raw))
	}
}

// allocate mallocs size bytes for a new object of the given wrapper type and
// initializes its control block with a refcount of one.
func (b *builder) allocate(wrapper *types.StructType, size value.Value, typeTag *ir.Global, weakable bool) value.Value {
	gs := b.gs
	cb := gs.Layout().ControlBlockFor(weakable)

	raw := b.call(IntrinsicMalloc, size)
	obj := b.cur.NewBitCast(raw, types.NewPointer(wrapper))
	cbPtr := b.cur.NewBitCast(raw, types.NewPointer(cb.Type))

	b.cur.NewStore(cstrPtr(typeTag), b.fieldPtr(cb.Type, cbPtr, cb.TypeStrIndex))

	if cb.ObjIDIndex >= 0 {
		id := b.adjustCounter(gs.objIDCounter, 1)
		b.cur.NewStore(id, b.fieldPtr(cb.Type, cbPtr, cb.ObjIDIndex))
	}

	b.cur.NewStore(i64(1), b.fieldPtr(cb.Type, cbPtr, cb.RcIndex))

	if weakable {
		wrci := b.call(IntrinsicAllocWrc)
		b.cur.NewStore(wrci, b.fieldPtr(cb.Type, cbPtr, cb.WrciIndex))
	}

	b.adjustCounter(gs.liveHeapObjCounter, 1)

	if gs.Profile.Checks.Census {
		b.call(IntrinsicCensusAdd, raw)
	}

	return obj
}

// markWrcDead tells the runtime that the weakable object at obj is gone.
func (b *builder) markWrcDead(obj value.Value) {
	cb := b.gs.Layout().Weakable
	cbPtr := b.cur.NewBitCast(obj, types.NewPointer(cb.Type))
	wrci := b.cur.NewLoad(types.I64, b.fieldPtr(cb.Type, cbPtr, cb.WrciIndex))
	b.call(IntrinsicMarkWrcDead, wrci)
}

// deallocate frees the object at obj.
func (b *builder) deallocate(obj value.Value, weakable bool) {
	raw := b.cur.NewBitCast(obj, types.I8Ptr)

	b.assertLive(raw)
	if b.gs.Profile.Checks.Census {
		b.call(IntrinsicCensusRemove, raw)
	}

	if weakable {
		b.markWrcDead(obj)
	}

	b.adjustCounter(b.gs.liveHeapObjCounter, -1)
	b.call(IntrinsicFree, raw)
}

// adjustRc adds delta to the strong refcount of obj and returns the new count.
func (b *builder) adjustRc(obj value.Value, delta int64) value.Value {
	cb := b.gs.Layout().NonWeakable
	cbPtr := b.controlBlockPtr(obj)

	b.assertLive(b.cur.NewBitCast(obj, types.I8Ptr))

	rcPtr := b.fieldPtr(cb.Type, cbPtr, cb.RcIndex)
	rc := b.cur.NewAdd(b.cur.NewLoad(types.I64, rcPtr), i64(delta))
	b.cur.NewStore(rc, rcPtr)
	return rc
}

// release drops one strong reference to obj and runs dealloc once none remain.
func (b *builder) release(obj value.Value, dealloc func()) {
	rc := b.adjustRc(obj, -1)
	isZero := b.cur.NewICmp(enum.IPredEQ, rc, i64(0))

	freeBlock := b.newBlock("free")
	contBlock := b.newBlock("released")
	b.cur.NewCondBr(isZero, freeBlock, contBlock)

	b.cur = freeBlock
	dealloc()
	b.cur.NewBr(contBlock)

	b.cur = contBlock
}

// deallocateInterface frees the object behind an interface reference.  Only
// the vtable knows the concrete struct, so it is compared against the vtables
// of every weakable implementation to decide whether a weak reference cell
// must be marked dead.
func (b *builder) deallocateInterface(obj, itable value.Value, ifaceName string) {
	var isWeakable value.Value
	for _, sname := range b.gs.Program.StructNames() {
		if !b.gs.Program.Structs[sname].Weakable {
			continue
		}

		vt, ok := b.gs.Vtable(sname, ifaceName)
		if !ok {
			continue
		}

		eq := b.cur.NewICmp(enum.IPredEQ, itable, vt)
		if isWeakable == nil {
			isWeakable = eq
		} else {
			isWeakable = b.cur.NewOr(isWeakable, eq)
		}
	}

	if isWeakable != nil {
		markBlock := b.newBlock("markdead")
		contBlock := b.newBlock("marked")
		b.cur.NewCondBr(isWeakable, markBlock, contBlock)

		b.cur = markBlock
		b.markWrcDead(obj)
		b.cur.NewBr(contBlock)

		b.cur = contBlock
	}

	b.deallocate(obj, false)
}

// -----------------------------------------------------------------------------

// weakAlias creates a weak reference to the weakable struct at obj.
func (b *builder) weakAlias(obj value.Value, sh *structHandles) value.Value {
	cb := b.gs.Layout().Weakable
	cbPtr := b.fieldPtr(sh.wrapper, obj, 0)
	wrci := b.cur.NewLoad(types.I64, b.fieldPtr(cb.Type, cbPtr, cb.WrciIndex))
	b.call(IntrinsicIncrementWrc, wrci)

	ref := b.cur.NewInsertValue(constant.NewUndef(sh.weakRef), wrci, 0)
	return b.cur.NewInsertValue(ref, obj, 1)
}

// weakIsLive returns whether the referent of a weak reference still exists.
func (b *builder) weakIsLive(ref value.Value) value.Value {
	return b.call(IntrinsicWrcIsLive, b.cur.NewExtractValue(ref, 0))
}

// discardWeak drops a weak reference.
func (b *builder) discardWeak(ref value.Value) {
	b.call(IntrinsicDecrementWrc, b.cur.NewExtractValue(ref, 0))
}

// -----------------------------------------------------------------------------

// allocString allocates a string able to hold length bytes plus a terminator
// and records its length.
func (b *builder) allocString(length value.Value) value.Value {
	ol := b.gs.Layout()

	size := b.cur.NewAdd(sizeOf(ol.StrWrapper), b.cur.NewAdd(length, i64(1)))
	obj := b.allocate(ol.StrWrapper, size, b.gs.cstring("__tname", strTypeTag), false)
	b.cur.NewStore(length, b.fieldPtr(ol.StrWrapper, obj, 1, 0))
	return obj
}

// strInner returns a pointer to the inner string of a string object.
func (b *builder) strInner(obj value.Value) value.Value {
	return b.fieldPtr(b.gs.Layout().StrWrapper, obj, 1)
}

// strLen loads the length of a string object.
func (b *builder) strLen(obj value.Value) value.Value {
	return b.cur.NewLoad(types.I64, b.fieldPtr(b.gs.Layout().StrWrapper, obj, 1, 0))
}
