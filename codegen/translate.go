package codegen

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
	"github.com/pkg/errors"

	"github.com/m910q/Vale/metal"
)

// ExprTranslator lowers the body of one function into the handle created when
// the function was declared.
type ExprTranslator interface {
	TranslateBody(gs *GlobalState, fdef *metal.FunctionDefinition, fn *ir.Func) error
}

// NewExprTranslator returns the default expression translator.
func NewExprTranslator() ExprTranslator {
	return exprTranslator{}
}

type exprTranslator struct{}

// local is a stack slot holding a local variable.
type local struct {
	slot *ir.InstAlloca
	typ  *metal.Type
}

// funcTranslator holds the state of lowering one function body.
type funcTranslator struct {
	*builder

	fdef   *metal.FunctionDefinition
	locals map[string]*local
}

func (exprTranslator) TranslateBody(gs *GlobalState, fdef *metal.FunctionDefinition, fn *ir.Func) error {
	ft := &funcTranslator{
		builder: newBuilder(gs, fn),
		fdef:    fdef,
		locals:  make(map[string]*local),
	}

	result, typ, err := ft.expr(fdef.Body)
	if err != nil {
		return err
	}

	// The body fell off its end: its value, if any, is returned.
	if ft.cur != nil {
		ret := fdef.Prototype.Return
		switch {
		case ret.IsVoid():
			ft.cur.NewRet(nil)
		case result != nil && compatible(typ, ret):
			ft.cur.NewRet(result)
		default:
			return errors.Errorf("missing return of %s", ret.Repr())
		}
	}

	return nil
}

// compatible returns whether values of types a and b share a representation.
func compatible(a, b *metal.Type) bool {
	if a.IsVoid() || b.IsVoid() {
		return a.IsVoid() && b.IsVoid()
	}

	return a.Kind == b.Kind && a.Name == b.Name && (a.Ownership == metal.Weak) == (b.Ownership == metal.Weak)
}

// expr lowers one expression and returns its value and type.  Expressions
// producing nothing return a nil value and the void type.
func (ft *funcTranslator) expr(e metal.Expr) (value.Value, *metal.Type, error) {
	if ft.cur == nil {
		return nil, nil, errors.Errorf("unreachable %s after return", e.Tag())
	}

	switch v := e.(type) {
	case *metal.ConstantInt:
		return i64(v.Value), metal.IntType, nil
	case *metal.ConstantBool:
		return constant.NewBool(v.Value), metal.BoolType, nil
	case *metal.ConstantStr:
		return ft.constantStr(v.Value), metal.StrType, nil
	case *metal.Argument:
		params := ft.fdef.Prototype.Params
		if v.Index < 0 || v.Index >= len(params) {
			return nil, nil, errors.Errorf("argument %d out of range", v.Index)
		}

		return ft.fn.Params[v.Index], params[v.Index], nil
	case *metal.Let:
		return ft.let(v)
	case *metal.Local:
		loc, ok := ft.locals[v.Name]
		if !ok {
			return nil, nil, errors.Errorf("undefined local `%s`", v.Name)
		}

		return ft.cur.NewLoad(loc.slot.ElemType, loc.slot), loc.typ, nil
	case *metal.Block:
		var (
			result value.Value
			typ    = metal.VoidType
		)

		for _, sub := range v.Exprs {
			var err error
			if result, typ, err = ft.expr(sub); err != nil {
				return nil, nil, err
			}
		}

		return result, typ, nil
	case *metal.Return:
		return ft.ret(v)
	case *metal.Call:
		return ft.callFunction(v)
	case *metal.InterfaceCall:
		return ft.interfaceCall(v)
	case *metal.NewStruct:
		return ft.newStruct(v)
	case *metal.MemberLoad:
		return ft.memberLoad(v)
	case *metal.Alias:
		return ft.alias(v)
	case *metal.Discard:
		return ft.discard(v)
	case *metal.Upcast:
		return ft.upcast(v)
	case *metal.WeakAlias:
		obj, typ, err := ft.expr(v.Source)
		if err != nil {
			return nil, nil, err
		}

		if typ.Kind != metal.KindStruct || typ.Ownership == metal.Weak {
			return nil, nil, errors.Errorf("cannot weakly alias %s", typ.Repr())
		}

		sh := ft.gs.structHandle(typ.Name)
		if sh.weakRef == nil {
			return nil, nil, errors.Errorf("struct `%s` is not weakable", typ.Name)
		}

		return ft.weakAlias(obj, sh), typ.WithOwnership(metal.Weak), nil
	case *metal.WeakIsLive:
		ref, err := ft.weakSource(v.Source)
		if err != nil {
			return nil, nil, err
		}

		return ft.weakIsLive(ref), metal.BoolType, nil
	case *metal.DiscardWeak:
		ref, err := ft.weakSource(v.Source)
		if err != nil {
			return nil, nil, err
		}

		ft.discardWeak(ref)
		return nil, metal.VoidType, nil
	case *metal.BinaryOp:
		return ft.binaryOp(v)
	case *metal.If:
		return ft.ifExpr(v)
	case *metal.Print:
		return ft.print(v)
	case *metal.StrConcat:
		left, right, err := ft.strOperands(v.Left, v.Right)
		if err != nil {
			return nil, nil, err
		}

		total := ft.cur.NewAdd(ft.strLen(left), ft.strLen(right))
		result := ft.allocString(total)
		ft.call(IntrinsicAddStr, ft.strInner(left), ft.strInner(right), ft.strInner(result))
		return result, metal.StrType, nil
	case *metal.StrEqual:
		left, right, err := ft.strOperands(v.Left, v.Right)
		if err != nil {
			return nil, nil, err
		}

		eq := ft.call(IntrinsicEqStr, ft.strInner(left), ft.strInner(right))
		return ft.cur.NewICmp(enum.IPredNE, eq, constant.NewInt(types.I8, 0)), metal.BoolType, nil
	case *metal.IntToStr:
		return ft.intToStr(v)
	}

	return nil, nil, errors.Errorf("unsupported expression %s", e.Tag())
}

// -----------------------------------------------------------------------------

func (ft *funcTranslator) constantStr(s string) value.Value {
	g := ft.gs.cstring("__str", s)
	obj := ft.allocString(i64(int64(len(s))))
	ft.call(IntrinsicInitStr, ft.strInner(obj), cstrPtr(g))
	return obj
}

func (ft *funcTranslator) let(v *metal.Let) (value.Value, *metal.Type, error) {
	val, typ, err := ft.expr(v.Source)
	if err != nil {
		return nil, nil, err
	}

	if val == nil || typ.IsVoid() {
		return nil, nil, errors.Errorf("local `%s` bound to an expression without a value", v.Name)
	}

	slot := ft.alloca(ft.gs.convType(typ))
	ft.cur.NewStore(val, slot)
	ft.locals[v.Name] = &local{slot: slot, typ: typ}
	return nil, metal.VoidType, nil
}

func (ft *funcTranslator) ret(v *metal.Return) (value.Value, *metal.Type, error) {
	want := ft.fdef.Prototype.Return

	if v.Source == nil {
		if !want.IsVoid() {
			return nil, nil, errors.Errorf("empty return in a function returning %s", want.Repr())
		}

		ft.cur.NewRet(nil)
	} else {
		val, typ, err := ft.expr(v.Source)
		if err != nil {
			return nil, nil, err
		}

		if !compatible(typ, want) {
			return nil, nil, errors.Errorf("returned %s from a function returning %s", typ.Repr(), want.Repr())
		}

		ft.cur.NewRet(val)
	}

	ft.cur = nil
	return nil, metal.VoidType, nil
}

// args lowers call arguments and checks them against the expected types.
func (ft *funcTranslator) args(exprs []metal.Expr, want []*metal.Type) ([]value.Value, error) {
	if len(exprs) != len(want) {
		return nil, errors.Errorf("passed %d arguments, expected %d", len(exprs), len(want))
	}

	vals := make([]value.Value, len(exprs))
	for i, arg := range exprs {
		val, typ, err := ft.expr(arg)
		if err != nil {
			return nil, err
		}

		if !compatible(typ, want[i]) {
			return nil, errors.Errorf("argument %d is %s, expected %s", i, typ.Repr(), want[i].Repr())
		}

		vals[i] = val
	}

	return vals, nil
}

// callResult wraps the result of a call according to the callee's return type.
func callResult(call *ir.InstCall, ret *metal.Type) (value.Value, *metal.Type, error) {
	if ret.IsVoid() {
		return nil, metal.VoidType, nil
	}

	return call, ret, nil
}

func (ft *funcTranslator) callFunction(v *metal.Call) (value.Value, *metal.Type, error) {
	callee, ok := ft.gs.Program.Functions[v.Function]
	if !ok {
		return nil, nil, errors.Errorf("call to undefined function `%s`", v.Function)
	}

	fn, ok := ft.gs.Function(v.Function)
	if !ok {
		return nil, nil, errors.Errorf("call to undeclared function `%s`", v.Function)
	}

	args, err := ft.args(v.Args, callee.Prototype.Params)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "calling `%s`", v.Function)
	}

	return callResult(ft.cur.NewCall(fn, args...), callee.Prototype.Return)
}

func (ft *funcTranslator) interfaceCall(v *metal.InterfaceCall) (value.Value, *metal.Type, error) {
	ref, typ, err := ft.expr(v.Source)
	if err != nil {
		return nil, nil, err
	}

	if typ.Kind != metal.KindInterface || typ.Name != v.Interface {
		return nil, nil, errors.Errorf("interface call on %s, expected %s", typ.Repr(), v.Interface)
	}

	ih := ft.gs.interfaceHandle(v.Interface)
	if v.Method < 0 || v.Method >= len(ih.def.Methods) {
		return nil, nil, errors.Errorf("interface `%s` has no method %d", v.Interface, v.Method)
	}

	method := ih.def.Methods[v.Method]
	args, err := ft.args(v.Args, method.Params)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "calling `%s.%s`", v.Interface, method.Name)
	}

	obj := ft.cur.NewExtractValue(ref, 0)
	itable := ft.cur.NewExtractValue(ref, 1)
	slot := ft.fieldPtr(ih.itable, itable, int64(v.Method))
	fnPtr := ft.cur.NewLoad(ih.itable.Fields[v.Method], slot)

	return callResult(ft.cur.NewCall(fnPtr, append([]value.Value{obj}, args...)...), method.Return)
}

func (ft *funcTranslator) newStruct(v *metal.NewStruct) (value.Value, *metal.Type, error) {
	sdef, ok := ft.gs.Program.Structs[v.Struct]
	if !ok {
		return nil, nil, errors.Errorf("undefined struct `%s`", v.Struct)
	}

	want := make([]*metal.Type, len(sdef.Members))
	for i, member := range sdef.Members {
		want[i] = member.Type
	}

	members, err := ft.args(v.Members, want)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "constructing `%s`", v.Struct)
	}

	sh := ft.gs.structHandle(v.Struct)
	obj := ft.allocate(sh.wrapper, sizeOf(sh.wrapper), sh.typeTag, sdef.Weakable)
	for i, member := range members {
		ft.cur.NewStore(member, ft.fieldPtr(sh.wrapper, obj, 1, int64(i)))
	}

	return obj, &metal.Type{Kind: metal.KindStruct, Name: v.Struct, Ownership: metal.Own}, nil
}

func (ft *funcTranslator) memberLoad(v *metal.MemberLoad) (value.Value, *metal.Type, error) {
	obj, typ, err := ft.expr(v.Source)
	if err != nil {
		return nil, nil, err
	}

	if typ.Kind != metal.KindStruct || typ.Name != v.Struct || typ.Ownership == metal.Weak {
		return nil, nil, errors.Errorf("member load from %s, expected %s", typ.Repr(), v.Struct)
	}

	sh := ft.gs.structHandle(v.Struct)
	if v.Member < 0 || v.Member >= len(sh.def.Members) {
		return nil, nil, errors.Errorf("struct `%s` has no member %d", v.Struct, v.Member)
	}

	ft.assertLive(ft.cur.NewBitCast(obj, types.I8Ptr))

	memberType := sh.def.Members[v.Member].Type
	val := ft.cur.NewLoad(sh.inner.Fields[v.Member], ft.fieldPtr(sh.wrapper, obj, 1, int64(v.Member)))
	if memberType.IsRef() && memberType.Ownership == metal.Own {
		memberType = memberType.WithOwnership(metal.Borrow)
	}

	return val, memberType, nil
}

func (ft *funcTranslator) alias(v *metal.Alias) (value.Value, *metal.Type, error) {
	val, typ, err := ft.expr(v.Source)
	if err != nil {
		return nil, nil, err
	}

	switch {
	case !typ.IsRef() || typ.Ownership == metal.Weak:
		return nil, nil, errors.Errorf("cannot alias %s", typ.Repr())
	case typ.Kind == metal.KindInterface:
		ft.adjustRc(ft.cur.NewExtractValue(val, 0), 1)
	default:
		ft.adjustRc(val, 1)
	}

	return val, typ, nil
}

func (ft *funcTranslator) discard(v *metal.Discard) (value.Value, *metal.Type, error) {
	val, typ, err := ft.expr(v.Source)
	if err != nil {
		return nil, nil, err
	}

	switch {
	case !typ.IsRef():
		// Nothing to release.
	case typ.Ownership == metal.Weak:
		ft.discardWeak(val)
	case typ.Kind == metal.KindStr:
		ft.release(val, func() { ft.deallocate(val, false) })
	case typ.Kind == metal.KindStruct:
		weakable := ft.gs.structHandle(typ.Name).def.Weakable
		ft.release(val, func() { ft.deallocate(val, weakable) })
	case typ.Kind == metal.KindInterface:
		obj := ft.cur.NewExtractValue(val, 0)
		itable := ft.cur.NewExtractValue(val, 1)
		ft.release(obj, func() { ft.deallocateInterface(obj, itable, typ.Name) })
	}

	return nil, metal.VoidType, nil
}

func (ft *funcTranslator) upcast(v *metal.Upcast) (value.Value, *metal.Type, error) {
	obj, typ, err := ft.expr(v.Source)
	if err != nil {
		return nil, nil, err
	}

	if typ.Kind != metal.KindStruct || typ.Name != v.Struct || typ.Ownership == metal.Weak {
		return nil, nil, errors.Errorf("upcast from %s, expected %s", typ.Repr(), v.Struct)
	}

	vt, ok := ft.gs.Vtable(v.Struct, v.Interface)
	if !ok {
		return nil, nil, errors.Errorf("struct `%s` does not implement `%s`", v.Struct, v.Interface)
	}

	ih := ft.gs.interfaceHandle(v.Interface)
	ref := ft.cur.NewInsertValue(constant.NewUndef(ih.ref), ft.cur.NewBitCast(obj, types.I8Ptr), 0)
	ref = ft.cur.NewInsertValue(ref, vt, 1)

	return ref, &metal.Type{Kind: metal.KindInterface, Name: v.Interface, Ownership: typ.Ownership}, nil
}

func (ft *funcTranslator) weakSource(e metal.Expr) (value.Value, error) {
	ref, typ, err := ft.expr(e)
	if err != nil {
		return nil, err
	}

	if typ.Kind != metal.KindStruct || typ.Ownership != metal.Weak {
		return nil, errors.Errorf("expected a weak reference, got %s", typ.Repr())
	}

	return ref, nil
}

var intPreds = map[string]enum.IPred{
	"eq": enum.IPredEQ,
	"ne": enum.IPredNE,
	"lt": enum.IPredSLT,
	"le": enum.IPredSLE,
	"gt": enum.IPredSGT,
	"ge": enum.IPredSGE,
}

func (ft *funcTranslator) binaryOp(v *metal.BinaryOp) (value.Value, *metal.Type, error) {
	left, ltyp, err := ft.expr(v.Left)
	if err != nil {
		return nil, nil, err
	}

	right, rtyp, err := ft.expr(v.Right)
	if err != nil {
		return nil, nil, err
	}

	if ltyp.IsRef() || !compatible(ltyp, rtyp) || ltyp.IsVoid() {
		return nil, nil, errors.Errorf("operator `%s` applied to %s and %s", v.Op, ltyp.Repr(), rtyp.Repr())
	}

	isInt := ltyp.Kind == metal.KindInt
	switch v.Op {
	case "add", "sub", "mul", "div", "mod":
		if !isInt {
			break
		}

		switch v.Op {
		case "add":
			return ft.cur.NewAdd(left, right), metal.IntType, nil
		case "sub":
			return ft.cur.NewSub(left, right), metal.IntType, nil
		case "mul":
			return ft.cur.NewMul(left, right), metal.IntType, nil
		case "div":
			return ft.cur.NewSDiv(left, right), metal.IntType, nil
		default:
			return ft.cur.NewSRem(left, right), metal.IntType, nil
		}
	case "eq", "ne":
		return ft.cur.NewICmp(intPreds[v.Op], left, right), metal.BoolType, nil
	case "lt", "le", "gt", "ge":
		if isInt {
			return ft.cur.NewICmp(intPreds[v.Op], left, right), metal.BoolType, nil
		}
	case "and":
		if !isInt {
			return ft.cur.NewAnd(left, right), metal.BoolType, nil
		}
	case "or":
		if !isInt {
			return ft.cur.NewOr(left, right), metal.BoolType, nil
		}
	}

	return nil, nil, errors.Errorf("operator `%s` is not defined on %s", v.Op, ltyp.Repr())
}

func (ft *funcTranslator) ifExpr(v *metal.If) (value.Value, *metal.Type, error) {
	cond, ctyp, err := ft.expr(v.Condition)
	if err != nil {
		return nil, nil, err
	}

	if ctyp.Kind != metal.KindBool {
		return nil, nil, errors.Errorf("condition is %s, expected Bool", ctyp.Repr())
	}

	thenBlock := ft.newBlock("then")
	elseBlock := ft.newBlock("else")
	ft.cur.NewCondBr(cond, thenBlock, elseBlock)

	// branch lowers one arm and returns its value and the block it ended in.
	type arm struct {
		val value.Value
		typ *metal.Type
		end *ir.Block
	}

	branch := func(start *ir.Block, e metal.Expr) (arm, error) {
		ft.cur = start
		if e == nil {
			return arm{typ: metal.VoidType, end: ft.cur}, nil
		}

		val, typ, err := ft.expr(e)
		return arm{val: val, typ: typ, end: ft.cur}, err
	}

	thenArm, err := branch(thenBlock, v.Then)
	if err != nil {
		return nil, nil, err
	}

	elseArm, err := branch(elseBlock, v.Else)
	if err != nil {
		return nil, nil, err
	}

	var live []arm
	for _, a := range []arm{thenArm, elseArm} {
		if a.end != nil {
			live = append(live, a)
		}
	}

	// Both arms returned.
	if len(live) == 0 {
		ft.cur = nil
		return nil, metal.VoidType, nil
	}

	merge := ft.newBlock("endif")
	for _, a := range live {
		a.end.NewBr(merge)
	}
	ft.cur = merge

	if len(live) == 1 {
		return live[0].val, live[0].typ, nil
	}

	if thenArm.val == nil || elseArm.val == nil || !compatible(thenArm.typ, elseArm.typ) {
		return nil, metal.VoidType, nil
	}

	phi := merge.NewPhi(ir.NewIncoming(thenArm.val, thenArm.end), ir.NewIncoming(elseArm.val, elseArm.end))
	return phi, thenArm.typ, nil
}

func (ft *funcTranslator) print(v *metal.Print) (value.Value, *metal.Type, error) {
	val, typ, err := ft.expr(v.Source)
	if err != nil {
		return nil, nil, err
	}

	switch {
	case typ.Kind == metal.KindInt:
		ft.call(IntrinsicPrintI64, val)
	case typ.Kind == metal.KindBool:
		ft.call(IntrinsicPrintBool, val)
	case typ.Kind == metal.KindStr:
		ft.call(IntrinsicPrintStr, ft.strInner(val))
	default:
		return nil, nil, errors.Errorf("cannot print %s", typ.Repr())
	}

	return nil, metal.VoidType, nil
}

func (ft *funcTranslator) strOperands(l, r metal.Expr) (value.Value, value.Value, error) {
	left, ltyp, err := ft.expr(l)
	if err != nil {
		return nil, nil, err
	}

	right, rtyp, err := ft.expr(r)
	if err != nil {
		return nil, nil, err
	}

	if ltyp.Kind != metal.KindStr || rtyp.Kind != metal.KindStr {
		return nil, nil, errors.Errorf("string operation on %s and %s", ltyp.Repr(), rtyp.Repr())
	}

	return left, right, nil
}

// intToStrBufLen fits any int64 in decimal with its sign and terminator.
const intToStrBufLen = 21

func (ft *funcTranslator) intToStr(v *metal.IntToStr) (value.Value, *metal.Type, error) {
	val, typ, err := ft.expr(v.Source)
	if err != nil {
		return nil, nil, err
	}

	if typ.Kind != metal.KindInt {
		return nil, nil, errors.Errorf("cannot convert %s to a string", typ.Repr())
	}

	bufType := types.NewArray(intToStrBufLen, types.I8)
	buf := ft.cur.NewGetElementPtr(bufType, ft.alloca(bufType), i64(0), i64(0))
	ft.call(IntrinsicIntToCStr, val, buf, i64(intToStrBufLen))

	obj := ft.allocString(ft.call(IntrinsicStrlen, buf))
	ft.call(IntrinsicInitStr, ft.strInner(obj), buf)
	return obj, metal.StrType, nil
}
