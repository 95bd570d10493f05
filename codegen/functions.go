package codegen

import (
	"fmt"
	"strings"

	"github.com/llir/llvm/ir"
	"github.com/pkg/errors"

	"github.com/m910q/Vale/common"
	"github.com/m910q/Vale/metal"
	"github.com/m910q/Vale/report"
)

// ErrDuplicateFunction is returned when a function name is declared twice.
var ErrDuplicateFunction = errors.New("function declared multiple times")

// irFuncName returns the symbol name of a program function.  Functions with
// bodies are prefixed so they never collide with the runtime or the process
// entry; extern functions keep the name the linker knows them by.
func irFuncName(fdef *metal.FunctionDefinition, name string) string {
	if fdef != nil && fdef.Extern {
		return name
	}

	return common.ProgramSymbolPrefix + name
}

// isReservedSymbol returns whether name belongs to the runtime or to a global
// the backend generates.  Every backend global starts with `__`.
func isReservedSymbol(name string) bool {
	return strings.HasPrefix(name, "__") || isIntrinsicName(name) || name == EntryFunctionName
}

// DeclareFunction emits the signature of a function without its body and
// returns the handle later used to translate it.
func (gs *GlobalState) DeclareFunction(fdef *metal.FunctionDefinition) (*ir.Func, error) {
	proto := fdef.Prototype
	gs.requirePhase(PhaseDeclareFunctions, "declaring function `"+proto.Name+"`")

	name := irFuncName(fdef, proto.Name)
	if _, exists := gs.functions[name]; exists {
		return nil, errors.Wrapf(ErrDuplicateFunction, "`%s`", proto.Name)
	}

	if fdef.Extern && isReservedSymbol(name) {
		return nil, errors.Errorf("extern function `%s` collides with a runtime symbol", name)
	}

	params := make([]*ir.Param, len(proto.Params))
	for i, param := range proto.Params {
		params[i] = ir.NewParam(fmt.Sprintf("p%d", i), gs.convType(param))
	}

	fn := gs.Module.NewFunc(name, gs.convType(proto.Return), params...)
	gs.functions[name] = fn
	return fn, nil
}

// TranslateFunction lowers the body of a declared function through the
// expression translator.  Extern functions have no body.
func (gs *GlobalState) TranslateFunction(fdef *metal.FunctionDefinition) error {
	proto := fdef.Prototype
	gs.requirePhase(PhaseTranslateFunctions, "translating function `"+proto.Name+"`")

	if fdef.Extern {
		return nil
	}

	fn, ok := gs.functions[irFuncName(fdef, proto.Name)]
	report.Assert(ok, "function `%s` translated before it was declared", proto.Name)
	report.Assert(len(fn.Blocks) == 0, "function `%s` translated twice", proto.Name)

	if err := gs.Exprs.TranslateBody(gs, fdef, fn); err != nil {
		return errors.Wrapf(err, "in function `%s`", proto.Name)
	}

	return nil
}
