package codegen

import (
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

func i64(x int64) *constant.Int {
	return constant.NewInt(types.I64, x)
}

func i32(x int64) *constant.Int {
	return constant.NewInt(types.I32, x)
}

// cstringConst returns a null terminated character array constant.
func cstringConst(s string) *constant.CharArray {
	return constant.NewCharArrayFromString(s + "\x00")
}

// sizeOf returns the allocation size of t as an i64 constant expression.
func sizeOf(t types.Type) constant.Constant {
	end := constant.NewGetElementPtr(t, constant.NewNull(types.NewPointer(t)), i32(1))
	return constant.NewPtrToInt(end, types.I64)
}

// fieldIndices returns the GEP indices addressing a (nested) field through a
// struct pointer.
func fieldIndices(path ...int64) []value.Value {
	indices := []value.Value{i32(0)}
	for _, i := range path {
		indices = append(indices, i32(i))
	}

	return indices
}
