package metal

import "sort"

// Program is a fully resolved program ready for code generation.  It is built
// once by the loader and is read only thereafter.
type Program struct {
	Structs    map[string]*StructDefinition
	Interfaces map[string]*InterfaceDefinition
	Functions  map[string]*FunctionDefinition
}

// StructDefinition is a struct type with its ordered members and the
// interfaces it implements.
type StructDefinition struct {
	Name string `json:"name"`

	// Weakable structs carry a weak reference cell index in their control
	// block and may be the target of weak references.
	Weakable bool `json:"weakable"`

	Members []*StructMember `json:"members"`
	Edges   []*Edge         `json:"edges"`
}

// StructMember is a single named field of a struct.
type StructMember struct {
	Name string `json:"name"`
	Type *Type  `json:"type"`
}

// InterfaceDefinition is an interface with its ordered abstract methods.
type InterfaceDefinition struct {
	Name    string             `json:"name"`
	Methods []*InterfaceMethod `json:"methods"`
}

// InterfaceMethod is the signature of one interface method.  The receiver is
// implicit and is not listed in Params.
type InterfaceMethod struct {
	Name   string  `json:"name"`
	Params []*Type `json:"params"`
	Return *Type   `json:"return"`
}

// Edge pairs a struct with an interface it implements.  Methods holds the
// names of the implementing functions in the interface's method order.  Each
// edge compiles to one vtable.
type Edge struct {
	Struct    string   `json:"-"`
	Interface string   `json:"interface"`
	Methods   []string `json:"methods"`
}

// Prototype is the signature of a function.
type Prototype struct {
	Name   string  `json:"name"`
	Params []*Type `json:"params"`
	Return *Type   `json:"return"`
}

// FunctionDefinition is a function prototype and its body.  Extern functions
// have no body and are provided at link time.
type FunctionDefinition struct {
	Prototype *Prototype
	Extern    bool
	Body      Expr
}

// StructNames returns the names of all structs in a stable order.
func (p *Program) StructNames() []string {
	return sortedKeys(p.Structs)
}

// InterfaceNames returns the names of all interfaces in a stable order.
func (p *Program) InterfaceNames() []string {
	return sortedKeys(p.Interfaces)
}

// FunctionNames returns the names of all functions in a stable order.
func (p *Program) FunctionNames() []string {
	return sortedKeys(p.Functions)
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}

	sort.Strings(keys)
	return keys
}
