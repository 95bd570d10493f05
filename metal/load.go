package metal

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// ErrEmptyInput is returned when the IR document holds nothing.
var ErrEmptyInput = errors.New("IR document is empty")

// document is the serialized form of a Program.
type document struct {
	Structs    []*StructDefinition    `json:"structs"`
	Interfaces []*InterfaceDefinition `json:"interfaces"`
	Functions  []*functionDocument    `json:"functions"`
}

type functionDocument struct {
	Prototype *Prototype      `json:"prototype"`
	Extern    bool            `json:"extern"`
	Block     json.RawMessage `json:"block"`
}

// LoadProgram reads and decodes the IR document at path.
func LoadProgram(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read IR document")
	}

	prog, err := ParseProgram(data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load %s", path)
	}

	return prog, nil
}

// ParseProgram decodes an IR document and checks that every name it refers to
// is defined.
func ParseProgram(data []byte) (*Program, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyInput
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "malformed IR document")
	}

	prog := &Program{
		Structs:    make(map[string]*StructDefinition),
		Interfaces: make(map[string]*InterfaceDefinition),
		Functions:  make(map[string]*FunctionDefinition),
	}

	for _, sdef := range doc.Structs {
		if sdef == nil || sdef.Name == "" {
			return nil, errors.New("struct definition without a name")
		}

		if _, ok := prog.Structs[sdef.Name]; ok {
			return nil, errors.Errorf("struct `%s` defined multiple times", sdef.Name)
		}

		if err := checkTypeName(sdef.Name); err != nil {
			return nil, err
		}

		for i, member := range sdef.Members {
			if member == nil {
				return nil, errors.Errorf("member %d of struct `%s` is empty", i, sdef.Name)
			}
		}

		for i, edge := range sdef.Edges {
			if edge == nil {
				return nil, errors.Errorf("edge %d of struct `%s` is empty", i, sdef.Name)
			}

			edge.Struct = sdef.Name
		}

		prog.Structs[sdef.Name] = sdef
	}

	for _, idef := range doc.Interfaces {
		if idef == nil || idef.Name == "" {
			return nil, errors.New("interface definition without a name")
		}

		if _, ok := prog.Interfaces[idef.Name]; ok {
			return nil, errors.Errorf("interface `%s` defined multiple times", idef.Name)
		}

		if _, ok := prog.Structs[idef.Name]; ok {
			return nil, errors.Errorf("`%s` is defined as both a struct and an interface", idef.Name)
		}

		if err := checkTypeName(idef.Name); err != nil {
			return nil, err
		}

		for i, method := range idef.Methods {
			if method == nil {
				return nil, errors.Errorf("method %d of interface `%s` is empty", i, idef.Name)
			}
		}

		prog.Interfaces[idef.Name] = idef
	}

	for _, fdoc := range doc.Functions {
		if fdoc == nil || fdoc.Prototype == nil || fdoc.Prototype.Name == "" {
			return nil, errors.New("function definition without a prototype")
		}

		name := fdoc.Prototype.Name
		if _, ok := prog.Functions[name]; ok {
			return nil, errors.Errorf("function `%s` defined multiple times", name)
		}

		fdef := &FunctionDefinition{Prototype: fdoc.Prototype, Extern: fdoc.Extern}
		if !fdoc.Extern {
			body, err := decodeExpr(fdoc.Block)
			if err != nil {
				return nil, errors.Wrapf(err, "in function `%s`", name)
			}

			if body == nil {
				return nil, errors.Errorf("function `%s` has no body", name)
			}

			fdef.Body = body
		}

		prog.Functions[name] = fdef
	}

	if err := prog.validate(); err != nil {
		return nil, err
	}

	return prog, nil
}

// checkTypeName rejects struct and interface names that could collide with
// the types the backend derives from them or with its own types.
func checkTypeName(name string) error {
	if strings.HasPrefix(name, "__") || strings.Contains(name, ".") {
		return errors.Errorf("invalid type name `%s`", name)
	}

	return nil
}

// validate checks that all type, interface and function references resolve.
func (p *Program) validate() error {
	for _, name := range p.StructNames() {
		sdef := p.Structs[name]

		for _, member := range sdef.Members {
			if member.Type.IsVoid() {
				return errors.Errorf("member `%s` of struct `%s` has no type", member.Name, name)
			}

			if err := p.checkType(member.Type); err != nil {
				return errors.Wrapf(err, "member `%s` of struct `%s`", member.Name, name)
			}
		}

		for _, edge := range sdef.Edges {
			idef, ok := p.Interfaces[edge.Interface]
			if !ok {
				return errors.Errorf("struct `%s` implements undefined interface `%s`", name, edge.Interface)
			}

			if len(edge.Methods) != len(idef.Methods) {
				return errors.Errorf(
					"struct `%s` provides %d methods for interface `%s` which has %d",
					name, len(edge.Methods), idef.Name, len(idef.Methods),
				)
			}

			for _, fnName := range edge.Methods {
				if _, ok := p.Functions[fnName]; !ok {
					return errors.Errorf("struct `%s` implements `%s` with undefined function `%s`", name, idef.Name, fnName)
				}
			}
		}
	}

	for _, name := range p.InterfaceNames() {
		for _, method := range p.Interfaces[name].Methods {
			if err := p.checkSignature(method.Params, method.Return); err != nil {
				return errors.Wrapf(err, "method `%s` of interface `%s`", method.Name, name)
			}
		}
	}

	for _, name := range p.FunctionNames() {
		proto := p.Functions[name].Prototype
		if err := p.checkSignature(proto.Params, proto.Return); err != nil {
			return errors.Wrapf(err, "function `%s`", name)
		}
	}

	return nil
}

func (p *Program) checkSignature(params []*Type, ret *Type) error {
	for _, param := range params {
		if param.IsVoid() {
			return errors.New("parameter of type Void")
		}

		if err := p.checkType(param); err != nil {
			return err
		}
	}

	return p.checkType(ret)
}

func (p *Program) checkType(typ *Type) error {
	if typ == nil {
		return nil
	}

	switch typ.Kind {
	case KindStruct:
		sdef, ok := p.Structs[typ.Name]
		if !ok {
			return errors.Errorf("undefined struct `%s`", typ.Name)
		}

		if typ.Ownership == Weak && !sdef.Weakable {
			return errors.Errorf("weak reference to non-weakable struct `%s`", typ.Name)
		}
	case KindInterface:
		if _, ok := p.Interfaces[typ.Name]; !ok {
			return errors.Errorf("undefined interface `%s`", typ.Name)
		}

		if typ.Ownership == Weak {
			return errors.Errorf("weak reference to interface `%s`", typ.Name)
		}
	case KindStr:
		if typ.Ownership == Weak {
			return errors.New("weak reference to a string")
		}
	}

	return nil
}

// -----------------------------------------------------------------------------

// exprFields holds the child expressions of any node.
type exprFields struct {
	Type      string            `json:"__type"`
	Source    json.RawMessage   `json:"source"`
	Left      json.RawMessage   `json:"left"`
	Right     json.RawMessage   `json:"right"`
	Condition json.RawMessage   `json:"condition"`
	Then      json.RawMessage   `json:"then"`
	Else      json.RawMessage   `json:"else"`
	Exprs     []json.RawMessage `json:"exprs"`
	Args      []json.RawMessage `json:"args"`
	Members   []json.RawMessage `json:"members"`
}

var exprFactories = map[string]func() Expr{
	"ConstantInt":   func() Expr { return &ConstantInt{} },
	"ConstantBool":  func() Expr { return &ConstantBool{} },
	"ConstantStr":   func() Expr { return &ConstantStr{} },
	"Argument":      func() Expr { return &Argument{} },
	"Let":           func() Expr { return &Let{} },
	"Local":         func() Expr { return &Local{} },
	"Block":         func() Expr { return &Block{} },
	"Return":        func() Expr { return &Return{} },
	"Call":          func() Expr { return &Call{} },
	"InterfaceCall": func() Expr { return &InterfaceCall{} },
	"NewStruct":     func() Expr { return &NewStruct{} },
	"MemberLoad":    func() Expr { return &MemberLoad{} },
	"Alias":         func() Expr { return &Alias{} },
	"Discard":       func() Expr { return &Discard{} },
	"Upcast":        func() Expr { return &Upcast{} },
	"WeakAlias":     func() Expr { return &WeakAlias{} },
	"WeakIsLive":    func() Expr { return &WeakIsLive{} },
	"DiscardWeak":   func() Expr { return &DiscardWeak{} },
	"BinaryOp":      func() Expr { return &BinaryOp{} },
	"If":            func() Expr { return &If{} },
	"Print":         func() Expr { return &Print{} },
	"StrConcat":     func() Expr { return &StrConcat{} },
	"StrEqual":      func() Expr { return &StrEqual{} },
	"IntToStr":      func() Expr { return &IntToStr{} },
}

// decodeExpr decodes one tagged expression node and all of its children.  An
// absent node decodes to nil.
func decodeExpr(data json.RawMessage) (Expr, error) {
	if len(data) == 0 || string(bytes.TrimSpace(data)) == "null" {
		return nil, nil
	}

	var fields exprFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, errors.Wrap(err, "malformed expression")
	}

	factory, ok := exprFactories[fields.Type]
	if !ok {
		return nil, errors.Errorf("unknown expression `%s`", fields.Type)
	}

	expr := factory()
	if err := json.Unmarshal(data, expr); err != nil {
		return nil, errors.Wrapf(err, "malformed %s", fields.Type)
	}

	// dec decodes a single required child.
	var err error
	dec := func(raw json.RawMessage, field string) Expr {
		if err != nil {
			return nil
		}

		var child Expr
		child, err = decodeExpr(raw)
		if err == nil && child == nil {
			err = errors.Errorf("%s is missing `%s`", fields.Type, field)
		}

		return child
	}

	decList := func(raws []json.RawMessage) []Expr {
		exprs := make([]Expr, 0, len(raws))
		for _, raw := range raws {
			exprs = append(exprs, dec(raw, "element"))
		}

		return exprs
	}

	switch v := expr.(type) {
	case *Let:
		v.Source = dec(fields.Source, "source")
	case *Block:
		v.Exprs = decList(fields.Exprs)
	case *Return:
		if err == nil {
			v.Source, err = decodeExpr(fields.Source)
		}
	case *Call:
		v.Args = decList(fields.Args)
	case *InterfaceCall:
		v.Source = dec(fields.Source, "source")
		v.Args = decList(fields.Args)
	case *NewStruct:
		v.Members = decList(fields.Members)
	case *MemberLoad:
		v.Source = dec(fields.Source, "source")
	case *Alias:
		v.Source = dec(fields.Source, "source")
	case *Discard:
		v.Source = dec(fields.Source, "source")
	case *Upcast:
		v.Source = dec(fields.Source, "source")
	case *WeakAlias:
		v.Source = dec(fields.Source, "source")
	case *WeakIsLive:
		v.Source = dec(fields.Source, "source")
	case *DiscardWeak:
		v.Source = dec(fields.Source, "source")
	case *BinaryOp:
		v.Left = dec(fields.Left, "left")
		v.Right = dec(fields.Right, "right")
	case *If:
		v.Condition = dec(fields.Condition, "condition")
		v.Then = dec(fields.Then, "then")
		if err == nil {
			v.Else, err = decodeExpr(fields.Else)
		}
	case *Print:
		v.Source = dec(fields.Source, "source")
	case *StrConcat:
		v.Left = dec(fields.Left, "left")
		v.Right = dec(fields.Right, "right")
	case *StrEqual:
		v.Left = dec(fields.Left, "left")
		v.Right = dec(fields.Right, "right")
	case *IntToStr:
		v.Source = dec(fields.Source, "source")
	}

	if err != nil {
		return nil, err
	}

	return expr, nil
}
