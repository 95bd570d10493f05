package metal

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the kind of a referenced type.
type Kind int

// Enumeration of type kinds.
const (
	KindVoid Kind = iota
	KindInt
	KindBool
	KindStr
	KindStruct
	KindInterface
)

var kindNames = map[string]Kind{
	"Void":      KindVoid,
	"Int":       KindInt,
	"Bool":      KindBool,
	"Str":       KindStr,
	"Struct":    KindStruct,
	"Interface": KindInterface,
}

func (k Kind) String() string {
	for name, kind := range kindNames {
		if kind == k {
			return name
		}
	}

	return fmt.Sprintf("Kind(%d)", int(k))
}

// UnmarshalJSON decodes a kind from its name.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}

	kind, ok := kindNames[name]
	if !ok {
		return errors.Errorf("unknown type kind `%s`", name)
	}

	*k = kind
	return nil
}

// Ownership is the way a reference relates to the object it points at.
type Ownership int

// Enumeration of ownerships.
const (
	Own Ownership = iota
	Borrow
	Weak
)

var ownershipNames = map[string]Ownership{
	"own":    Own,
	"borrow": Borrow,
	"weak":   Weak,
}

func (o Ownership) String() string {
	switch o {
	case Own:
		return "own"
	case Borrow:
		return "borrow"
	default:
		return "weak"
	}
}

// UnmarshalJSON decodes an ownership from its name.
func (o *Ownership) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}

	own, ok := ownershipNames[name]
	if !ok {
		return errors.Errorf("unknown ownership `%s`", name)
	}

	*o = own
	return nil
}

// Type is a reference to a value of some type.  Struct and interface types
// are referred to by name and resolved against the Program.
type Type struct {
	Kind      Kind      `json:"kind"`
	Name      string    `json:"name,omitempty"`
	Ownership Ownership `json:"ownership,omitempty"`
}

// Some commonly used types.
var (
	VoidType = &Type{Kind: KindVoid}
	IntType  = &Type{Kind: KindInt}
	BoolType = &Type{Kind: KindBool}
	StrType  = &Type{Kind: KindStr}
)

// IsVoid returns whether the type is void.  A nil type is treated as void.
func (t *Type) IsVoid() bool {
	return t == nil || t.Kind == KindVoid
}

// IsRef returns whether values of the type point at heap objects.
func (t *Type) IsRef() bool {
	return t != nil && (t.Kind == KindStr || t.Kind == KindStruct || t.Kind == KindInterface)
}

// Equals returns whether two types are identical.
func (t *Type) Equals(other *Type) bool {
	if t.IsVoid() || other.IsVoid() {
		return t.IsVoid() && other.IsVoid()
	}

	return t.Kind == other.Kind && t.Name == other.Name && t.Ownership == other.Ownership
}

// WithOwnership returns a copy of the type with a different ownership.
func (t *Type) WithOwnership(o Ownership) *Type {
	return &Type{Kind: t.Kind, Name: t.Name, Ownership: o}
}

func (t *Type) Repr() string {
	switch t.Kind {
	case KindStruct, KindInterface:
		if t.Ownership != Own {
			return t.Ownership.String() + " " + t.Name
		}

		return t.Name
	default:
		return t.Kind.String()
	}
}
