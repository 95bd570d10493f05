package metal

// Expr is an expression node in a function body.
type Expr interface {
	// Tag returns the serialized name of the node.
	Tag() string
}

// ConstantInt is a 64 bit integer literal.
type ConstantInt struct {
	Value int64 `json:"value"`
}

// ConstantBool is a boolean literal.
type ConstantBool struct {
	Value bool `json:"value"`
}

// ConstantStr allocates a new managed string holding Value.
type ConstantStr struct {
	Value string `json:"value"`
}

// Argument reads the function argument at Index.
type Argument struct {
	Index int `json:"index"`
}

// Let stores the result of Source into a new local variable.
type Let struct {
	Name   string `json:"name"`
	Source Expr   `json:"-"`
}

// Local reads a local variable.
type Local struct {
	Name string `json:"name"`
}

// Block evaluates its expressions in order and yields the last one.
type Block struct {
	Exprs []Expr `json:"-"`
}

// Return returns from the function.  Source is nil for a void return.
type Return struct {
	Source Expr `json:"-"`
}

// Call calls a function by its IR name.
type Call struct {
	Function string `json:"function"`
	Args     []Expr `json:"-"`
}

// InterfaceCall dispatches the method at Method through the vtable of the
// interface reference produced by Source.
type InterfaceCall struct {
	Interface string `json:"interface"`
	Method    int    `json:"method"`
	Source    Expr   `json:"-"`
	Args      []Expr `json:"-"`
}

// NewStruct allocates and initializes a new struct on the heap.
type NewStruct struct {
	Struct  string `json:"struct"`
	Members []Expr `json:"-"`
}

// MemberLoad reads the member at Member of the struct referenced by Source.
type MemberLoad struct {
	Struct string `json:"struct"`
	Member int    `json:"member"`
	Source Expr   `json:"-"`
}

// Alias yields another strong reference to the object referenced by Source.
type Alias struct {
	Source Expr `json:"-"`
}

// Discard drops a strong reference, freeing the object once no strong
// references remain.
type Discard struct {
	Source Expr `json:"-"`
}

// Upcast converts a struct reference into a reference to an interface the
// struct implements.
type Upcast struct {
	Struct    string `json:"struct"`
	Interface string `json:"interface"`
	Source    Expr   `json:"-"`
}

// WeakAlias creates a weak reference to a weakable struct.
type WeakAlias struct {
	Source Expr `json:"-"`
}

// WeakIsLive yields whether the referent of a weak reference is still alive.
type WeakIsLive struct {
	Source Expr `json:"-"`
}

// DiscardWeak drops a weak reference.
type DiscardWeak struct {
	Source Expr `json:"-"`
}

// BinaryOp applies an integer or boolean operator.
type BinaryOp struct {
	Op    string `json:"op"`
	Left  Expr   `json:"-"`
	Right Expr   `json:"-"`
}

// If evaluates Then or Else depending on Condition.  Else may be nil in which
// case the expression yields nothing.
type If struct {
	Condition Expr `json:"-"`
	Then      Expr `json:"-"`
	Else      Expr `json:"-"`
}

// Print writes an integer, boolean or string to the console.
type Print struct {
	Source Expr `json:"-"`
}

// StrConcat yields a new string holding Left followed by Right.
type StrConcat struct {
	Left  Expr `json:"-"`
	Right Expr `json:"-"`
}

// StrEqual yields whether two strings hold the same bytes.
type StrEqual struct {
	Left  Expr `json:"-"`
	Right Expr `json:"-"`
}

// IntToStr yields a new string holding the decimal form of an integer.
type IntToStr struct {
	Source Expr `json:"-"`
}

func (*ConstantInt) Tag() string   { return "ConstantInt" }
func (*ConstantBool) Tag() string  { return "ConstantBool" }
func (*ConstantStr) Tag() string   { return "ConstantStr" }
func (*Argument) Tag() string      { return "Argument" }
func (*Let) Tag() string           { return "Let" }
func (*Local) Tag() string         { return "Local" }
func (*Block) Tag() string         { return "Block" }
func (*Return) Tag() string        { return "Return" }
func (*Call) Tag() string          { return "Call" }
func (*InterfaceCall) Tag() string { return "InterfaceCall" }
func (*NewStruct) Tag() string     { return "NewStruct" }
func (*MemberLoad) Tag() string    { return "MemberLoad" }
func (*Alias) Tag() string         { return "Alias" }
func (*Discard) Tag() string       { return "Discard" }
func (*Upcast) Tag() string        { return "Upcast" }
func (*WeakAlias) Tag() string     { return "WeakAlias" }
func (*WeakIsLive) Tag() string    { return "WeakIsLive" }
func (*DiscardWeak) Tag() string   { return "DiscardWeak" }
func (*BinaryOp) Tag() string      { return "BinaryOp" }
func (*If) Tag() string            { return "If" }
func (*Print) Tag() string         { return "Print" }
func (*StrConcat) Tag() string     { return "StrConcat" }
func (*StrEqual) Tag() string      { return "StrEqual" }
func (*IntToStr) Tag() string      { return "IntToStr" }
