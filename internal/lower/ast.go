package lower

import (
	"fmt"
	"strings"

	"github.com/orizon-lang/rmcc/internal/position"
)

// Node is implemented by every tree node handed to the lowerer.
type Node interface {
	GetSpan() position.Span
	String() string
}

// Expr is an expression node.
type Expr interface {
	Node
	exprNode()
}

// Stmt is a statement node.
type Stmt interface {
	Node
	stmtNode()
}

// ===== Program Structure =====

// File is one compilation unit. Globals are initialized by the
// top-level block in declaration order.
type File struct {
	Classes []*Class
	Globals []*Decl
	Funcs   []*Func
}

// Class declares a class and its fields. Fields are laid out in order at
// 4-byte aligned offsets.
type Class struct {
	Span   position.Span
	Name   string
	Fields []*Decl
}

// Param is a function parameter.
type Param struct {
	Span position.Span
	Name string
	Type string
}

// Func is a function definition. An empty Result means Unit.
type Func struct {
	Span   position.Span
	Name   string
	Params []*Param
	Result string
	Body   []Stmt
}

// ===== Expressions =====

type IntLit struct {
	Span  position.Span
	Value int
}

type BoolLit struct {
	Span  position.Span
	Value bool
}

type NullLit struct {
	Span position.Span
}

type StringLit struct {
	Span  position.Span
	Value string
}

type Ident struct {
	Span position.Span
	Name string
}

// Binary covers arithmetic and comparison operators:
// + - * / % & | ^ << >> == != < <= > >=
type Binary struct {
	Span     position.Span
	Operator string
	Left     Expr
	Right    Expr
}

// And is the short-circuit "and".
type And struct {
	Span        position.Span
	Left, Right Expr
}

// Or is the short-circuit "or".
type Or struct {
	Span        position.Span
	Left, Right Expr
}

// Member is x.name.
type Member struct {
	Span position.Span
	X    Expr
	Name string
}

// NullMember is x?.name, which yields null when x is null.
type NullMember struct {
	Span position.Span
	X    Expr
	Name string
}

// Index is x[i] on an array.
type Index struct {
	Span  position.Span
	X     Expr
	Index Expr
}

// Call invokes a named function or a function-typed value.
type Call struct {
	Span position.Span
	Func Expr
	Args []Expr
}

// ===== Statements =====

// Decl is "var name: Type = init" or "val ...". Type or Init may be
// empty but not both.
type Decl struct {
	Span    position.Span
	Mutable bool
	Name    string
	Type    string
	Init    Expr
}

type Assign struct {
	Span   position.Span
	Target Expr
	Value  Expr
}

// Clause is one arm of an if; a nil Cond is the else arm.
type Clause struct {
	Span position.Span
	Cond Expr
	Body []Stmt
}

type If struct {
	Span    position.Span
	Clauses []*Clause
}

type While struct {
	Span position.Span
	Cond Expr
	Body []Stmt
}

// Repeat runs Body, then leaves the loop once Until holds.
type Repeat struct {
	Span  position.Span
	Body  []Stmt
	Until Expr
}

type Return struct {
	Span  position.Span
	Value Expr
}

type ExprStmt struct {
	Span position.Span
	X    Expr
}

func (*IntLit) exprNode()     {}
func (*BoolLit) exprNode()    {}
func (*NullLit) exprNode()    {}
func (*StringLit) exprNode()  {}
func (*Ident) exprNode()      {}
func (*Binary) exprNode()     {}
func (*And) exprNode()        {}
func (*Or) exprNode()         {}
func (*Member) exprNode()     {}
func (*NullMember) exprNode() {}
func (*Index) exprNode()      {}
func (*Call) exprNode()       {}

func (*Decl) stmtNode()     {}
func (*Assign) stmtNode()   {}
func (*If) stmtNode()       {}
func (*While) stmtNode()    {}
func (*Repeat) stmtNode()   {}
func (*Return) stmtNode()   {}
func (*ExprStmt) stmtNode() {}

func (n *IntLit) GetSpan() position.Span     { return n.Span }
func (n *BoolLit) GetSpan() position.Span    { return n.Span }
func (n *NullLit) GetSpan() position.Span    { return n.Span }
func (n *StringLit) GetSpan() position.Span  { return n.Span }
func (n *Ident) GetSpan() position.Span      { return n.Span }
func (n *Binary) GetSpan() position.Span     { return n.Span }
func (n *And) GetSpan() position.Span        { return n.Span }
func (n *Or) GetSpan() position.Span         { return n.Span }
func (n *Member) GetSpan() position.Span     { return n.Span }
func (n *NullMember) GetSpan() position.Span { return n.Span }
func (n *Index) GetSpan() position.Span      { return n.Span }
func (n *Call) GetSpan() position.Span       { return n.Span }
func (n *Decl) GetSpan() position.Span       { return n.Span }
func (n *Assign) GetSpan() position.Span     { return n.Span }
func (n *If) GetSpan() position.Span         { return n.Span }
func (n *While) GetSpan() position.Span      { return n.Span }
func (n *Repeat) GetSpan() position.Span     { return n.Span }
func (n *Return) GetSpan() position.Span     { return n.Span }
func (n *ExprStmt) GetSpan() position.Span   { return n.Span }

func (n *IntLit) String() string     { return fmt.Sprint(n.Value) }
func (n *BoolLit) String() string    { return fmt.Sprint(n.Value) }
func (n *NullLit) String() string    { return "null" }
func (n *StringLit) String() string  { return fmt.Sprintf("%q", n.Value) }
func (n *Ident) String() string      { return n.Name }
func (n *Binary) String() string     { return fmt.Sprintf("(%s %s %s)", n.Left, n.Operator, n.Right) }
func (n *And) String() string        { return fmt.Sprintf("(%s and %s)", n.Left, n.Right) }
func (n *Or) String() string         { return fmt.Sprintf("(%s or %s)", n.Left, n.Right) }
func (n *Member) String() string     { return fmt.Sprintf("%s.%s", n.X, n.Name) }
func (n *NullMember) String() string { return fmt.Sprintf("%s?.%s", n.X, n.Name) }
func (n *Index) String() string      { return fmt.Sprintf("%s[%s]", n.X, n.Index) }

func (n *Call) String() string {
	args := make([]string, len(n.Args))
	for i, a := range n.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", n.Func, strings.Join(args, ", "))
}

func (n *Decl) String() string {
	kw := "val"
	if n.Mutable {
		kw = "var"
	}
	s := kw + " " + n.Name
	if n.Type != "" {
		s += ":" + n.Type
	}
	if n.Init != nil {
		s += " = " + n.Init.String()
	}
	return s
}

func (n *Assign) String() string   { return fmt.Sprintf("%s = %s", n.Target, n.Value) }
func (n *If) String() string       { return fmt.Sprintf("if (%d clauses)", len(n.Clauses)) }
func (n *While) String() string    { return fmt.Sprintf("while %s", n.Cond) }
func (n *Repeat) String() string   { return fmt.Sprintf("repeat until %s", n.Until) }
func (n *ExprStmt) String() string { return n.X.String() }

func (n *Return) String() string {
	if n.Value == nil {
		return "return"
	}
	return "return " + n.Value.String()
}
