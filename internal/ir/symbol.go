// Package ir defines the register-transfer intermediate representation:
// operands, the instruction vocabulary and the per-function CodeBlock
// container that the lowering step fills in and later passes rewrite.
package ir

import (
	"fmt"
	"strconv"

	"github.com/orizon-lang/rmcc/internal/types"
)

// SymbolKind classifies operands.
type SymbolKind int

const (
	SymReg SymbolKind = iota
	SymLocal
	SymGlobal
	SymMember
	SymIntLit
	SymStringLit
	SymFunction
	SymTemp
	SymError
	SymTypeName
)

func (k SymbolKind) String() string {
	switch k {
	case SymReg:
		return "reg"
	case SymLocal:
		return "local"
	case SymGlobal:
		return "global"
	case SymMember:
		return "member"
	case SymIntLit:
		return "int"
	case SymStringLit:
		return "string"
	case SymFunction:
		return "func"
	case SymTemp:
		return "temp"
	case SymError:
		return "error"
	case SymTypeName:
		return "typename"
	default:
		return "symbol?"
	}
}

// Machine register roles.
const (
	RegZero    = 0
	RegGlobals = 29
	RegLink    = 30
	RegSP      = 31
	NumRegs    = 32

	// FirstGeneral..LastGeneral is the allocatable pool.
	FirstGeneral = 1
	LastGeneral  = 28
	// Registers 1..LastCallerSaved are clobbered by calls.
	LastCallerSaved = 8
	// ResultReg carries a function's return value.
	ResultReg = 8
)

// Symbol is an operand. Symbols are compared by identity: literals are
// interned per Session and temps per CodeBlock, so equal values share a
// pointer.
type Symbol struct {
	Kind SymbolKind
	Name string
	Type *types.Type

	// Mutable applies to locals, globals and members.
	Mutable bool
	// Offset is the byte offset of a global or member.
	Offset int
	// Value is the integer literal value or the register number.
	Value int

	// Expr is the expression a temp was interned under. It is never
	// changed after construction.
	Expr Expr
}

func (s *Symbol) String() string {
	if s == nil {
		return "<nil>"
	}
	switch s.Kind {
	case SymIntLit:
		return strconv.Itoa(s.Value)
	case SymStringLit:
		return strconv.Quote(s.Name)
	default:
		return s.Name
	}
}

// IsVar reports whether the symbol can live in a register.
func (s *Symbol) IsVar() bool {
	return s.Kind == SymLocal || s.Kind == SymReg || s.Kind == SymTemp
}

func (s *Symbol) IsReg() bool    { return s.Kind == SymReg }
func (s *Symbol) IsTemp() bool   { return s.Kind == SymTemp }
func (s *Symbol) IsIntLit() bool { return s.Kind == SymIntLit }

// IsSmallInt reports whether s is a literal that fits the immediate
// field of ALU and branch instructions.
func (s *Symbol) IsSmallInt() bool {
	return s.Kind == SymIntLit && IsSmallImmediate(s.Value)
}

// IsZero reports whether s is the literal 0 or register 0.
func (s *Symbol) IsZero() bool {
	return (s.Kind == SymIntLit || s.Kind == SymReg) && s.Value == 0
}

// IsSmallImmediate reports whether v is encodable in [-0x1000, 0xFFF].
func IsSmallImmediate(v int) bool {
	return v >= -0x1000 && v <= 0xFFF
}

// NewLocal creates a local variable symbol.
func NewLocal(name string, typ *types.Type, mutable bool) *Symbol {
	return &Symbol{Kind: SymLocal, Name: name, Type: typ, Mutable: mutable}
}

// NewGlobal creates a global variable at a byte offset from the globals
// base register.
func NewGlobal(name string, typ *types.Type, offset int, mutable bool) *Symbol {
	return &Symbol{Kind: SymGlobal, Name: name, Type: typ, Offset: offset, Mutable: mutable}
}

// NewMember creates a class member at a byte offset from the object.
func NewMember(name string, typ *types.Type, offset int, mutable bool) *Symbol {
	return &Symbol{Kind: SymMember, Name: name, Type: typ, Offset: offset, Mutable: mutable}
}

// NewTypeName creates a symbol naming a type.
func NewTypeName(name string, typ *types.Type) *Symbol {
	return &Symbol{Kind: SymTypeName, Name: name, Type: typ}
}

// NewError creates the sentinel substituted for an erroneous expression.
func NewError() *Symbol {
	return &Symbol{Kind: SymError, Name: "<ERROR>", Type: types.Error}
}

func newReg(n int) *Symbol {
	name := fmt.Sprintf("%%%d", n)
	switch n {
	case RegZero:
		name = "0"
	case RegSP:
		name = "%sp"
	}
	return &Symbol{Kind: SymReg, Name: name, Type: types.Int, Value: n}
}

// Expr is the defining expression of a temp: an ALU op, a memory size
// class with base and offset, or MOV.
type Expr struct {
	Op AluOp
	A  *Symbol
	B  *Symbol
}

func (e Expr) IsZero() bool {
	return e.A == nil
}

func (e Expr) IsMemory() bool {
	return e.Op.IsMemSize()
}

func (e Expr) String() string {
	if e.IsZero() {
		return "<none>"
	}
	switch {
	case e.Op.IsMemSize():
		return fmt.Sprintf("LD%s %s[%s]", e.Op, e.A, e.B)
	case e.Op == MOV:
		return e.A.String()
	default:
		return fmt.Sprintf("%s %s, %s", e.Op, e.A, e.B)
	}
}
