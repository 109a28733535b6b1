package ir

import (
	"fmt"
	"strings"
)

// Label identifies a jump target within one CodeBlock.
type Label int

func (l Label) String() string { return fmt.Sprintf("@%d", int(l)) }

// Instr is implemented by all IR instructions.
type Instr interface {
	isInstr()
	String() string
}

// Alu computes Dest = A op B.
type Alu struct {
	Op   AluOp
	Dest *Symbol
	A    *Symbol
	B    *Symbol
}

// Branch jumps to Target when A op B holds.
type Branch struct {
	Op     AluOp
	Target Label
	A      *Symbol
	B      *Symbol
}

// Jump transfers control unconditionally.
type Jump struct{ Target Label }

// Mark defines a label at its position.
type Mark struct{ Label Label }

// Load reads Size bytes from Base[Offset]. Offset is an integer literal
// or a global/member whose byte offset is used.
type Load struct {
	Size   AluOp
	Dest   *Symbol
	Base   *Symbol
	Offset *Symbol
}

// Store writes Data to Base[Offset].
type Store struct {
	Size   AluOp
	Data   *Symbol
	Base   *Symbol
	Offset *Symbol
}

type Mov struct {
	Dest *Symbol
	Src  *Symbol
}

// Lea loads the address of a function or string literal.
type Lea struct {
	Dest *Symbol
	Sym  *Symbol
}

// Call invokes a function directly. Args are the argument registers it reads.
type Call struct {
	Func *Symbol
	Args []*Symbol
}

// CallR invokes the function whose address is held in Target.
type CallR struct {
	Target *Symbol
	Args   []*Symbol
}

// Start marks where the prologue goes.
type Start struct{}

// End terminates the block; Results are live on exit.
type End struct{ Results []*Symbol }

// Nop is a placeholder removed by Rebuild.
type Nop struct{}

func (Alu) isInstr()    {}
func (Branch) isInstr() {}
func (Jump) isInstr()   {}
func (Mark) isInstr()   {}
func (Load) isInstr()   {}
func (Store) isInstr()  {}
func (Mov) isInstr()    {}
func (Lea) isInstr()    {}
func (Call) isInstr()   {}
func (CallR) isInstr()  {}
func (Start) isInstr()  {}
func (End) isInstr()    {}
func (Nop) isInstr()    {}

func (i Alu) String() string { return fmt.Sprintf("%s %s, %s, %s", i.Op, i.Dest, i.A, i.B) }
func (i Branch) String() string {
	return fmt.Sprintf("B%s %s, %s, %s", i.Op, i.A, i.B, i.Target)
}
func (i Jump) String() string  { return fmt.Sprintf("JMP %s", i.Target) }
func (i Mark) String() string  { return fmt.Sprintf("%s:", i.Label) }
func (i Load) String() string  { return fmt.Sprintf("LD%s %s, %s[%s]", i.Size, i.Dest, i.Base, i.Offset) }
func (i Store) String() string { return fmt.Sprintf("ST%s %s, %s[%s]", i.Size, i.Data, i.Base, i.Offset) }
func (i Mov) String() string   { return fmt.Sprintf("MOV %s, %s", i.Dest, i.Src) }
func (i Lea) String() string   { return fmt.Sprintf("LEA %s, %s", i.Dest, i.Sym) }
func (i Call) String() string  { return withArgs("CALL "+i.Func.Name, len(i.Args)) }
func (i CallR) String() string { return withArgs("CALLR "+i.Target.String(), len(i.Args)) }
func (Start) String() string   { return "START" }
func (Nop) String() string     { return "NOP" }

func (i End) String() string {
	if len(i.Results) == 0 {
		return "END"
	}
	names := make([]string, len(i.Results))
	for k, r := range i.Results {
		names[k] = r.String()
	}
	return "END " + strings.Join(names, ", ")
}

func withArgs(s string, n int) string {
	if n == 0 {
		return s
	}
	return fmt.Sprintf("%s %d", s, n)
}

// Dest returns the symbol written by in, or nil.
func Dest(in Instr) *Symbol {
	switch in := in.(type) {
	case Alu:
		return in.Dest
	case Load:
		return in.Dest
	case Mov:
		return in.Dest
	case Lea:
		return in.Dest
	}
	return nil
}

// Operands returns every symbol read by in, including literals.
func Operands(in Instr) []*Symbol {
	switch in := in.(type) {
	case Alu:
		return []*Symbol{in.A, in.B}
	case Branch:
		return []*Symbol{in.A, in.B}
	case Load:
		return []*Symbol{in.Base, in.Offset}
	case Store:
		return []*Symbol{in.Data, in.Base, in.Offset}
	case Mov:
		return []*Symbol{in.Src}
	case Lea:
		return []*Symbol{in.Sym}
	case Call:
		return in.Args
	case CallR:
		return append([]*Symbol{in.Target}, in.Args...)
	case End:
		return in.Results
	}
	return nil
}

// Reads returns the variables read by in; literals and other
// non-register operands are dropped.
func Reads(in Instr) []*Symbol {
	ops := Operands(in)
	out := ops[:0:0]
	for _, s := range ops {
		if s.IsVar() {
			out = append(out, s)
		}
	}
	return out
}

// Target returns the label a branch or jump refers to.
func Target(in Instr) (Label, bool) {
	switch in := in.(type) {
	case Branch:
		return in.Target, true
	case Jump:
		return in.Target, true
	}
	return 0, false
}

// IsCall reports whether in transfers control to another function.
func IsCall(in Instr) bool {
	switch in.(type) {
	case Call, CallR:
		return true
	}
	return false
}

// MapSymbols returns a copy of in with every symbol operand, including
// the destination, replaced by f.
func MapSymbols(in Instr, f func(*Symbol) *Symbol) Instr {
	switch in := in.(type) {
	case Alu:
		return Alu{Op: in.Op, Dest: f(in.Dest), A: f(in.A), B: f(in.B)}
	case Branch:
		return Branch{Op: in.Op, Target: in.Target, A: f(in.A), B: f(in.B)}
	case Load:
		return Load{Size: in.Size, Dest: f(in.Dest), Base: f(in.Base), Offset: f(in.Offset)}
	case Store:
		return Store{Size: in.Size, Data: f(in.Data), Base: f(in.Base), Offset: f(in.Offset)}
	case Mov:
		return Mov{Dest: f(in.Dest), Src: f(in.Src)}
	case Lea:
		return Lea{Dest: f(in.Dest), Sym: f(in.Sym)}
	case Call:
		return Call{Func: in.Func, Args: mapAll(in.Args, f)}
	case CallR:
		return CallR{Target: f(in.Target), Args: mapAll(in.Args, f)}
	case End:
		return End{Results: mapAll(in.Results, f)}
	}
	return in
}

func mapAll(syms []*Symbol, f func(*Symbol) *Symbol) []*Symbol {
	if syms == nil {
		return nil
	}
	out := make([]*Symbol, len(syms))
	for i, s := range syms {
		out[i] = f(s)
	}
	return out
}
