package ir

import (
	"fmt"

	"github.com/orizon-lang/rmcc/internal/errors"
	"github.com/orizon-lang/rmcc/internal/types"
)

// CodeBlock holds the instructions of one function, or of top-level
// initialisation code.
//
// Symbols are stored in a per-block table; the first NumRegs entries are
// always the machine registers, so a register's table index equals its
// number. Def/use lists and label positions are indexes into Prog and are
// recomputed wholesale by Rebuild.
type CodeBlock struct {
	Name string
	Prog []Instr

	// MaxRegister is the highest general register assigned by the
	// register allocator.
	MaxRegister int

	sess      *Session
	symbols   []*Symbol
	index     map[*Symbol]int
	defs      [][]int
	uses      [][]int
	labelPos  []int
	labelUses [][]int
	temps     map[Expr]*Symbol
	numTemps  int
}

func newCodeBlock(sess *Session, name string) *CodeBlock {
	cb := &CodeBlock{
		Name:  name,
		sess:  sess,
		index: make(map[*Symbol]int),
		temps: make(map[Expr]*Symbol),
	}
	for i := 0; i < NumRegs; i++ {
		cb.AddSymbol(sess.Reg(i))
	}
	return cb
}

// Session returns the owning session.
func (cb *CodeBlock) Session() *Session { return cb.sess }

// Reg returns machine register n.
func (cb *CodeBlock) Reg(n int) *Symbol { return cb.sess.Reg(n) }

// ====== Symbol table ======

// AddSymbol records s in the block's symbol table and returns its index.
func (cb *CodeBlock) AddSymbol(s *Symbol) int {
	if i, ok := cb.index[s]; ok {
		return i
	}
	i := len(cb.symbols)
	cb.symbols = append(cb.symbols, s)
	cb.index[s] = i
	cb.defs = append(cb.defs, nil)
	cb.uses = append(cb.uses, nil)
	return i
}

// Index returns the table index of s, or -1.
func (cb *CodeBlock) Index(s *Symbol) int {
	if i, ok := cb.index[s]; ok {
		return i
	}
	return -1
}

// Symbols returns the symbol table. Callers must not modify it.
func (cb *CodeBlock) Symbols() []*Symbol { return cb.symbols }

func (cb *CodeBlock) NumSymbols() int { return len(cb.symbols) }

// Defs returns the positions of the instructions writing s.
func (cb *CodeBlock) Defs(s *Symbol) []int {
	if i := cb.Index(s); i >= 0 {
		return cb.defs[i]
	}
	return nil
}

// Uses returns the positions of the instructions reading s.
func (cb *CodeBlock) Uses(s *Symbol) []int {
	if i := cb.Index(s); i >= 0 {
		return cb.uses[i]
	}
	return nil
}

// SingleDef returns the only instruction writing variable s.
func (cb *CodeBlock) SingleDef(s *Symbol) (Instr, bool) {
	if !s.IsVar() {
		return nil, false
	}
	d := cb.Defs(s)
	if len(d) != 1 {
		return nil, false
	}
	return cb.Prog[d[0]], true
}

// ====== Labels ======

// NewLabel allocates a fresh label.
func (cb *CodeBlock) NewLabel() Label {
	l := Label(len(cb.labelPos))
	cb.labelPos = append(cb.labelPos, -1)
	cb.labelUses = append(cb.labelUses, nil)
	return l
}

func (cb *CodeBlock) NumLabels() int { return len(cb.labelPos) }

// LabelPos returns the position of the instruction defining l, or -1.
func (cb *CodeBlock) LabelPos(l Label) int {
	if int(l) < 0 || int(l) >= len(cb.labelPos) {
		return -1
	}
	return cb.labelPos[l]
}

// LabelUses returns the positions of the branches and jumps targeting l.
func (cb *CodeBlock) LabelUses(l Label) []int {
	if int(l) < 0 || int(l) >= len(cb.labelUses) {
		return nil
	}
	return cb.labelUses[l]
}

// ensureLabel makes l a valid id, for IR read from text.
func (cb *CodeBlock) ensureLabel(l Label) {
	for int(l) >= len(cb.labelPos) {
		cb.NewLabel()
	}
}

// ====== Temps ======

// NewTemp returns the temp interned under e, allocating one on first use.
// A zero Expr always allocates.
func (cb *CodeBlock) NewTemp(typ *types.Type, e Expr) *Symbol {
	if !e.IsZero() {
		if t, ok := cb.temps[e]; ok {
			return t
		}
	}
	t := &Symbol{Kind: SymTemp, Name: fmt.Sprintf("&%d", cb.numTemps), Type: typ, Expr: e}
	cb.numTemps++
	if !e.IsZero() {
		cb.temps[e] = t
	}
	cb.AddSymbol(t)
	return t
}

// TempByNumber returns temp &n, creating it when text IR names a temp
// before its definition.
func (cb *CodeBlock) TempByNumber(n int, typ *types.Type) *Symbol {
	for _, s := range cb.symbols {
		if s.Kind == SymTemp && s.Name == fmt.Sprintf("&%d", n) {
			return s
		}
	}
	if n >= cb.numTemps {
		cb.numTemps = n + 1
	}
	t := &Symbol{Kind: SymTemp, Name: fmt.Sprintf("&%d", n), Type: typ}
	cb.AddSymbol(t)
	return t
}

// ====== Instruction list ======

// Append adds in to the end of the block.
func (cb *CodeBlock) Append(in Instr) {
	cb.Prog = append(cb.Prog, in)
	cb.link(len(cb.Prog) - 1)
}

// Replace swaps the instruction at pos, keeping def/use lists current.
func (cb *CodeBlock) Replace(pos int, in Instr) {
	cb.unlink(pos)
	cb.Prog[pos] = in
	cb.link(pos)
}

// Remove turns the instruction at pos into a Nop.
func (cb *CodeBlock) Remove(pos int) {
	if _, ok := cb.Prog[pos].(Nop); ok {
		return
	}
	cb.Replace(pos, Nop{})
}

func (cb *CodeBlock) link(pos int) {
	in := cb.Prog[pos]
	if d := Dest(in); d != nil {
		i := cb.AddSymbol(d)
		cb.defs[i] = append(cb.defs[i], pos)
	}
	for _, s := range Operands(in) {
		i := cb.AddSymbol(s)
		if s.IsVar() {
			cb.uses[i] = append(cb.uses[i], pos)
		}
	}
	switch in := in.(type) {
	case Mark:
		cb.ensureLabel(in.Label)
		cb.labelPos[in.Label] = pos
	case Branch:
		cb.ensureLabel(in.Target)
		cb.labelUses[in.Target] = append(cb.labelUses[in.Target], pos)
	case Jump:
		cb.ensureLabel(in.Target)
		cb.labelUses[in.Target] = append(cb.labelUses[in.Target], pos)
	}
}

func (cb *CodeBlock) unlink(pos int) {
	in := cb.Prog[pos]
	if d := Dest(in); d != nil {
		i := cb.index[d]
		cb.defs[i] = without(cb.defs[i], pos)
	}
	for _, s := range Reads(in) {
		i := cb.index[s]
		cb.uses[i] = without(cb.uses[i], pos)
	}
	switch in := in.(type) {
	case Mark:
		if cb.labelPos[in.Label] == pos {
			cb.labelPos[in.Label] = -1
		}
	case Branch:
		cb.labelUses[in.Target] = without(cb.labelUses[in.Target], pos)
	case Jump:
		cb.labelUses[in.Target] = without(cb.labelUses[in.Target], pos)
	}
}

func without(list []int, pos int) []int {
	for i, p := range list {
		if p == pos {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}

// ====== Builder ======

// AddStart emits the prologue marker.
func (cb *CodeBlock) AddStart() {
	cb.Append(Start{})
}

// AddAluOp emits dest = lhs op rhs and returns dest. Two integer literal
// operands are folded into a literal without emitting anything.
func (cb *CodeBlock) AddAluOp(op AluOp, lhs, rhs *Symbol) *Symbol {
	typ := lhs.Type
	if op.IsCompare() {
		typ = types.Bool
	}
	if lhs.IsIntLit() && rhs.IsIntLit() {
		if v, ok := Eval(op, lhs.Value, rhs.Value); ok {
			return cb.sess.TypedIntLit(v, typ)
		}
	}
	dest := cb.NewTemp(typ, Expr{Op: op, A: lhs, B: rhs})
	cb.Append(Alu{Op: op, Dest: dest, A: lhs, B: rhs})
	return dest
}

// AddLoad reads a value of type typ from base[offset].
func (cb *CodeBlock) AddLoad(typ *types.Type, base, offset *Symbol) *Symbol {
	size := sizeClass(typ, "load")
	dest := cb.NewTemp(typ, Expr{Op: size, A: base, B: offset})
	cb.Append(Load{Size: size, Dest: dest, Base: base, Offset: offset})
	return dest
}

// AddStore writes data, sized by typ, to base[offset].
func (cb *CodeBlock) AddStore(typ *types.Type, data, base, offset *Symbol) {
	size := sizeClass(typ, "store")
	cb.Append(Store{Size: size, Data: data, Base: base, Offset: offset})
	cb.forgetLoads()
}

func sizeClass(typ *types.Type, context string) AluOp {
	size, ok := SizeClass(typ.Size())
	if !ok {
		errors.Fatal(errors.UnsupportedSize(typ.Size(), context))
	}
	return size
}

func (cb *CodeBlock) AddMov(dest, src *Symbol) {
	cb.Append(Mov{Dest: dest, Src: src})
}

// AddCopy materialises src in a temp. Copies of the same literal share
// one temp.
func (cb *CodeBlock) AddCopy(src *Symbol) *Symbol {
	dest := cb.NewTemp(src.Type, Expr{Op: MOV, A: src, B: cb.sess.Zero()})
	cb.Append(Mov{Dest: dest, Src: src})
	return dest
}

func (cb *CodeBlock) AddBranch(op AluOp, target Label, lhs, rhs *Symbol) {
	if !op.IsCompare() {
		errors.Fatal(errors.UnreachableInstruction(fmt.Sprintf("branch on %s", op)))
	}
	cb.Append(Branch{Op: op, Target: target, A: lhs, B: rhs})
}

func (cb *CodeBlock) AddJump(target Label) {
	cb.Append(Jump{Target: target})
}

func (cb *CodeBlock) AddLabel(l Label) {
	cb.Append(Mark{Label: l})
}

// AddCall calls fn with its first nargs arguments already in %1..%nargs.
func (cb *CodeBlock) AddCall(fn *Symbol, nargs int) {
	cb.Append(Call{Func: fn, Args: cb.argRegs(nargs)})
	cb.forgetLoads()
}

// AddCallR calls through the address held in target.
func (cb *CodeBlock) AddCallR(target *Symbol, nargs int) {
	cb.Append(CallR{Target: target, Args: cb.argRegs(nargs)})
	cb.forgetLoads()
}

// forgetLoads drops interned loads after an instruction that may write
// memory. A later load of the same address gets a fresh temp, so a temp
// is never redefined with a different value; CSE merges the two again
// when the write cannot reach the slot.
func (cb *CodeBlock) forgetLoads() {
	for e := range cb.temps {
		if e.IsMemory() {
			delete(cb.temps, e)
		}
	}
}

func (cb *CodeBlock) argRegs(n int) []*Symbol {
	if n > LastCallerSaved {
		errors.Fatal(errors.UnreachableInstruction(fmt.Sprintf("call with %d arguments", n)))
	}
	args := make([]*Symbol, n)
	for i := range args {
		args[i] = cb.Reg(FirstGeneral + i)
	}
	return args
}

// AddLea loads the address of a function or string literal.
func (cb *CodeBlock) AddLea(sym *Symbol) *Symbol {
	if sym.Kind != SymFunction && sym.Kind != SymStringLit {
		errors.Fatal(errors.UnreachableInstruction(fmt.Sprintf("LEA of %s %s", sym.Kind, sym)))
	}
	dest := cb.NewTemp(sym.Type, Expr{})
	cb.Append(Lea{Dest: dest, Sym: sym})
	return dest
}

func (cb *CodeBlock) AddLabelHere() Label {
	l := cb.NewLabel()
	cb.AddLabel(l)
	return l
}

// AddEnd terminates the block with the given live results.
func (cb *CodeBlock) AddEnd(results ...*Symbol) {
	cb.Append(End{Results: results})
}

// HasCalls reports whether the block calls another function.
func (cb *CodeBlock) HasCalls() bool {
	for _, in := range cb.Prog {
		if IsCall(in) {
			return true
		}
	}
	return false
}
