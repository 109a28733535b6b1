package opt

import (
	"math/bits"

	"github.com/orizon-lang/rmcc/internal/ir"
)

// peepholePass walks the block once, removing code that follows an
// unconditional jump up to the next label and applying the local
// rewrite rules to everything else.
func (o *Optimizer) peepholePass() {
	reachable := true
	for pos := range o.cb.Prog {
		if _, ok := o.cb.Prog[pos].(ir.Mark); ok {
			reachable = true
		}
		if reachable {
			o.peephole(pos)
		} else {
			o.remove(pos)
		}
		if _, ok := o.cb.Prog[pos].(ir.Jump); ok {
			reachable = false
		}
	}
}

func (o *Optimizer) peephole(pos int) {
	switch in := o.cb.Prog[pos].(type) {
	case ir.Mov:
		o.mov(pos, in)
	case ir.Alu:
		o.alu(pos, in)
	case ir.Load:
		o.deadDest(pos, in.Dest)
	case ir.Lea:
		o.deadDest(pos, in.Dest)
	case ir.Jump:
		o.jump(pos, in)
	case ir.Branch:
		o.branch(pos, in)
	case ir.Mark:
		if len(o.cb.LabelUses(in.Label)) == 0 {
			o.remove(pos)
		}
	case ir.Store:
		if in.Data.IsVar() {
			if c := o.constValue(in.Data); c != nil && c.Value == 0 {
				o.replace(pos, ir.Store{Size: in.Size, Data: o.sess.Zero(), Base: in.Base, Offset: in.Offset})
			}
		}
	}
}

// deadDest removes an instruction whose result is never read. Machine
// registers are observable outside the block and never count as dead.
func (o *Optimizer) deadDest(pos int, dest *ir.Symbol) bool {
	if dest.IsReg() || len(o.cb.Uses(dest)) != 0 {
		return false
	}
	o.remove(pos)
	return true
}

func (o *Optimizer) mov(pos int, in ir.Mov) {
	if o.deadDest(pos, in.Dest) {
		return
	}
	if in.Dest == in.Src {
		o.remove(pos)
		return
	}
	if in.Src.IsVar() {
		if c := o.constValue(in.Src); c != nil {
			o.replace(pos, ir.Mov{Dest: in.Dest, Src: c})
		}
	}
}

func (o *Optimizer) alu(pos int, in ir.Alu) {
	if o.deadDest(pos, in.Dest) {
		return
	}

	ac := o.constValue(in.A)
	bc := o.constValue(in.B)

	if ac != nil && bc != nil {
		if v, ok := ir.Eval(in.Op, ac.Value, bc.Value); ok {
			o.replace(pos, ir.Mov{Dest: in.Dest, Src: o.sess.TypedIntLit(v, in.Dest.Type)})
			return
		}
	}

	// Move a small constant to the right-hand side where it can be
	// encoded as an immediate.
	if ac != nil && bc == nil && in.Op.IsCommutative() && ac.IsSmallInt() && (in.A.IsVar() || ac.Value == 0) {
		o.replace(pos, ir.Alu{Op: in.Op, Dest: in.Dest, A: in.B, B: ac})
		return
	}

	if bc == nil {
		return
	}

	if in.B.IsVar() {
		if op, k, ok := ir.ImmediateForm(in.Op, bc.Value); ok {
			if k != bc.Value {
				bc = o.sess.TypedIntLit(k, bc.Type)
			}
			o.replace(pos, ir.Alu{Op: op, Dest: in.Dest, A: in.A, B: bc})
			return
		}
	}

	zero := o.sess.Zero()
	switch v := bc.Value; {
	case v == 0 && (in.Op == ir.ADD_I || in.Op == ir.SUB_I || in.Op == ir.OR_I || in.Op == ir.XOR_I ||
		in.Op == ir.LSL_I || in.Op == ir.LSR_I || in.Op == ir.ASR_I):
		o.replace(pos, ir.Mov{Dest: in.Dest, Src: in.A})
	case v == 0 && (in.Op == ir.AND_I || in.Op == ir.MUL_I):
		o.replace(pos, ir.Mov{Dest: in.Dest, Src: zero})
	case v == 1 && in.Op == ir.MUL_I:
		o.replace(pos, ir.Mov{Dest: in.Dest, Src: in.A})
	case isPowerOf2(v) && in.Op == ir.MUL_I:
		o.replace(pos, ir.Alu{Op: ir.LSL_I, Dest: in.Dest, A: in.A, B: o.sess.IntLit(log2(v))})
	case isPowerOf2(v) && in.Op == ir.DIV_I:
		o.replace(pos, ir.Alu{Op: ir.ASR_I, Dest: in.Dest, A: in.A, B: o.sess.IntLit(log2(v))})
	case isPowerOf2(v) && in.Op == ir.MOD_I && v <= 0x1000:
		o.replace(pos, ir.Alu{Op: ir.AND_I, Dest: in.Dest, A: in.A, B: o.sess.IntLit(v - 1)})
	}
}

func (o *Optimizer) jump(pos int, in ir.Jump) {
	if o.cb.LabelPos(in.Target) == pos+1 {
		o.remove(pos)
		return
	}
	if t := o.finalTarget(in.Target); t != in.Target {
		o.replace(pos, ir.Jump{Target: t})
	}
}

func (o *Optimizer) branch(pos int, in ir.Branch) {
	prog := o.cb.Prog
	target := o.cb.LabelPos(in.Target)

	if target == pos+1 {
		o.remove(pos)
		return
	}

	ac := o.constValue(in.A)
	bc := o.constValue(in.B)
	if ac != nil && bc != nil {
		if taken, ok := ir.Compare(in.Op, ac.Value, bc.Value); ok {
			if taken {
				o.replace(pos, ir.Jump{Target: in.Target})
			} else {
				o.remove(pos)
			}
			return
		}
	}

	if t := o.finalTarget(in.Target); t != in.Target {
		o.replace(pos, ir.Branch{Op: in.Op, Target: t, A: in.A, B: in.B})
		return
	}

	zero := o.sess.Zero()
	if in.A.IsVar() && ac != nil && ac.Value == 0 {
		o.replace(pos, ir.Branch{Op: in.Op, Target: in.Target, A: zero, B: in.B})
		return
	}
	if in.B.IsVar() && bc != nil && bc.Value == 0 {
		o.replace(pos, ir.Branch{Op: in.Op, Target: in.Target, A: in.A, B: zero})
		return
	}

	// A branch over an unconditional jump becomes the inverted branch to
	// the jump's target.
	if target == pos+2 && pos+1 < len(prog) {
		if j, ok := prog[pos+1].(ir.Jump); ok {
			if inv, ok := in.Op.Invert(); ok {
				o.replace(pos, ir.Branch{Op: inv, Target: j.Target, A: in.A, B: in.B})
				o.remove(pos + 1)
			}
		}
	}
}

// finalTarget follows a chain of labels that are immediately followed by
// an unconditional jump. Chains that loop back on themselves are left
// alone.
func (o *Optimizer) finalTarget(l ir.Label) ir.Label {
	seen := map[ir.Label]bool{l: true}
	cur := l
	for {
		pos := o.cb.LabelPos(cur)
		if pos < 0 || pos+1 >= len(o.cb.Prog) {
			return cur
		}
		j, ok := o.cb.Prog[pos+1].(ir.Jump)
		if !ok {
			return cur
		}
		if seen[j.Target] {
			return l
		}
		seen[j.Target] = true
		cur = j.Target
	}
}

// constValue returns the literal that s is known to hold: s itself if it
// is a literal, or the literal moved into a temp or local with a single
// definition, following chains of such moves.
func (o *Optimizer) constValue(s *ir.Symbol) *ir.Symbol {
	seen := 0
	for {
		if s.IsIntLit() {
			return s
		}
		if s.Kind != ir.SymTemp && s.Kind != ir.SymLocal {
			return nil
		}
		def, ok := o.cb.SingleDef(s)
		if !ok {
			return nil
		}
		mov, ok := def.(ir.Mov)
		if !ok {
			return nil
		}
		s = mov.Src
		if seen++; seen > len(o.cb.Prog) {
			return nil
		}
	}
}

func isPowerOf2(v int) bool {
	return v > 0 && v&(v-1) == 0
}

func log2(v int) int {
	return bits.Len(uint(v)) - 1
}
