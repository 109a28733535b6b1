package opt

import (
	"github.com/orizon-lang/rmcc/internal/bitmap"
	"github.com/orizon-lang/rmcc/internal/ir"
)

// availMap records, for every instruction, which temps hold the value
// of their defining expression on entry on every path that reaches it.
//
// A temp stops being available when anything its expression depends on
// is redefined. Dependencies are transitive through other temps and
// include memory: a load depends on the global or member slot it
// addresses, or on "other memory" when the address is not statically
// known. Stores and calls kill the memory they may write.
type availMap struct {
	cb *ir.CodeBlock

	// in[i] is the set of available temps on entry to instruction i,
	// indexed by symbol table position.
	in []bitmap.Big

	// exprs holds the common expression of a temp's definitions; the
	// zero Expr means the temp is never available.
	exprs []ir.Expr

	// byExpr lists the temps computing each expression.
	byExpr map[ir.Expr][]int

	// dependents[k] lists the temps that a write to dependency k kills.
	// Symbol indexes come first, then one pseudo index for other memory,
	// then one per addressed memory slot.
	dependents [][]int
	other      int
	slots      map[*ir.Symbol]int
	slotSyms   []*ir.Symbol
}

// exprOf returns the expression computed by a defining instruction.
func exprOf(in ir.Instr, zero *ir.Symbol) (ir.Expr, bool) {
	switch in := in.(type) {
	case ir.Alu:
		return ir.Expr{Op: in.Op, A: in.A, B: in.B}, true
	case ir.Load:
		return ir.Expr{Op: in.Size, A: in.Base, B: in.Offset}, true
	case ir.Mov:
		return ir.Expr{Op: ir.MOV, A: in.Src, B: zero}, true
	}
	return ir.Expr{}, false
}

// computeAvailable runs the forward must-analysis over a freshly rebuilt
// block.
func computeAvailable(cb *ir.CodeBlock) *availMap {
	syms := cb.Symbols()
	n := len(syms)
	zero := cb.Session().Zero()

	m := &availMap{
		cb:    cb,
		exprs:  make([]ir.Expr, n),
		byExpr: make(map[ir.Expr][]int),
		other: n,
		slots: make(map[*ir.Symbol]int),
	}

	var temps []int
	for i, s := range syms {
		if s.IsTemp() {
			temps = append(temps, i)
			m.exprs[i] = m.commonExpr(s, zero)
		}
	}

	// Memory slots get pseudo indexes after "other memory".
	for _, t := range temps {
		e := m.exprs[t]
		if !e.IsMemory() {
			continue
		}
		if k := e.B.Kind; k == ir.SymGlobal || k == ir.SymMember {
			if _, ok := m.slots[e.B]; !ok {
				m.slots[e.B] = n + 1 + len(m.slotSyms)
				m.slotSyms = append(m.slotSyms, e.B)
			}
		}
	}
	m.dependents = make([][]int, n+1+len(m.slotSyms))

	deps := make(map[int]bitmap.Big, len(temps))
	for _, t := range temps {
		d := m.closure(t, deps, map[int]bool{})
		if d.IsSet(t) {
			m.exprs[t] = ir.Expr{}
		}
		d.Range(func(k int) bool {
			m.dependents[k] = append(m.dependents[k], t)
			return true
		})
	}

	var universe bitmap.Big
	for _, t := range temps {
		if e := m.exprs[t]; !e.IsZero() {
			universe.Set(t)
			m.byExpr[e] = append(m.byExpr[e], t)
		}
	}

	m.propagate(universe)
	return m
}

// commonExpr returns the expression shared by all definitions of t.
func (m *availMap) commonExpr(t, zero *ir.Symbol) ir.Expr {
	var common ir.Expr
	for _, pos := range m.cb.Defs(t) {
		e, ok := exprOf(m.cb.Prog[pos], zero)
		if !ok {
			return ir.Expr{}
		}
		if common.IsZero() {
			common = e
		} else if common != e {
			return ir.Expr{}
		}
	}
	return common
}

// closure returns everything temp t transitively depends on.
func (m *availMap) closure(t int, memo map[int]bitmap.Big, visiting map[int]bool) bitmap.Big {
	if d, ok := memo[t]; ok {
		return d
	}
	var d bitmap.Big
	if visiting[t] {
		d.Set(t)
		return d
	}
	visiting[t] = true

	syms := m.cb.Symbols()
	for _, pos := range m.cb.Defs(syms[t]) {
		in := m.cb.Prog[pos]
		for _, s := range ir.Reads(in) {
			k := m.cb.Index(s)
			d.Set(k)
			if s.IsTemp() {
				d.Or(m.closure(k, memo, visiting))
			}
		}
		if ld, ok := in.(ir.Load); ok {
			if slot, ok := m.slots[ld.Offset]; ok {
				d.Set(slot)
			} else {
				d.Set(m.other)
			}
		}
	}

	visiting[t] = false
	memo[t] = d
	return d
}

// predecessors lists, for every instruction, the instructions that can
// run immediately before it.
func predecessors(cb *ir.CodeBlock) [][]int {
	preds := make([][]int, len(cb.Prog))
	for i, in := range cb.Prog {
		if i > 0 {
			switch cb.Prog[i-1].(type) {
			case ir.Jump, ir.End:
			default:
				preds[i] = append(preds[i], i-1)
			}
		}
		if mk, ok := in.(ir.Mark); ok {
			preds[i] = append(preds[i], cb.LabelUses(mk.Label)...)
		}
	}
	return preds
}

func (m *availMap) propagate(universe bitmap.Big) {
	prog := m.cb.Prog
	preds := predecessors(m.cb)

	m.in = make([]bitmap.Big, len(prog))
	out := make([]bitmap.Big, len(prog))
	for i := range prog {
		m.in[i] = universe.Copy()
		out[i] = universe.Copy()
	}

	for changed := true; changed; {
		changed = false
		for i := range prog {
			var cur bitmap.Big
			seeded := false
			if i == 0 {
				seeded = true
			}
			for _, p := range preds[i] {
				if !seeded {
					cur = out[p].Copy()
					seeded = true
				} else {
					cur.And(out[p])
				}
			}
			if !seeded {
				// No predecessor: unreachable, leave everything available.
				cur = universe.Copy()
			}
			m.in[i] = cur

			next := m.transfer(prog[i], cur)
			if !next.Equal(out[i]) {
				out[i] = next
				changed = true
			}
		}
	}
}

func (m *availMap) transfer(in ir.Instr, avail bitmap.Big) bitmap.Big {
	out := avail.Copy()
	kill := func(k int) {
		for _, t := range m.dependents[k] {
			out.Clear(t)
		}
	}

	switch in := in.(type) {
	case ir.Store:
		kill(m.other)
		if slot, ok := m.slots[in.Offset]; ok {
			kill(slot)
		} else if k := in.Offset.Kind; k != ir.SymGlobal && k != ir.SymMember {
			for _, slot := range m.slots {
				kill(slot)
			}
		}
	case ir.Call, ir.CallR:
		kill(m.other)
		for sym, slot := range m.slots {
			if sym.Mutable {
				kill(slot)
			}
		}
		for r := ir.FirstGeneral; r <= ir.LastCallerSaved; r++ {
			kill(r)
		}
	}

	d := ir.Dest(in)
	if d == nil || (d.IsReg() && d.Value == ir.RegSP) {
		return out
	}
	di := m.cb.Index(d)
	known := d.IsTemp() && !m.exprs[di].IsZero()
	if known && avail.IsSet(di) {
		// Recomputing an available temp leaves its value unchanged.
		return out
	}
	kill(di)
	if known {
		out.Set(di)
	}
	return out
}

// Available reports whether temp t holds its expression's value on
// entry to instruction pos.
func (m *availMap) Available(pos int, t *ir.Symbol) bool {
	if !t.IsTemp() {
		return false
	}
	i := m.cb.Index(t)
	return i >= 0 && m.in[pos].IsSet(i)
}

// Equivalent returns a temp other than t that is defined once, computes
// the same expression as t and is available on entry to pos.
func (m *availMap) Equivalent(pos int, t *ir.Symbol) (*ir.Symbol, bool) {
	i := m.cb.Index(t)
	if i < 0 || !t.IsTemp() || m.exprs[i].IsZero() {
		return nil, false
	}
	syms := m.cb.Symbols()
	for _, u := range m.byExpr[m.exprs[i]] {
		if u != i && len(m.cb.Defs(syms[u])) == 1 && m.in[pos].IsSet(u) {
			return syms[u], true
		}
	}
	return nil, false
}
