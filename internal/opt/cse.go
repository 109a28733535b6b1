package opt

import (
	"github.com/orizon-lang/rmcc/internal/ir"
)

// csePass deletes recomputations of temps that are already available and
// folds "base plus constant" address arithmetic into load and store
// offsets.
func (o *Optimizer) csePass(avail *availMap) {
	for pos := range o.cb.Prog {
		switch in := o.cb.Prog[pos].(type) {
		case ir.Alu:
			if !o.redundant(pos, in.Dest, avail) {
				o.merge(pos, in.Dest, avail)
			}
		case ir.Mov:
			o.redundant(pos, in.Dest, avail)
		case ir.Load:
			if o.redundant(pos, in.Dest, avail) || o.merge(pos, in.Dest, avail) {
				continue
			}
			if base, off, ok := o.foldAddress(pos, in.Base, in.Offset, avail); ok {
				o.replace(pos, ir.Load{Size: in.Size, Dest: in.Dest, Base: base, Offset: off})
			}
		case ir.Store:
			if base, off, ok := o.foldAddress(pos, in.Base, in.Offset, avail); ok {
				o.replace(pos, ir.Store{Size: in.Size, Data: in.Data, Base: base, Offset: off})
			}
		}
	}
}

func (o *Optimizer) redundant(pos int, dest *ir.Symbol, avail *availMap) bool {
	if !avail.Available(pos, dest) {
		return false
	}
	o.log.Debugf("%s: CSE %s", o.cb.Name, o.cb.Prog[pos])
	o.remove(pos)
	return true
}

// merge handles a temp defined once whose expression is already held by
// another available temp: uses are redirected to that temp and the
// recomputation is deleted.
func (o *Optimizer) merge(pos int, dest *ir.Symbol, avail *availMap) bool {
	if len(o.cb.Defs(dest)) != 1 {
		return false
	}
	same, ok := avail.Equivalent(pos, dest)
	if !ok {
		return false
	}
	rename := func(s *ir.Symbol) *ir.Symbol {
		if s == dest {
			return same
		}
		return s
	}
	for _, u := range append([]int(nil), o.cb.Uses(dest)...) {
		o.replace(u, ir.MapSymbols(o.cb.Prog[u], rename))
	}
	o.log.Debugf("%s: CSE %s reuses %s", o.cb.Name, o.cb.Prog[pos], same)
	o.remove(pos)
	return true
}

// foldAddress rewrites base[off] to x[k+off] when base is a temp defined
// once as x+k and still available here.
func (o *Optimizer) foldAddress(pos int, base, off *ir.Symbol, avail *availMap) (*ir.Symbol, *ir.Symbol, bool) {
	if !base.IsTemp() || !off.IsIntLit() || !avail.Available(pos, base) {
		return nil, nil, false
	}
	def, ok := o.cb.SingleDef(base)
	if !ok {
		return nil, nil, false
	}
	add, ok := def.(ir.Alu)
	if !ok || add.Op != ir.ADD_I || !add.B.IsIntLit() {
		return nil, nil, false
	}
	k := add.B.Value + off.Value
	if !ir.IsSmallImmediate(k) {
		return nil, nil, false
	}
	return add.A, o.sess.IntLit(k), true
}
