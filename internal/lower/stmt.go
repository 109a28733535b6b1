package lower

import (
	"github.com/orizon-lang/rmcc/internal/diagnostic"
	"github.com/orizon-lang/rmcc/internal/ir"
	"github.com/orizon-lang/rmcc/internal/pathstate"
	"github.com/orizon-lang/rmcc/internal/types"
)

// ====== Statements ======

// stmts lowers a block in its own scope.
func (l *Lowerer) stmts(list []Stmt) {
	l.push()
	for _, s := range list {
		l.stmt(s)
	}
	l.pop()
}

func (l *Lowerer) stmt(s Stmt) {
	switch s := s.(type) {
	case *Decl:
		l.local(s)
	case *Assign:
		v := l.expr(s.Value)
		l.assign(s.Target, v)
	case *If:
		l.ifStmt(s)
	case *While:
		l.while(s)
	case *Repeat:
		l.repeat(s)
	case *Return:
		l.ret(s)
	case *ExprStmt:
		l.expr(s.X)
	}
}

// ifStmt tests each clause in turn. The state after the statement joins
// the end of every body with the fall-through state when there is no
// else clause.
func (l *Lowerer) ifStmt(s *If) {
	end := l.cb.NewLabel()
	var outs []pathstate.PathState
	hasElse := false

	for _, c := range s.Clauses {
		if c.Cond == nil {
			l.stmts(c.Body)
			outs = append(outs, l.state)
			hasElse = true
			break
		}
		then, next := l.cb.NewLabel(), l.cb.NewLabel()
		l.cond(c.Cond, then, next)
		onFalse := l.stateFalse

		l.cb.AddLabel(then)
		l.state = l.stateTrue
		l.stmts(c.Body)
		outs = append(outs, l.state)
		l.cb.AddJump(end)

		l.cb.AddLabel(next)
		l.state = onFalse
	}
	if !hasElse {
		outs = append(outs, l.state)
	}

	l.cb.AddLabel(end)
	l.state = pathstate.Join(outs...)
}

// while lowers a pre-test loop: jump to the condition, body, condition
// branching back to the body. Execution continues in the state where
// the condition was false.
func (l *Lowerer) while(s *While) {
	pre := l.state
	body, cond, end := l.cb.NewLabel(), l.cb.NewLabel(), l.cb.NewLabel()

	l.cb.AddJump(cond)
	l.cb.AddLabel(body)
	l.state = l.assume(s.Cond, l.loopEntry(pre, s.Body), true)
	l.stmts(s.Body)

	l.cb.AddLabel(cond)
	l.state = pathstate.Join(pre, l.state)
	l.cond(s.Cond, body, end)

	l.cb.AddLabel(end)
	l.state = l.stateFalse
}

// repeat runs the body first and leaves once the condition holds.
func (l *Lowerer) repeat(s *Repeat) {
	pre := l.state
	top, exit := l.cb.NewLabel(), l.cb.NewLabel()

	l.cb.AddLabel(top)
	l.state = l.loopEntry(pre, s.Body)
	l.stmts(s.Body)
	l.cond(s.Until, exit, top)

	l.cb.AddLabel(exit)
	l.state = l.stateTrue
}

// loopEntry is the state at the top of a loop body. The body may be
// reached again after it wrote some variables, so those are only maybe
// uninitialized and lose any narrowing.
func (l *Lowerer) loopEntry(pre pathstate.PathState, body []Stmt) pathstate.PathState {
	written := l.assigned(body, nil)
	for _, v := range written {
		pre = pre.RemoveSmartCast(v)
	}
	again := pre
	for _, v := range written {
		again = again.RemoveUninitialized(v)
	}
	return pathstate.Join(pre, again)
}

// assigned collects the locals written by plain assignments in list.
func (l *Lowerer) assigned(list []Stmt, out []*ir.Symbol) []*ir.Symbol {
	for _, s := range list {
		switch s := s.(type) {
		case *Assign:
			if id, ok := s.Target.(*Ident); ok {
				if sym, ok := l.find(id.Name); ok && sym.Kind == ir.SymLocal {
					out = append(out, sym)
				}
			}
		case *If:
			for _, c := range s.Clauses {
				out = l.assigned(c.Body, out)
			}
		case *While:
			out = l.assigned(s.Body, out)
		case *Repeat:
			out = l.assigned(s.Body, out)
		}
	}
	return out
}

func (l *Lowerer) ret(s *Return) {
	if l.fn == nil {
		l.errorf(s.Span, diagnostic.DiagnosticSemantic, "Cannot return from top-level code")
		return
	}
	result := l.fn.result
	if s.Value == nil {
		if result != types.Unit {
			l.errorf(s.Span, diagnostic.DiagnosticType, "Function should return '%s'", result)
		}
	} else {
		v := l.expr(s.Value)
		if vt := l.typeOf(v); !result.AssignableFrom(vt) {
			l.errorf(s.Span, diagnostic.DiagnosticType, "Function should return '%s', not '%s'", result, vt)
		}
		l.cb.AddMov(l.cb.Reg(ir.ResultReg), v)
	}
	l.cb.AddJump(l.fn.end)
	l.state = l.state.AddUnreachable()
}

// ====== Assignment ======

func (l *Lowerer) assign(target Expr, v *ir.Symbol) {
	switch t := target.(type) {
	case *Ident:
		l.assignIdent(t, v)
	case *Member:
		base := l.expr(t.X)
		sym, f, ok := l.field(t, base, t.Name)
		if !ok || !l.checkAssign(t.Span, f.Type, v, "field") {
			return
		}
		if !f.Mutable {
			l.errorf(t.Span, diagnostic.DiagnosticSemantic, "Cannot assign to immutable field %s", t.Name)
		}
		l.store(f.Type, v, base, sym)
	case *NullMember:
		base := l.expr(t.X)
		sym, f, ok := l.nullableField(t, base)
		if !ok || !l.checkAssign(t.Span, f.Type, v, "field") {
			return
		}
		if !f.Mutable {
			l.errorf(t.Span, diagnostic.DiagnosticSemantic, "Cannot assign to immutable field %s", t.Name)
		}
		done := l.cb.NewLabel()
		l.cb.AddBranch(ir.EQ_I, done, base, l.sess.Zero())
		l.store(f.Type, v, base, sym)
		l.cb.AddLabel(done)
	case *Index:
		elem, addr, ok := l.element(t)
		if !ok || !l.checkAssign(t.Span, elem, v, "element") {
			return
		}
		l.store(elem, v, addr, l.sess.Zero())
	default:
		l.errorf(target.GetSpan(), diagnostic.DiagnosticSemantic, "Not an lvalue")
	}
}

// assignIdent writes a variable. The first write to an immutable local
// is its initialization; any write that may not be the first is an
// error.
func (l *Lowerer) assignIdent(id *Ident, v *ir.Symbol) {
	sym := l.lookup(id)
	switch sym.Kind {
	case ir.SymError:
	case ir.SymLocal:
		l.checkAssign(id.Span, sym.Type, v, "variable")
		if !sym.Mutable && !l.state.IsUninitialized(sym) {
			if l.state.IsMaybeUninitialized(sym) {
				l.errorf(id.Span, diagnostic.DiagnosticFlow, "Immutable variable '%s' may already be initialized", id.Name)
			} else {
				l.errorf(id.Span, diagnostic.DiagnosticSemantic, "Cannot assign to immutable variable")
			}
		}
		l.cb.AddMov(sym, v)
		l.state = l.state.RemoveUninitialized(sym).RemoveSmartCast(sym)
	case ir.SymGlobal:
		l.checkAssign(id.Span, sym.Type, v, "variable")
		if !sym.Mutable {
			l.errorf(id.Span, diagnostic.DiagnosticSemantic, "Cannot assign to immutable variable")
		}
		l.store(sym.Type, v, l.cb.Reg(ir.RegGlobals), sym)
	default:
		l.errorf(id.Span, diagnostic.DiagnosticSemantic, "Not an lvalue")
	}
}

// store writes data unless an earlier error left the location without a
// usable type.
func (l *Lowerer) store(typ *types.Type, data, base, offset *ir.Symbol) {
	if typ.Kind == types.TypeKindError || typ.Size() == 0 {
		return
	}
	l.cb.AddStore(typ, data, base, offset)
}
