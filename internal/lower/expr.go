package lower

import (
	"github.com/orizon-lang/rmcc/internal/diagnostic"
	"github.com/orizon-lang/rmcc/internal/ir"
	"github.com/orizon-lang/rmcc/internal/pathstate"
	"github.com/orizon-lang/rmcc/internal/position"
	"github.com/orizon-lang/rmcc/internal/types"
)

var arithOps = map[string]ir.AluOp{
	"+":  ir.ADD_I,
	"-":  ir.SUB_I,
	"*":  ir.MUL_I,
	"/":  ir.DIV_I,
	"%":  ir.MOD_I,
	"&":  ir.AND_I,
	"|":  ir.OR_I,
	"^":  ir.XOR_I,
	"<<": ir.LSL_I,
	">>": ir.ASR_I,
}

var compareOps = map[string]ir.AluOp{
	"==": ir.EQ_I,
	"!=": ir.NE_I,
	"<":  ir.LT_I,
	"<=": ir.LTE_I,
	">":  ir.GT_I,
	">=": ir.GTE_I,
}

// ====== Expressions ======

// expr lowers e for its value.
func (l *Lowerer) expr(e Expr) *ir.Symbol {
	switch e := e.(type) {
	case *IntLit:
		return l.sess.IntLit(e.Value)
	case *BoolLit:
		return l.boolLit(e.Value)
	case *NullLit:
		return l.sess.TypedIntLit(0, types.Null)
	case *StringLit:
		return l.cb.AddLea(l.sess.StringLit(e.Value))
	case *Ident:
		return l.ident(e)
	case *Binary:
		return l.binary(e)
	case *And, *Or:
		return l.boolValue(e)
	case *Member:
		base := l.expr(e.X)
		sym, f, ok := l.field(e, base, e.Name)
		if !ok {
			return ir.NewError()
		}
		return l.cb.AddLoad(f.Type, base, sym)
	case *NullMember:
		return l.nullMember(e)
	case *Index:
		elem, addr, ok := l.element(e)
		if !ok {
			return ir.NewError()
		}
		return l.cb.AddLoad(elem, addr, l.sess.Zero())
	case *Call:
		return l.call(e)
	}
	return l.errorf(e.GetSpan(), diagnostic.DiagnosticSemantic, "Cannot lower %s", e)
}

func (l *Lowerer) boolLit(v bool) *ir.Symbol {
	if v {
		return l.sess.TypedIntLit(1, types.Bool)
	}
	return l.sess.TypedIntLit(0, types.Bool)
}

// ident reads a name. Reading a local that is not initialized on every
// path leading here is an error.
func (l *Lowerer) ident(id *Ident) *ir.Symbol {
	sym := l.lookup(id)
	switch sym.Kind {
	case ir.SymTypeName:
		return l.errorf(id.Span, diagnostic.DiagnosticSemantic, "Cannot use type name as expression")
	case ir.SymLocal:
		if l.state.IsUninitialized(sym) {
			l.errorf(id.Span, diagnostic.DiagnosticFlow, "Variable '%s' is uninitialized", id.Name)
		} else if l.state.IsMaybeUninitialized(sym) {
			l.errorf(id.Span, diagnostic.DiagnosticFlow, "Variable '%s' may be uninitialized", id.Name)
		}
	case ir.SymGlobal:
		if sym.Type.Size() == 0 {
			return ir.NewError()
		}
		return l.cb.AddLoad(sym.Type, l.cb.Reg(ir.RegGlobals), sym)
	case ir.SymFunction:
		return l.cb.AddLea(sym)
	}
	return sym
}

func (l *Lowerer) binary(b *Binary) *ir.Symbol {
	x := l.expr(b.Left)
	y := l.expr(b.Right)
	if isError(x) {
		return x
	}
	if isError(y) {
		return y
	}
	op, ok := l.binop(b, x, y)
	if !ok {
		return ir.NewError()
	}
	return l.cb.AddAluOp(op, x, y)
}

// binop picks the operator for b. Arithmetic and ordering need Int on
// both sides; equality also accepts two Bools or two references.
func (l *Lowerer) binop(b *Binary, x, y *ir.Symbol) (ir.AluOp, bool) {
	xt, yt := l.typeOf(x), l.typeOf(y)
	if op, ok := arithOps[b.Operator]; ok && xt == types.Int && yt == types.Int {
		return op, true
	}
	if op, ok := compareOps[b.Operator]; ok {
		if xt == types.Int && yt == types.Int {
			return op, true
		}
		if (op == ir.EQ_I || op == ir.NE_I) && equatable(xt, yt) {
			return op, true
		}
	}
	l.errorf(b.Span, diagnostic.DiagnosticType, "No operation defined for %s %s %s", xt, b.Operator, yt)
	return ir.NOP, false
}

func equatable(x, y *types.Type) bool {
	if x == y {
		return x.Kind != types.TypeKindUnit
	}
	ref := func(t *types.Type) bool {
		return t.Kind == types.TypeKindClass || t.Kind == types.TypeKindNullable || t.Kind == types.TypeKindNull
	}
	return ref(x) && ref(y) && (x.AssignableFrom(y) || y.AssignableFrom(x))
}

// ====== Conditions ======

// cond lowers e as a branch to ifTrue or ifFalse and leaves the state on
// each edge in stateTrue and stateFalse.
func (l *Lowerer) cond(e Expr, ifTrue, ifFalse ir.Label) {
	switch e := e.(type) {
	case *BoolLit:
		taken, dead := ifTrue, l.state.AddUnreachable()
		l.stateTrue, l.stateFalse = l.state, dead
		if !e.Value {
			taken = ifFalse
			l.stateTrue, l.stateFalse = dead, l.state
		}
		l.cb.AddJump(taken)
		return

	case *And:
		mid := l.cb.NewLabel()
		l.cond(e.Left, mid, ifFalse)
		midFalse := l.stateFalse
		l.cb.AddLabel(mid)
		l.state = l.stateTrue
		l.cond(e.Right, ifTrue, ifFalse)
		l.stateFalse = pathstate.Join(l.stateFalse, midFalse)
		return

	case *Or:
		mid := l.cb.NewLabel()
		l.cond(e.Left, ifTrue, mid)
		midTrue := l.stateTrue
		l.cb.AddLabel(mid)
		l.state = l.stateFalse
		l.cond(e.Right, ifTrue, ifFalse)
		l.stateTrue = pathstate.Join(l.stateTrue, midTrue)
		return

	case *Binary:
		if _, ok := compareOps[e.Operator]; ok {
			l.compare(e, ifTrue, ifFalse)
			return
		}
	}

	v := l.expr(e)
	l.stateTrue, l.stateFalse = l.state, l.state
	if t := l.typeOf(v); t.Kind != types.TypeKindError && t != types.Bool {
		l.errorf(e.GetSpan(), diagnostic.DiagnosticType, "Condition must be of type Bool not '%s'", t)
	}
	l.cb.AddBranch(ir.NE_I, ifTrue, v, l.sess.Zero())
	l.cb.AddJump(ifFalse)
}

func (l *Lowerer) compare(b *Binary, ifTrue, ifFalse ir.Label) {
	x := l.expr(b.Left)
	y := l.expr(b.Right)
	l.stateTrue, l.stateFalse = l.state, l.state

	op := ir.NOP
	if !isError(x) && !isError(y) {
		op, _ = l.binop(b, x, y)
	}
	if op == ir.NOP {
		l.cb.AddJump(ifFalse)
		return
	}

	if op == ir.EQ_I || op == ir.NE_I {
		l.stateTrue, l.stateFalse = l.narrow(l.state, x, y, op == ir.EQ_I)
	}
	l.cb.AddBranch(op, ifTrue, x, y)
	l.cb.AddJump(ifFalse)
}

// narrow handles a test of a nullable value against null. It returns
// the states where the values are equal and where they differ.
func (l *Lowerer) narrow(st pathstate.PathState, x, y *ir.Symbol, eq bool) (pathstate.PathState, pathstate.PathState) {
	if st.GetType(x).Kind == types.TypeKindNull {
		x, y = y, x
	}
	xt := st.GetType(x)
	if !xt.IsNullable() || st.GetType(y).Kind != types.TypeKindNull {
		return st, st
	}
	isNull := st.AddSmartCast(x, types.Null)
	notNull := st.AddSmartCast(x, xt.NonNull())
	if eq {
		return isNull, notNull
	}
	return notNull, isNull
}

// assume returns st refined by e evaluating to want, without emitting
// any code. Only null tests of locals and their conjunctions are
// understood.
func (l *Lowerer) assume(e Expr, st pathstate.PathState, want bool) pathstate.PathState {
	switch e := e.(type) {
	case *And:
		if want {
			return l.assume(e.Right, l.assume(e.Left, st, true), true)
		}
	case *Or:
		if !want {
			return l.assume(e.Right, l.assume(e.Left, st, false), false)
		}
	case *Binary:
		if e.Operator != "==" && e.Operator != "!=" {
			return st
		}
		x, okx := l.nullTestOperand(e.Left)
		y, oky := l.nullTestOperand(e.Right)
		if !okx || !oky {
			return st
		}
		onEq, onNe := l.narrow(st, x, y, true)
		if (e.Operator == "==") == want {
			return onEq
		}
		return onNe
	}
	return st
}

func (l *Lowerer) nullTestOperand(e Expr) (*ir.Symbol, bool) {
	switch e := e.(type) {
	case *NullLit:
		return l.sess.TypedIntLit(0, types.Null), true
	case *Ident:
		if sym, ok := l.find(e.Name); ok && sym.Kind == ir.SymLocal {
			return sym, true
		}
	}
	return nil, false
}

// boolValue materializes a short-circuit expression as 0 or 1.
func (l *Lowerer) boolValue(e Expr) *ir.Symbol {
	yes, no, done := l.cb.NewLabel(), l.cb.NewLabel(), l.cb.NewLabel()
	l.cond(e, yes, no)
	ret := l.cb.NewTemp(types.Bool, ir.Expr{})

	l.cb.AddLabel(yes)
	l.cb.AddMov(ret, l.boolLit(true))
	l.cb.AddJump(done)
	l.cb.AddLabel(no)
	l.cb.AddMov(ret, l.boolLit(false))
	l.cb.AddLabel(done)

	l.state = pathstate.Join(l.stateTrue, l.stateFalse)
	return ret
}

// ====== Memory ======

// field resolves x.name where base holds the value of x.
func (l *Lowerer) field(n Expr, base *ir.Symbol, name string) (*ir.Symbol, types.Field, bool) {
	t := l.typeOf(base)
	switch {
	case isError(base):
		return nil, types.Field{}, false
	case t.IsNullable():
		l.errorf(n.GetSpan(), diagnostic.DiagnosticFlow, "Cannot access member as reference could be null")
		return nil, types.Field{}, false
	case t.Kind != types.TypeKindClass:
		l.errorf(n.GetSpan(), diagnostic.DiagnosticType, "Got type %s when expecting a class", t)
		return nil, types.Field{}, false
	}
	return l.lookupField(n.GetSpan(), t, name)
}

func (l *Lowerer) nullableField(n *NullMember, base *ir.Symbol) (*ir.Symbol, types.Field, bool) {
	t := l.typeOf(base)
	switch {
	case isError(base):
		return nil, types.Field{}, false
	case !t.IsNullable():
		l.errorf(n.Span, diagnostic.DiagnosticType, "Got type %s when expecting a nullable", t)
		return nil, types.Field{}, false
	}
	return l.lookupField(n.Span, t.NonNull(), n.Name)
}

func (l *Lowerer) lookupField(span position.Span, class *types.Type, name string) (*ir.Symbol, types.Field, bool) {
	f, ok := class.Member(name)
	if !ok {
		l.errorf(span, diagnostic.DiagnosticSemantic, "Member %s not found in class %s", name, class)
		return nil, types.Field{}, false
	}
	if f.Type.Size() == 0 {
		return nil, types.Field{}, false
	}
	return l.member(class, f), f, true
}

// nullMember reads x?.name, which is null (zero) when x is.
func (l *Lowerer) nullMember(n *NullMember) *ir.Symbol {
	base := l.expr(n.X)
	sym, f, ok := l.nullableField(n, base)
	if !ok {
		return ir.NewError()
	}
	rt, err := l.sess.Types.Nullable(f.Type)
	if err != nil {
		rt = f.Type
	}

	done := l.cb.NewLabel()
	ret := l.cb.NewTemp(rt, ir.Expr{})
	l.cb.AddMov(ret, l.sess.Zero())
	l.cb.AddBranch(ir.EQ_I, done, base, l.sess.Zero())
	l.cb.AddMov(ret, l.cb.AddLoad(f.Type, base, sym))
	l.cb.AddLabel(done)
	return ret
}

// element computes the address of x[i]. Strings index bytes.
func (l *Lowerer) element(n *Index) (*types.Type, *ir.Symbol, bool) {
	arr := l.expr(n.X)
	idx := l.expr(n.Index)
	if isError(arr) || isError(idx) {
		return nil, nil, false
	}
	if it := l.typeOf(idx); it != types.Int {
		l.errorf(n.Index.GetSpan(), diagnostic.DiagnosticType, "Array index must be an Int not %s", it)
		return nil, nil, false
	}

	at := l.typeOf(arr)
	switch {
	case at == types.String:
		return types.Char, l.cb.AddAluOp(ir.ADD_I, arr, idx), true
	case at.Kind != types.TypeKindArray:
		l.errorf(n.X.GetSpan(), diagnostic.DiagnosticType, "Index lhs must be an array not %s", at)
		return nil, nil, false
	case at.Elem.Size() == 0:
		return nil, nil, false
	}

	elem := at.Elem
	off := l.cb.AddAluOp(ir.MUL_I, idx, l.sess.IntLit(elem.Size()))
	return elem, l.cb.AddAluOp(ir.ADD_I, arr, off), true
}

// ====== Calls ======

// call evaluates every argument before moving them into %1.. so that a
// call nested in a later argument cannot clobber an earlier one.
func (l *Lowerer) call(c *Call) *ir.Symbol {
	var callee *ir.Symbol
	if id, ok := c.Func.(*Ident); ok {
		if sym, found := l.find(id.Name); found && sym.Kind == ir.SymFunction {
			callee = sym
		}
	}
	if callee == nil {
		callee = l.expr(c.Func)
	}
	if isError(callee) {
		return callee
	}
	ft := l.typeOf(callee)
	if ft.Kind != types.TypeKindFunction {
		return l.errorf(c.Span, diagnostic.DiagnosticType, "Cannot call non-function")
	}

	args := make([]*ir.Symbol, len(c.Args))
	for i, a := range c.Args {
		args[i] = l.expr(a)
	}
	if len(args) != len(ft.Params) {
		return l.errorf(c.Span, diagnostic.DiagnosticSemantic, "Function expects %d arguments, got %d", len(ft.Params), len(args))
	}
	for i, a := range args {
		if at := l.typeOf(a); !ft.Params[i].AssignableFrom(at) {
			l.errorf(c.Args[i].GetSpan(), diagnostic.DiagnosticType,
				"Argument %d: Got type %s when expecting %s", i+1, at, ft.Params[i])
		}
	}
	if len(args) > ir.LastCallerSaved {
		return l.errorf(c.Span, diagnostic.DiagnosticSemantic, "Function calls take at most %d arguments, got %d", ir.LastCallerSaved, len(args))
	}

	for i, a := range args {
		l.cb.AddMov(l.cb.Reg(ir.FirstGeneral+i), a)
	}
	if callee.Kind == ir.SymFunction {
		l.cb.AddCall(callee, len(args))
	} else {
		l.cb.AddCallR(callee, len(args))
	}

	if ft.Result == types.Unit {
		return l.cb.Reg(ir.RegZero)
	}
	ret := l.cb.NewTemp(ft.Result, ir.Expr{})
	l.cb.AddMov(ret, l.cb.Reg(ir.ResultReg))
	return ret
}
