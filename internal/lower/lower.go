// Package lower turns a checked statement tree into CodeBlocks. It is the
// upstream half of the back end contract: parameters arrive in %1.., every
// function ends in a single END, globals live at %29 and class members at
// offsets from the object.
//
// A PathState is threaded through every branch so reads of uninitialized
// variables, repeated writes to immutables and member access through a
// reference that may be null are reported while the IR is built. User
// mistakes go to the diagnostic bag and lowering carries on with an error
// symbol; contract violations abort through errors.Fatal.
package lower

import (
	"github.com/orizon-lang/rmcc/internal/diagnostic"
	"github.com/orizon-lang/rmcc/internal/errors"
	"github.com/orizon-lang/rmcc/internal/ir"
	"github.com/orizon-lang/rmcc/internal/pathstate"
	"github.com/orizon-lang/rmcc/internal/position"
	"github.com/orizon-lang/rmcc/internal/types"
)

// TopLevel names the block that initializes globals.
const TopLevel = "TopLevel"

type memberKey struct {
	class *types.Type
	name  string
}

type function struct {
	sym    *ir.Symbol
	params []*types.Type
	result *types.Type
	cb     *ir.CodeBlock
	end    ir.Label
}

// Lowerer holds the state of one lowering run.
type Lowerer struct {
	sess  *ir.Session
	diags *diagnostic.Bag

	cb         *ir.CodeBlock
	state      pathstate.PathState
	stateTrue  pathstate.PathState
	stateFalse pathstate.PathState

	scopes  []map[string]*ir.Symbol
	members map[memberKey]*ir.Symbol
	fn      *function
}

// Lower adds the blocks for f to sess: TopLevel first, then one
// constructor block per class and one block per function, in
// declaration order. User errors are recorded in diags.
func Lower(sess *ir.Session, diags *diagnostic.Bag, f *File) (err error) {
	defer errors.Recover(&err)

	l := &Lowerer{
		sess:    sess,
		diags:   diags,
		members: make(map[memberKey]*ir.Symbol),
	}
	l.push()
	l.file(f)
	return nil
}

func (l *Lowerer) file(f *File) {
	top := l.sess.NewCodeBlock(TopLevel)

	// Classes are identified before anything else so that signatures,
	// fields and globals may name any of them.
	classes := make([]*types.Type, len(f.Classes))
	ctors := make([]*ir.CodeBlock, len(f.Classes))
	for i, c := range f.Classes {
		classes[i] = l.sess.Types.Class(c.Name)
		l.declare(c.Span, ir.NewTypeName(c.Name, classes[i]))
		ctors[i] = l.sess.NewCodeBlock(c.Name)
	}

	funcs := make([]*function, len(f.Funcs))
	for i, fn := range f.Funcs {
		funcs[i] = l.identifyFunction(fn)
	}

	for i, c := range f.Classes {
		l.class(c, classes[i], ctors[i])
	}

	l.cb = top
	l.state = pathstate.New()
	top.AddStart()
	for _, d := range f.Globals {
		l.global(d)
	}
	top.AddEnd()
	top.Rebuild()

	for i, fn := range f.Funcs {
		l.function(fn, funcs[i])
	}
}

// ====== Declarations ======

func (l *Lowerer) identifyFunction(fn *Func) *function {
	params := make([]*types.Type, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = l.resolveType(p.Span, p.Type)
	}
	result := types.Unit
	if fn.Result != "" {
		result = l.resolveType(fn.Span, fn.Result)
	}
	if len(params) > ir.LastCallerSaved {
		l.errorf(fn.Span, diagnostic.DiagnosticSemantic,
			"Function %s has %d parameters, at most %d are supported", fn.Name, len(params), ir.LastCallerSaved)
	}

	sym := l.sess.Function(fn.Name, l.sess.Types.Function(params, result))
	l.declare(fn.Span, sym)
	return &function{sym: sym, params: params, result: result, cb: l.sess.NewCodeBlock(fn.Name)}
}

func (l *Lowerer) function(fn *Func, info *function) {
	l.cb = info.cb
	l.fn = info
	l.state = pathstate.New()
	l.push()

	l.cb.AddStart()
	for i, p := range fn.Params {
		if i >= ir.LastCallerSaved {
			break
		}
		sym := ir.NewLocal(p.Name, info.params[i], false)
		l.declare(p.Span, sym)
		l.cb.AddMov(sym, l.cb.Reg(ir.FirstGeneral+i))
	}
	info.end = l.cb.NewLabel()

	l.stmts(fn.Body)

	l.cb.AddLabel(info.end)
	if info.result == types.Unit {
		l.cb.AddEnd()
	} else {
		l.cb.AddEnd(l.cb.Reg(ir.ResultReg))
	}
	l.cb.Rebuild()

	l.pop()
	l.fn = nil
}

// class lowers the constructor block of c: the object arrives in %1 and
// each field with an initializer is stored at its offset.
func (l *Lowerer) class(c *Class, t *types.Type, cb *ir.CodeBlock) {
	l.cb = cb
	l.state = pathstate.New()
	l.push()

	cb.AddStart()
	this := ir.NewLocal("this", t, false)
	l.scopes[len(l.scopes)-1]["this"] = this
	cb.AddMov(this, cb.Reg(ir.FirstGeneral))

	for _, d := range c.Fields {
		if _, dup := t.Member(d.Name); dup {
			l.errorf(d.Span, diagnostic.DiagnosticSemantic, "Duplicate member %s in class %s", d.Name, c.Name)
			continue
		}
		init, typ := l.declType(d)
		f := l.sess.Types.AddField(t, d.Name, typ, d.Mutable)
		if init != nil && typ.Size() > 0 {
			cb.AddStore(typ, init, l.thisSym(), l.member(t, f))
		}
	}

	cb.AddEnd()
	cb.Rebuild()
	l.pop()
}

// thisSym returns the object a constructor initializes.
func (l *Lowerer) thisSym() *ir.Symbol {
	sym, ok := l.scopes[len(l.scopes)-1]["this"]
	if !ok {
		errors.Fatal(errors.MissingSymbol("this"))
	}
	return sym
}

func (l *Lowerer) global(d *Decl) {
	init, typ := l.declType(d)
	off := l.sess.AllocGlobal(typ.Size())
	sym := ir.NewGlobal(d.Name, typ, off, d.Mutable)
	l.declare(d.Span, sym)
	if typ.Size() == 0 {
		return
	}
	if init == nil {
		init = l.sess.Zero()
	}
	l.cb.AddStore(typ, init, l.cb.Reg(ir.RegGlobals), sym)
}

func (l *Lowerer) local(d *Decl) {
	init, typ := l.declType(d)
	sym := ir.NewLocal(d.Name, typ, d.Mutable)
	l.declare(d.Span, sym)
	if init != nil {
		l.cb.AddMov(sym, init)
	} else {
		l.state = l.state.AddUninitialized(sym)
	}
}

// declType lowers the initializer of d, if any, and works out the
// declared type.
func (l *Lowerer) declType(d *Decl) (*ir.Symbol, *types.Type) {
	var init *ir.Symbol
	if d.Init != nil {
		init = l.expr(d.Init)
	}

	var typ *types.Type
	switch {
	case d.Type != "":
		typ = l.resolveType(d.Span, d.Type)
	case init != nil:
		typ = l.typeOf(init)
	default:
		l.errorf(d.Span, diagnostic.DiagnosticType, "Cannot determine type of %s", d.Name)
		return nil, types.Error
	}

	if typ.Size() > 4 {
		l.errorf(d.Span, diagnostic.DiagnosticType, "Type %s is not supported", typ)
		return nil, types.Error
	}
	if init != nil {
		l.checkAssign(d.Span, typ, init, "variable")
	}
	return init, typ
}

// member returns the symbol for field f of class t.
func (l *Lowerer) member(t *types.Type, f types.Field) *ir.Symbol {
	k := memberKey{t, f.Name}
	if sym, ok := l.members[k]; ok {
		return sym
	}
	sym := ir.NewMember(f.Name, f.Type, f.Offset, f.Mutable)
	l.members[k] = sym
	return sym
}

// ====== Scopes ======

func (l *Lowerer) push() {
	l.scopes = append(l.scopes, make(map[string]*ir.Symbol))
}

func (l *Lowerer) pop() {
	l.scopes = l.scopes[:len(l.scopes)-1]
}

func (l *Lowerer) declare(span position.Span, sym *ir.Symbol) {
	scope := l.scopes[len(l.scopes)-1]
	if _, dup := scope[sym.Name]; dup {
		l.errorf(span, diagnostic.DiagnosticSemantic, "Duplicate symbol %s", sym.Name)
		return
	}
	scope[sym.Name] = sym
}

// find looks name up without reporting anything.
func (l *Lowerer) find(name string) (*ir.Symbol, bool) {
	for i := len(l.scopes) - 1; i >= 0; i-- {
		if sym, ok := l.scopes[i][name]; ok {
			return sym, true
		}
	}
	return nil, false
}

func (l *Lowerer) lookup(id *Ident) *ir.Symbol {
	if sym, ok := l.find(id.Name); ok {
		return sym
	}
	return l.errorf(id.Span, diagnostic.DiagnosticSemantic, "Undefined identifier '%s'", id.Name)
}

// ====== Helpers ======

func (l *Lowerer) resolveType(span position.Span, name string) *types.Type {
	t, err := l.sess.Types.Lookup(name)
	if err != nil {
		l.errorf(span, diagnostic.DiagnosticType, "%v", err)
		return types.Error
	}
	return t
}

// typeOf returns the type of s on the current path, which is narrower
// than its declared type after a null test.
func (l *Lowerer) typeOf(s *ir.Symbol) *types.Type {
	return l.state.GetType(s)
}

func (l *Lowerer) checkAssign(span position.Span, dest *types.Type, v *ir.Symbol, what string) bool {
	vt := l.typeOf(v)
	if dest.AssignableFrom(vt) {
		return true
	}
	l.errorf(span, diagnostic.DiagnosticType, "Cannot assign value of type %s to %s of type %s", vt, what, dest)
	return false
}

// errorf records a user error and returns the symbol that stands in for
// the faulty expression.
func (l *Lowerer) errorf(span position.Span, cat diagnostic.DiagnosticCategory, format string, args ...interface{}) *ir.Symbol {
	l.diags.Errorf(span, cat, format, args...)
	return ir.NewError()
}

func isError(s *ir.Symbol) bool {
	return s.Kind == ir.SymError || s.Type.Kind == types.TypeKindError
}
