package ir

import (
	"sync"

	"github.com/orizon-lang/rmcc/internal/types"
)

type intKey struct {
	value int
	typ   *types.Type
}

// Session holds the state shared by every CodeBlock of one compilation:
// the block registry, literal interning and the machine registers.
// Interning is safe for concurrent use so per-block passes may run in
// parallel.
type Session struct {
	Types *types.Registry

	regs [NumRegs]*Symbol
	zero *Symbol

	mu      sync.Mutex
	ints    map[intKey]*Symbol
	strs    map[string]*Symbol
	funcs   map[string]*Symbol
	blocks  []*CodeBlock
	byName  map[string]*CodeBlock
	globals int
}

// NewSession creates a fresh compilation session.
func NewSession() *Session {
	s := &Session{
		Types:  types.NewRegistry(),
		ints:   make(map[intKey]*Symbol),
		strs:   make(map[string]*Symbol),
		funcs:  make(map[string]*Symbol),
		byName: make(map[string]*CodeBlock),
	}
	for i := range s.regs {
		s.regs[i] = newReg(i)
	}
	s.zero = s.IntLit(0)
	return s
}

// Reg returns machine register n.
func (s *Session) Reg(n int) *Symbol {
	return s.regs[n]
}

// Zero returns the integer literal 0.
func (s *Session) Zero() *Symbol {
	return s.zero
}

// IntLit returns the interned Int literal v.
func (s *Session) IntLit(v int) *Symbol {
	return s.TypedIntLit(v, types.Int)
}

// TypedIntLit returns the literal v interned under typ, so that for
// example true and 1 stay distinct.
func (s *Session) TypedIntLit(v int, typ *types.Type) *Symbol {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := intKey{v, typ}
	if sym, ok := s.ints[k]; ok {
		return sym
	}
	sym := &Symbol{Kind: SymIntLit, Name: "", Type: typ, Value: v}
	s.ints[k] = sym
	return sym
}

// StringLit returns the interned string literal.
func (s *Session) StringLit(text string) *Symbol {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sym, ok := s.strs[text]; ok {
		return sym
	}
	sym := &Symbol{Kind: SymStringLit, Name: text, Type: types.String}
	s.strs[text] = sym
	return sym
}

// Function returns the reference to the named function, creating it
// with typ on first use.
func (s *Session) Function(name string, typ *types.Type) *Symbol {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sym, ok := s.funcs[name]; ok {
		return sym
	}
	if typ == nil {
		typ = s.Types.Function(nil, types.Unit)
	}
	sym := &Symbol{Kind: SymFunction, Name: name, Type: typ}
	s.funcs[name] = sym
	return sym
}

// NewCodeBlock creates a block and records it in the registry.
func (s *Session) NewCodeBlock(name string) *CodeBlock {
	cb := newCodeBlock(s, name)

	s.mu.Lock()
	s.blocks = append(s.blocks, cb)
	s.byName[name] = cb
	s.mu.Unlock()

	return cb
}

// Blocks returns every block in creation order.
func (s *Session) Blocks() []*CodeBlock {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]*CodeBlock(nil), s.blocks...)
}

// Block looks a block up by name.
func (s *Session) Block(name string) (*CodeBlock, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cb, ok := s.byName[name]
	return cb, ok
}

// AllocGlobal reserves size bytes in the global data area and returns
// the 4-byte aligned offset.
func (s *Session) AllocGlobal(size int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	off := s.globals
	s.globals = (off + size + 3) &^ 3
	return off
}

// GlobalsSize returns the size of the global data area.
func (s *Session) GlobalsSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.globals
}
