// Package irtext reads and writes CodeBlocks in the same notation the
// dumps use, so IR can be fed to the back end without a front end.
//
//	irtext 1.0.0
//	block count
//	local i Int var
//	global total Int 0 var
//	func helper
//	MOV i, %1
//	@0:
//	BLT_I i, 10, @0
//	END %8
//	endblock
package irtext

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/orizon-lang/rmcc/internal/ir"
	"github.com/orizon-lang/rmcc/internal/types"
)

// Version is the format version written by Format.
const Version = "1.0.0"

// Compatible is the range of header versions Parse accepts.
const Compatible = "^1"

// ParseError reports a problem at a line of the input.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

type parser struct {
	sess *ir.Session
	line int

	cb    *ir.CodeBlock
	names map[string]*ir.Symbol
}

// Parse reads every block in r into a new session.
func Parse(r io.Reader) (*ir.Session, error) {
	sess := ir.NewSession()
	if err := ParseInto(sess, r); err != nil {
		return nil, err
	}
	return sess, nil
}

// ParseInto reads every block in r into sess.
func ParseInto(sess *ir.Session, r io.Reader) error {
	p := &parser{sess: sess}
	sc := bufio.NewScanner(r)
	header := false

	for sc.Scan() {
		p.line++
		text := strings.TrimSpace(sc.Text())
		if i := strings.Index(text, "#"); i >= 0 && !strings.Contains(text, "\"") {
			text = strings.TrimSpace(text[:i])
		}
		if text == "" {
			continue
		}

		if !header {
			if err := p.header(text); err != nil {
				return err
			}
			header = true
			continue
		}

		if err := p.parseLine(text); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read IR: %w", err)
	}
	if !header {
		return &ParseError{Line: p.line, Msg: "missing irtext header"}
	}
	if p.cb != nil {
		return p.errorf("block %s is missing endblock", p.cb.Name)
	}
	return nil
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return &ParseError{Line: p.line, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) header(text string) error {
	f := strings.Fields(text)
	if len(f) != 2 || f[0] != "irtext" {
		return p.errorf("expected header \"irtext <version>\", got %q", text)
	}
	v, err := semver.NewVersion(f[1])
	if err != nil {
		return p.errorf("bad format version %q: %v", f[1], err)
	}
	c, err := semver.NewConstraint(Compatible)
	if err != nil {
		return fmt.Errorf("irtext constraint: %w", err)
	}
	if !c.Check(v) {
		return p.errorf("format version %s is not supported (want %s)", v, Compatible)
	}
	return nil
}

func (p *parser) parseLine(text string) error {
	word, rest, _ := strings.Cut(text, " ")
	rest = strings.TrimSpace(rest)

	if p.cb == nil {
		if word != "block" || rest == "" {
			return p.errorf("expected \"block <name>\", got %q", text)
		}
		if _, ok := p.sess.Block(rest); ok {
			return p.errorf("duplicate block %s", rest)
		}
		p.cb = p.sess.NewCodeBlock(rest)
		p.names = make(map[string]*ir.Symbol)
		return nil
	}

	switch word {
	case "endblock":
		p.cb.Rebuild()
		p.cb = nil
		return nil
	case "class":
		f := strings.Fields(rest)
		if len(f) != 1 {
			return p.errorf("class takes only a name")
		}
		p.sess.Types.Class(f[0])
		return nil
	case "local", "global", "member", "func":
		return p.declare(word, strings.Fields(rest))
	}

	in, err := p.instr(word, rest)
	if err != nil {
		return err
	}
	p.cb.Append(in)
	return nil
}

// declare handles
//
//	class  <name>
//	local  <name> <type> [var]
//	global <name> <type> <offset> [var]
//	member <name> <type> <offset> [var]
//	func   <name>
func (p *parser) declare(kind string, f []string) error {
	if len(f) == 0 {
		return p.errorf("%s needs a name", kind)
	}
	name := f[0]
	if _, dup := p.names[name]; dup {
		return p.errorf("%s is already declared", name)
	}
	if kind == "func" {
		if len(f) != 1 {
			return p.errorf("func takes only a name")
		}
		p.names[name] = p.sess.Function(name, nil)
		return nil
	}

	want := 2
	if kind != "local" {
		want = 3
	}
	mutable := false
	if len(f) == want+1 && f[want] == "var" {
		mutable = true
	} else if len(f) != want {
		return p.errorf("malformed %s declaration", kind)
	}

	typ, err := p.sess.Types.Lookup(f[1])
	if err != nil {
		return p.errorf("%s: %v", name, err)
	}

	var sym *ir.Symbol
	switch kind {
	case "local":
		sym = ir.NewLocal(name, typ, mutable)
	default:
		off, err := strconv.Atoi(f[2])
		if err != nil || off < 0 {
			return p.errorf("bad offset %q", f[2])
		}
		if kind == "global" {
			sym = ir.NewGlobal(name, typ, off, mutable)
		} else {
			sym = ir.NewMember(name, typ, off, mutable)
		}
	}
	p.names[name] = sym
	return nil
}

func (p *parser) instr(word, rest string) (ir.Instr, error) {
	if strings.HasPrefix(word, "@") && strings.HasSuffix(word, ":") && rest == "" {
		l, err := p.label(strings.TrimSuffix(word, ":"))
		if err != nil {
			return nil, err
		}
		return ir.Mark{Label: l}, nil
	}

	args := splitOperands(rest)
	need := func(n int) error {
		if len(args) != n {
			return p.errorf("%s takes %d operands, got %d", word, n, len(args))
		}
		return nil
	}

	switch word {
	case "START":
		return ir.Start{}, need(0)
	case "NOP":
		return ir.Nop{}, need(0)
	case "END":
		results, err := p.operands(args)
		return ir.End{Results: results}, err
	case "JMP":
		if err := need(1); err != nil {
			return nil, err
		}
		l, err := p.label(args[0])
		return ir.Jump{Target: l}, err
	case "MOV", "LEA":
		if err := need(2); err != nil {
			return nil, err
		}
		ops, err := p.operands(args)
		if err != nil {
			return nil, err
		}
		if word == "MOV" {
			return ir.Mov{Dest: ops[0], Src: ops[1]}, nil
		}
		if k := ops[1].Kind; k != ir.SymFunction && k != ir.SymStringLit {
			return nil, p.errorf("LEA needs a function or string, got %s", ops[1])
		}
		return ir.Lea{Dest: ops[0], Sym: ops[1]}, nil
	case "CALL", "CALLR":
		return p.call(word, rest)
	}

	if size, ok := memSize(word, "LD"); ok {
		return p.memory(word, args, func(d, b, o *ir.Symbol) ir.Instr {
			return ir.Load{Size: size, Dest: d, Base: b, Offset: o}
		})
	}
	if size, ok := memSize(word, "ST"); ok {
		return p.memory(word, args, func(d, b, o *ir.Symbol) ir.Instr {
			return ir.Store{Size: size, Data: d, Base: b, Offset: o}
		})
	}

	if op, ok := ir.ParseAluOp(word); ok && op < ir.B {
		if err := need(3); err != nil {
			return nil, err
		}
		ops, err := p.operands(args)
		if err != nil {
			return nil, err
		}
		return ir.Alu{Op: op, Dest: ops[0], A: ops[1], B: ops[2]}, nil
	}
	if strings.HasPrefix(word, "B") {
		if op, ok := ir.ParseAluOp(word[1:]); ok && op.IsCompare() {
			if err := need(3); err != nil {
				return nil, err
			}
			ops, err := p.operands(args[:2])
			if err != nil {
				return nil, err
			}
			l, err := p.label(args[2])
			if err != nil {
				return nil, err
			}
			return ir.Branch{Op: op, Target: l, A: ops[0], B: ops[1]}, nil
		}
	}
	return nil, p.errorf("unknown instruction %q", word)
}

func memSize(word, prefix string) (ir.AluOp, bool) {
	if len(word) != len(prefix)+1 || !strings.HasPrefix(word, prefix) {
		return 0, false
	}
	op, ok := ir.ParseAluOp(word[len(prefix):])
	if !ok || !op.IsMemSize() {
		return 0, false
	}
	return op, true
}

// memory parses "<reg>, <base>[<offset>]".
func (p *parser) memory(word string, args []string, build func(d, b, o *ir.Symbol) ir.Instr) (ir.Instr, error) {
	if len(args) != 2 {
		return nil, p.errorf("%s takes 2 operands, got %d", word, len(args))
	}
	addr := args[1]
	open := strings.IndexByte(addr, '[')
	if open <= 0 || !strings.HasSuffix(addr, "]") {
		return nil, p.errorf("bad address %q", addr)
	}
	ops, err := p.operands([]string{args[0], addr[:open], addr[open+1 : len(addr)-1]})
	if err != nil {
		return nil, err
	}
	return build(ops[0], ops[1], ops[2]), nil
}

func (p *parser) call(word, rest string) (ir.Instr, error) {
	f := strings.Fields(rest)
	if len(f) == 0 || len(f) > 2 {
		return nil, p.errorf("%s takes a target and an optional argument count", word)
	}
	n := 0
	if len(f) == 2 {
		var err error
		if n, err = strconv.Atoi(f[1]); err != nil || n < 0 || n > ir.LastCallerSaved {
			return nil, p.errorf("bad argument count %q", f[1])
		}
	}
	args := make([]*ir.Symbol, n)
	for i := range args {
		args[i] = p.sess.Reg(ir.FirstGeneral + i)
	}

	if word == "CALL" {
		fn, ok := p.names[f[0]]
		if !ok {
			fn = p.sess.Function(f[0], nil)
		} else if fn.Kind != ir.SymFunction {
			return nil, p.errorf("%s is not a function", f[0])
		}
		return ir.Call{Func: fn, Args: args}, nil
	}
	target, err := p.operand(f[0])
	if err != nil {
		return nil, err
	}
	return ir.CallR{Target: target, Args: args}, nil
}

func (p *parser) label(s string) (ir.Label, error) {
	if !strings.HasPrefix(s, "@") {
		return 0, p.errorf("expected a label, got %q", s)
	}
	n, err := strconv.Atoi(s[1:])
	if err != nil || n < 0 {
		return 0, p.errorf("bad label %q", s)
	}
	for p.cb.NumLabels() <= n {
		p.cb.NewLabel()
	}
	return ir.Label(n), nil
}

func (p *parser) operands(args []string) ([]*ir.Symbol, error) {
	out := make([]*ir.Symbol, len(args))
	for i, a := range args {
		s, err := p.operand(a)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func (p *parser) operand(s string) (*ir.Symbol, error) {
	switch {
	case s == "":
		return nil, p.errorf("missing operand")
	case s == "%sp":
		return p.sess.Reg(ir.RegSP), nil
	case s[0] == '%':
		n, err := strconv.Atoi(s[1:])
		if err != nil || n < 0 || n >= ir.NumRegs {
			return nil, p.errorf("bad register %q", s)
		}
		return p.sess.Reg(n), nil
	case s[0] == '&':
		n, err := strconv.Atoi(s[1:])
		if err != nil || n < 0 {
			return nil, p.errorf("bad temp %q", s)
		}
		return p.cb.TempByNumber(n, types.Int), nil
	case s[0] == '"':
		text, err := strconv.Unquote(s)
		if err != nil {
			return nil, p.errorf("bad string %s", s)
		}
		return p.sess.StringLit(text), nil
	case s[0] == '-' || (s[0] >= '0' && s[0] <= '9'):
		v, err := strconv.ParseInt(s, 0, 32)
		if err != nil {
			return nil, p.errorf("bad integer %q", s)
		}
		return p.sess.IntLit(int(v)), nil
	}
	if sym, ok := p.names[s]; ok {
		return sym, nil
	}
	return nil, p.errorf("undeclared name %q", s)
}

// splitOperands splits on commas outside string literals.
func splitOperands(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	start, quoted := 0, false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if quoted {
				i++
			}
		case '"':
			quoted = !quoted
		case ',':
			if !quoted {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(out, strings.TrimSpace(s[start:]))
}
