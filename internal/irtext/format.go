package irtext

import (
	"fmt"
	"io"
	"strings"

	"github.com/orizon-lang/rmcc/internal/ir"
	"github.com/orizon-lang/rmcc/internal/types"
)

// Format writes every block of sess in creation order.
func Format(w io.Writer, sess *ir.Session) error {
	if _, err := fmt.Fprintf(w, "irtext %s\n", Version); err != nil {
		return err
	}
	for _, cb := range sess.Blocks() {
		if _, err := io.WriteString(w, FormatBlock(cb)); err != nil {
			return err
		}
	}
	return nil
}

// FormatBlock renders one block with the declarations its instructions
// need. Register 0 prints as the literal 0 and reads back as one.
func FormatBlock(cb *ir.CodeBlock) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\nblock %s\n", cb.Name)

	seen := make(map[*ir.Symbol]bool)
	classes := make(map[*types.Type]bool)
	var decls []string

	declare := func(s *ir.Symbol) {
		if s == nil || seen[s] {
			return
		}
		seen[s] = true

		var line string
		switch s.Kind {
		case ir.SymLocal:
			line = fmt.Sprintf("local %s %s", s.Name, s.Type)
		case ir.SymGlobal:
			line = fmt.Sprintf("global %s %s %d", s.Name, s.Type, s.Offset)
		case ir.SymMember:
			line = fmt.Sprintf("member %s %s %d", s.Name, s.Type, s.Offset)
		case ir.SymFunction:
			decls = append(decls, "func "+s.Name)
			return
		default:
			return
		}
		if s.Mutable {
			line += " var"
		}
		if c := classOf(s.Type); c != nil && !classes[c] {
			classes[c] = true
			decls = append(decls, "class "+c.Name)
		}
		decls = append(decls, line)
	}

	for _, in := range cb.Prog {
		declare(ir.Dest(in))
		for _, s := range ir.Operands(in) {
			declare(s)
		}
		if call, ok := in.(ir.Call); ok {
			declare(call.Func)
		}
	}

	for _, d := range decls {
		b.WriteString(d)
		b.WriteByte('\n')
	}
	b.WriteString(cb.Listing())
	b.WriteString("endblock\n")
	return b.String()
}

func classOf(t *types.Type) *types.Type {
	for t != nil {
		switch t.Kind {
		case types.TypeKindClass:
			return t
		case types.TypeKindArray, types.TypeKindNullable:
			t = t.Elem
		default:
			return nil
		}
	}
	return nil
}
