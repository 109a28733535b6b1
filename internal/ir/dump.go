package ir

import (
	"fmt"
	"strings"
)

const dumpRule = "*****************************************************\n"

// Dump renders the block with a banner header, one instruction per line.
func (cb *CodeBlock) Dump() string {
	var b strings.Builder
	cb.dumpHeader(&b)
	for _, in := range cb.Prog {
		b.WriteString(in.String())
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return b.String()
}

// DumpWithLineNumbers is Dump with each line prefixed by its position.
func (cb *CodeBlock) DumpWithLineNumbers() string {
	var b strings.Builder
	cb.dumpHeader(&b)
	for i, in := range cb.Prog {
		fmt.Fprintf(&b, "%3d %s\n", i, in)
	}
	b.WriteByte('\n')
	return b.String()
}

func (cb *CodeBlock) dumpHeader(b *strings.Builder) {
	b.WriteString(dumpRule)
	fmt.Fprintf(b, "              %s\n", cb.Name)
	b.WriteString(dumpRule)
}

// Listing returns the instructions alone, one per line.
func (cb *CodeBlock) Listing() string {
	var b strings.Builder
	for _, in := range cb.Prog {
		b.WriteString(in.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// DumpAll renders every block of the session in creation order.
func (s *Session) DumpAll() string {
	var b strings.Builder
	for _, cb := range s.Blocks() {
		b.WriteString(cb.Dump())
	}
	return b.String()
}
