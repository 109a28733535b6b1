package ir

// Rebuild compacts the block and recomputes every index.
//
// Nops and self-moves are dropped, locals and temps no longer referenced
// leave the symbol table, and def/use lists and label positions are
// rebuilt from scratch. Registers keep indexes 0..31.
func (cb *CodeBlock) Rebuild() {
	prog := cb.Prog[:0]
	for _, in := range cb.Prog {
		switch in := in.(type) {
		case Nop:
			continue
		case Mov:
			if in.Dest == in.Src {
				continue
			}
		}
		prog = append(prog, in)
	}
	for i := len(prog); i < len(cb.Prog); i++ {
		cb.Prog[i] = nil
	}
	cb.Prog = prog

	referenced := make(map[*Symbol]bool)
	for _, in := range cb.Prog {
		if d := Dest(in); d != nil {
			referenced[d] = true
		}
		for _, s := range Operands(in) {
			referenced[s] = true
		}
	}

	old := cb.symbols
	cb.symbols = make([]*Symbol, 0, len(old))
	cb.index = make(map[*Symbol]int, len(old))
	cb.defs = cb.defs[:0]
	cb.uses = cb.uses[:0]
	for i, s := range old {
		if i >= NumRegs && !referenced[s] {
			continue
		}
		cb.AddSymbol(s)
	}

	for l := range cb.labelPos {
		cb.labelPos[l] = -1
		cb.labelUses[l] = nil
	}

	for pos := range cb.Prog {
		cb.link(pos)
	}
}
