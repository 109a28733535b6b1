// Package pathstate tracks flow-sensitive facts while lowering:
// which variables may still be uninitialized and which nullable values
// have been narrowed by a null test.
//
// A PathState is an immutable value. Every operation returns a new
// state and leaves the receiver untouched, so states can be captured at
// branch points and joined later.
package pathstate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/orizon-lang/rmcc/internal/ir"
	"github.com/orizon-lang/rmcc/internal/types"
)

type symbolSet map[*ir.Symbol]struct{}

type PathState struct {
	uninitialized      symbolSet
	maybeUninitialized symbolSet
	smartCast          map[*ir.Symbol]*types.Type
	unreachable        bool
}

// New returns the reachable state with no facts.
func New() PathState {
	return PathState{}
}

func (p PathState) AddUninitialized(s *ir.Symbol) PathState {
	p.uninitialized = p.uninitialized.with(s)
	p.maybeUninitialized = p.maybeUninitialized.with(s)
	return p
}

// RemoveUninitialized marks s as written. It has no effect unless s may
// still be uninitialized.
func (p PathState) RemoveUninitialized(s *ir.Symbol) PathState {
	if !p.IsMaybeUninitialized(s) {
		return p
	}
	p.uninitialized = p.uninitialized.without(s)
	p.maybeUninitialized = p.maybeUninitialized.without(s)
	return p
}

// AddSmartCast records that s is known to have type t on this path.
func (p PathState) AddSmartCast(s *ir.Symbol, t *types.Type) PathState {
	m := make(map[*ir.Symbol]*types.Type, len(p.smartCast)+1)
	for k, v := range p.smartCast {
		m[k] = v
	}
	m[s] = t
	p.smartCast = m
	return p
}

// RemoveSmartCast forgets the narrowing of s and of every value computed
// from s.
func (p PathState) RemoveSmartCast(s *ir.Symbol) PathState {
	if len(p.smartCast) == 0 {
		return p
	}
	m := make(map[*ir.Symbol]*types.Type, len(p.smartCast))
	for k, v := range p.smartCast {
		if !dependsOn(k, s) {
			m[k] = v
		}
	}
	p.smartCast = m
	return p
}

// AddUnreachable marks the path as never executed, for example after a
// return.
func (p PathState) AddUnreachable() PathState {
	p.unreachable = true
	return p
}

// GetType returns the narrowed type of s, or its declared type.
func (p PathState) GetType(s *ir.Symbol) *types.Type {
	if t, ok := p.smartCast[s]; ok {
		return t
	}
	return s.Type
}

func (p PathState) IsUninitialized(s *ir.Symbol) bool {
	_, ok := p.uninitialized[s]
	return ok
}

func (p PathState) IsMaybeUninitialized(s *ir.Symbol) bool {
	_, ok := p.maybeUninitialized[s]
	return ok
}

func (p PathState) IsUnreachable() bool {
	return p.unreachable
}

// Equal compares two states structurally.
func (p PathState) Equal(o PathState) bool {
	if p.unreachable != o.unreachable ||
		!p.uninitialized.equal(o.uninitialized) ||
		!p.maybeUninitialized.equal(o.maybeUninitialized) ||
		len(p.smartCast) != len(o.smartCast) {
		return false
	}
	for k, v := range p.smartCast {
		if ov, ok := o.smartCast[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Join merges the states reaching a control-flow join. Unreachable
// inputs are ignored. A variable is definitely uninitialized only if it
// is so on every path, and maybe uninitialized if it is on any path. A
// narrowing survives only if every path agrees on it.
func Join(states ...PathState) PathState {
	var reachable []PathState
	for _, s := range states {
		if !s.unreachable {
			reachable = append(reachable, s)
		}
	}
	if len(reachable) == 0 {
		return PathState{unreachable: true}
	}

	first := reachable[0]
	out := PathState{}

	for s := range first.uninitialized {
		all := true
		for _, r := range reachable[1:] {
			if !r.IsUninitialized(s) {
				all = false
				break
			}
		}
		if all {
			out.uninitialized = out.uninitialized.with(s)
		}
	}

	for _, r := range reachable {
		for s := range r.maybeUninitialized {
			out.maybeUninitialized = out.maybeUninitialized.with(s)
		}
	}

	for s, t := range first.smartCast {
		agree := true
		for _, r := range reachable[1:] {
			if rt, ok := r.smartCast[s]; !ok || rt != t {
				agree = false
				break
			}
		}
		if agree {
			if out.smartCast == nil {
				out.smartCast = make(map[*ir.Symbol]*types.Type)
			}
			out.smartCast[s] = t
		}
	}

	return out
}

func (p PathState) String() string {
	var b strings.Builder
	if p.unreachable {
		b.WriteString("unreachable ")
	}
	fmt.Fprintf(&b, "uninit=%s maybe=%s", p.uninitialized, p.maybeUninitialized)
	if len(p.smartCast) > 0 {
		casts := make([]string, 0, len(p.smartCast))
		for s, t := range p.smartCast {
			casts = append(casts, s.Name+":"+t.Name)
		}
		sort.Strings(casts)
		fmt.Fprintf(&b, " cast={%s}", strings.Join(casts, " "))
	}
	return b.String()
}

// dependsOn reports whether v is s or a temp computed from s.
func dependsOn(v, s *ir.Symbol) bool {
	if v == s {
		return true
	}
	if v == nil || v.Kind != ir.SymTemp || v.Expr.IsZero() {
		return false
	}
	return dependsOn(v.Expr.A, s) || dependsOn(v.Expr.B, s)
}

func (set symbolSet) with(s *ir.Symbol) symbolSet {
	if _, ok := set[s]; ok {
		return set
	}
	out := make(symbolSet, len(set)+1)
	for k := range set {
		out[k] = struct{}{}
	}
	out[s] = struct{}{}
	return out
}

func (set symbolSet) without(s *ir.Symbol) symbolSet {
	if _, ok := set[s]; !ok {
		return set
	}
	out := make(symbolSet, len(set))
	for k := range set {
		if k != s {
			out[k] = struct{}{}
		}
	}
	return out
}

func (set symbolSet) equal(o symbolSet) bool {
	if len(set) != len(o) {
		return false
	}
	for k := range set {
		if _, ok := o[k]; !ok {
			return false
		}
	}
	return true
}

func (set symbolSet) String() string {
	names := make([]string, 0, len(set))
	for s := range set {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return "{" + strings.Join(names, " ") + "}"
}
