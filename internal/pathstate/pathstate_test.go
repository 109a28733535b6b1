package pathstate

import (
	"testing"

	"github.com/orizon-lang/rmcc/internal/ir"
	"github.com/orizon-lang/rmcc/internal/types"
)

func TestOperationsDoNotMutate(t *testing.T) {
	a := ir.NewLocal("a", types.Int, false)

	base := New()
	withA := base.AddUninitialized(a)

	if base.IsUninitialized(a) {
		t.Error("AddUninitialized mutated the receiver")
	}
	if !withA.IsUninitialized(a) || !withA.IsMaybeUninitialized(a) {
		t.Error("AddUninitialized should set both sets")
	}

	written := withA.RemoveUninitialized(a)
	if written.IsMaybeUninitialized(a) || !withA.IsMaybeUninitialized(a) {
		t.Error("RemoveUninitialized should only affect the result")
	}
}

func TestRemoveUninitializedOnlyWhenMaybe(t *testing.T) {
	a := ir.NewLocal("a", types.Int, false)
	p := New()

	if !p.RemoveUninitialized(a).Equal(p) {
		t.Error("removing an initialized variable should be a no-op")
	}
}

func TestJoin(t *testing.T) {
	reg := types.NewRegistry()
	node := reg.Class("Node")
	nullable, _ := reg.Nullable(node)

	a := ir.NewLocal("a", types.Int, false)
	b := ir.NewLocal("b", types.Int, false)
	p := ir.NewLocal("p", nullable, false)

	start := New().AddUninitialized(a).AddUninitialized(b)

	tests := []struct {
		name      string
		in        []PathState
		uninitA   bool
		maybeA    bool
		uninitB   bool
		castP     bool
		unreached bool
	}{
		{
			name:      "no inputs",
			in:        nil,
			unreached: true,
		},
		{
			name:      "all unreachable",
			in:        []PathState{start.AddUnreachable(), start.AddSmartCast(p, node).AddUnreachable()},
			unreached: true,
		},
		{
			name:    "initialized on both paths",
			in:      []PathState{start.RemoveUninitialized(a), start.RemoveUninitialized(a)},
			uninitB: true,
		},
		{
			name:    "initialized on one path",
			in:      []PathState{start.RemoveUninitialized(a), start},
			maybeA:  true,
			uninitB: true,
		},
		{
			name:    "unreachable path ignored",
			in:      []PathState{start.RemoveUninitialized(a), start.AddUnreachable()},
			uninitB: true,
		},
		{
			name:    "agreeing narrowing kept",
			in:      []PathState{start.AddSmartCast(p, node), start.AddSmartCast(p, node)},
			uninitA: true, maybeA: true, uninitB: true,
			castP: true,
		},
		{
			name:    "narrowing on one path dropped",
			in:      []PathState{start.AddSmartCast(p, node), start},
			uninitA: true, maybeA: true, uninitB: true,
		},
		{
			name:    "disagreeing narrowing dropped",
			in:      []PathState{start.AddSmartCast(p, node), start.AddSmartCast(p, types.Null)},
			uninitA: true, maybeA: true, uninitB: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Join(tt.in...)

			if got.IsUnreachable() != tt.unreached {
				t.Errorf("unreachable = %v, want %v", got.IsUnreachable(), tt.unreached)
			}
			if got.IsUninitialized(a) != tt.uninitA {
				t.Errorf("uninitialized(a) = %v, want %v", got.IsUninitialized(a), tt.uninitA)
			}
			if got.IsMaybeUninitialized(a) != tt.maybeA {
				t.Errorf("maybe(a) = %v, want %v", got.IsMaybeUninitialized(a), tt.maybeA)
			}
			if got.IsUninitialized(b) != tt.uninitB {
				t.Errorf("uninitialized(b) = %v, want %v", got.IsUninitialized(b), tt.uninitB)
			}
			if (got.GetType(p) == node) != tt.castP {
				t.Errorf("GetType(p) = %s", got.GetType(p))
			}
			if tt.unreached && !got.Equal(New().AddUnreachable()) {
				t.Errorf("unreachable join should carry no facts, got %s", got)
			}
		})
	}
}

func TestRemoveSmartCastDropsDependents(t *testing.T) {
	sess := ir.NewSession()
	cb := sess.NewCodeBlock("f")
	node := sess.Types.Class("Node")
	nullable, _ := sess.Types.Nullable(node)

	p := ir.NewLocal("p", nullable, true)
	q := ir.NewLocal("q", nullable, true)
	next := ir.NewMember("next", nullable, 0, true)
	pNext := cb.AddLoad(nullable, p, next)

	s := New().AddSmartCast(p, node).AddSmartCast(pNext, node).AddSmartCast(q, node)
	s = s.RemoveSmartCast(p)

	if s.GetType(p) != nullable || s.GetType(pNext) != nullable {
		t.Error("narrowings of p and p.next should be gone")
	}
	if s.GetType(q) != node {
		t.Error("unrelated narrowing should survive")
	}
}
