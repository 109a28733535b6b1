// Semantic type model for the register-transfer IR.
// Types carry the size rules used to pick load/store widths and the
// nullability information consumed by smart casts.

package types

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ====== Core Type System ======

// TypeKind represents the kind of a type.
type TypeKind int

const (
	TypeKindNull TypeKind = iota
	TypeKindBool
	TypeKindChar
	TypeKindShort
	TypeKindInt
	TypeKindReal
	TypeKindString
	TypeKindError
	TypeKindUnit

	TypeKindArray
	TypeKindNullable
	TypeKindFunction
	TypeKindClass
)

// String returns the string representation of a TypeKind
func (tk TypeKind) String() string {
	switch tk {
	case TypeKindNull:
		return "null"
	case TypeKindBool:
		return "bool"
	case TypeKindChar:
		return "char"
	case TypeKindShort:
		return "short"
	case TypeKindInt:
		return "int"
	case TypeKindReal:
		return "real"
	case TypeKindString:
		return "string"
	case TypeKindError:
		return "error"
	case TypeKindUnit:
		return "unit"
	case TypeKindArray:
		return "array"
	case TypeKindNullable:
		return "nullable"
	case TypeKindFunction:
		return "function"
	case TypeKindClass:
		return "class"
	default:
		return "unknown"
	}
}

// Type represents a type. Compound types are interned by a Registry,
// so two types are equal exactly when their pointers are equal.
type Type struct {
	Kind TypeKind
	Name string

	// Elem is the element type of an array or the base of a nullable.
	Elem *Type

	Params []*Type
	Result *Type

	// Fields lists class members in layout order.
	Fields []Field
}

// Field is a class member with its byte offset inside the object.
type Field struct {
	Name    string
	Type    *Type
	Offset  int
	Mutable bool
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	return t.Name
}

// ====== Primitive Types ======

var (
	Null   = &Type{Kind: TypeKindNull, Name: "null"}
	Bool   = &Type{Kind: TypeKindBool, Name: "Bool"}
	Char   = &Type{Kind: TypeKindChar, Name: "Char"}
	Short  = &Type{Kind: TypeKindShort, Name: "Short"}
	Int    = &Type{Kind: TypeKindInt, Name: "Int"}
	Real   = &Type{Kind: TypeKindReal, Name: "Real"}
	String = &Type{Kind: TypeKindString, Name: "String"}
	Error  = &Type{Kind: TypeKindError, Name: "<Error>"}
	Unit   = &Type{Kind: TypeKindUnit, Name: "Unit"}
)

var predeclared = map[string]*Type{
	"Unit":   Unit,
	"Bool":   Bool,
	"Char":   Char,
	"Short":  Short,
	"Int":    Int,
	"Real":   Real,
	"String": String,
	"null":   Null,
}

// Size returns the number of bytes a value of this type occupies in memory.
func (t *Type) Size() int {
	switch t.Kind {
	case TypeKindUnit, TypeKindError:
		return 0
	case TypeKindChar:
		return 1
	case TypeKindShort:
		return 2
	case TypeKindReal:
		return 8
	default:
		return 4
	}
}

// IsNullable reports whether the type admits null.
func (t *Type) IsNullable() bool {
	return t.Kind == TypeKindNullable
}

// NonNull strips one level of nullability.
func (t *Type) NonNull() *Type {
	if t.Kind == TypeKindNullable {
		return t.Elem
	}
	return t
}

// Member returns the named class field.
func (t *Type) Member(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// AssignableFrom reports whether a value of type rhs may be stored in a
// location of type t. The error type is compatible with everything so
// one mistake does not cascade.
func (t *Type) AssignableFrom(rhs *Type) bool {
	if t == rhs || t.Kind == TypeKindError || rhs.Kind == TypeKindError {
		return true
	}
	if t.Kind == TypeKindNullable {
		return rhs.Kind == TypeKindNull || t.Elem.AssignableFrom(rhs)
	}
	return false
}

// ====== Registry ======

// ErrNotNullable is returned when asking for a nullable form of a type
// that cannot hold null.
var ErrNotNullable = errors.New("only class types can be nullable")

// Registry interns compound types for one compilation session.
type Registry struct {
	mu        sync.Mutex
	arrays    map[*Type]*Type
	nullables map[*Type]*Type
	functions map[string]*Type
	classes   map[string]*Type
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		arrays:    make(map[*Type]*Type),
		nullables: make(map[*Type]*Type),
		functions: make(map[string]*Type),
		classes:   make(map[string]*Type),
	}
}

// Array returns the interned array type with the given element type.
func (r *Registry) Array(elem *Type) *Type {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.arrays[elem]; ok {
		return t
	}
	t := &Type{Kind: TypeKindArray, Name: elem.Name + "[]", Elem: elem}
	r.arrays[elem] = t
	return t
}

// Nullable returns the interned nullable form of base.
func (r *Registry) Nullable(base *Type) (*Type, error) {
	if base.Kind == TypeKindNullable || base.Kind == TypeKindError {
		return base, nil
	}
	if base.Kind != TypeKindClass {
		return Error, fmt.Errorf("%s: %w", base, ErrNotNullable)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.nullables[base]; ok {
		return t, nil
	}
	t := &Type{Kind: TypeKindNullable, Name: base.Name + "?", Elem: base}
	r.nullables[base] = t
	return t, nil
}

// Function returns the interned function type.
func (r *Registry) Function(params []*Type, result *Type) *Type {
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name
	}
	name := "(" + strings.Join(names, ", ") + ")->" + result.Name

	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.functions[name]; ok {
		return t
	}
	t := &Type{Kind: TypeKindFunction, Name: name, Params: params, Result: result}
	r.functions[name] = t
	return t
}

// Class declares a new class type. Redeclaring a name returns the
// existing type.
func (r *Registry) Class(name string) *Type {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.classes[name]; ok {
		return t
	}
	t := &Type{Kind: TypeKindClass, Name: name}
	r.classes[name] = t
	return t
}

// AddField appends a member to a class, placing it at the next 4-byte
// aligned offset.
func (r *Registry) AddField(class *Type, name string, typ *Type, mutable bool) Field {
	r.mu.Lock()
	defer r.mu.Unlock()

	offset := 0
	if n := len(class.Fields); n > 0 {
		last := class.Fields[n-1]
		offset = align4(last.Offset + last.Type.Size())
	}
	f := Field{Name: name, Type: typ, Offset: offset, Mutable: mutable}
	class.Fields = append(class.Fields, f)
	return f
}

// Lookup parses a type name such as "Int", "Int[]" or "Node?".
func (r *Registry) Lookup(name string) (*Type, error) {
	name = strings.TrimSpace(name)
	switch {
	case strings.HasSuffix(name, "[]"):
		elem, err := r.Lookup(strings.TrimSuffix(name, "[]"))
		if err != nil {
			return Error, err
		}
		return r.Array(elem), nil
	case strings.HasSuffix(name, "?"):
		base, err := r.Lookup(strings.TrimSuffix(name, "?"))
		if err != nil {
			return Error, err
		}
		return r.Nullable(base)
	}

	if t, ok := predeclared[name]; ok {
		return t, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.classes[name]; ok {
		return t, nil
	}
	return Error, fmt.Errorf("unknown type '%s'", name)
}

func align4(n int) int {
	return (n + 3) &^ 3
}
