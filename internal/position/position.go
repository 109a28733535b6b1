// Package position provides source position tracking for diagnostics
// reported while lowering into the register-transfer IR.
package position

import (
	"fmt"
	"path/filepath"
)

// Position represents a single point in source code
type Position struct {
	Filename string // Source file name
	Line     int    // 1-based line number
	Column   int    // 1-based column number
}

// IsValid returns true if the position is valid
func (p Position) IsValid() bool {
	return p.Line > 0 && p.Column > 0
}

// String returns a string representation of the position
func (p Position) String() string {
	if p.Filename != "" {
		return fmt.Sprintf("%s:%d.%d", filepath.Base(p.Filename), p.Line, p.Column)
	}
	return fmt.Sprintf("%d.%d", p.Line, p.Column)
}

// Before returns true if this position comes before other
func (p Position) Before(other Position) bool {
	if p.Filename != other.Filename {
		return p.Filename < other.Filename
	}
	if p.Line != other.Line {
		return p.Line < other.Line
	}
	return p.Column < other.Column
}

// Span represents a range of source code between two positions
type Span struct {
	Start Position // Starting position (inclusive)
	End   Position // Ending position (inclusive)
}

// NoSpan is used for IR that has no source counterpart.
var NoSpan = Span{}

// At returns a span covering line.first-column through line.last-column.
func At(filename string, line, first, last int) Span {
	return Span{
		Start: Position{Filename: filename, Line: line, Column: first},
		End:   Position{Filename: filename, Line: line, Column: last},
	}
}

// IsValid returns true if the span is valid
func (s Span) IsValid() bool {
	return s.Start.IsValid() && s.End.IsValid() && s.Start.Filename == s.End.Filename
}

// String renders the span as file:line.col-line.col
func (s Span) String() string {
	if !s.IsValid() {
		return "<unknown>"
	}
	name := ""
	if s.Start.Filename != "" {
		name = filepath.Base(s.Start.Filename) + ":"
	}
	return fmt.Sprintf("%s%d.%d-%d.%d", name, s.Start.Line, s.Start.Column, s.End.Line, s.End.Column)
}

// Union returns a span that encompasses both this span and other
func (s Span) Union(other Span) Span {
	if !s.IsValid() {
		return other
	}
	if !other.IsValid() || s.Start.Filename != other.Start.Filename {
		return s
	}

	start := s.Start
	if other.Start.Before(start) {
		start = other.Start
	}

	end := s.End
	if end.Before(other.End) {
		end = other.End
	}

	return Span{Start: start, End: end}
}
