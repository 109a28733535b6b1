// Diagnostic collection for user-facing compilation errors.
// Lowering records problems here and keeps going; the pipeline refuses
// to run on a session whose bag holds errors.

package diagnostic

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/orizon-lang/rmcc/internal/position"
)

// DiagnosticLevel represents the severity level of a diagnostic message.
type DiagnosticLevel int

const (
	DiagnosticError DiagnosticLevel = iota
	DiagnosticWarning
	DiagnosticInfo
)

func (dl DiagnosticLevel) String() string {
	switch dl {
	case DiagnosticError:
		return "error"
	case DiagnosticWarning:
		return "warning"
	case DiagnosticInfo:
		return "info"
	default:
		return "unknown"
	}
}

// DiagnosticCategory represents the category of diagnostic.
type DiagnosticCategory int

const (
	DiagnosticType DiagnosticCategory = iota
	DiagnosticSemantic
	DiagnosticFlow
)

func (dc DiagnosticCategory) String() string {
	switch dc {
	case DiagnosticType:
		return "type"
	case DiagnosticSemantic:
		return "semantic"
	case DiagnosticFlow:
		return "flow"
	default:
		return "unknown"
	}
}

// Diagnostic represents a single diagnostic message.
type Diagnostic struct {
	Message  string
	Span     position.Span
	Level    DiagnosticLevel
	Category DiagnosticCategory
}

// String renders the diagnostic the way compiler tests compare it:
// "<span>: <message>".
func (d Diagnostic) String() string {
	if !d.Span.IsValid() {
		return d.Message
	}
	return fmt.Sprintf("%s: %s", d.Span, d.Message)
}

// DiagnosticBuilder helps construct diagnostic messages with fluent API.
type DiagnosticBuilder struct {
	diagnostic Diagnostic
}

// NewDiagnostic creates a new diagnostic builder.
func NewDiagnostic() *DiagnosticBuilder {
	return &DiagnosticBuilder{}
}

func (db *DiagnosticBuilder) Error() *DiagnosticBuilder {
	db.diagnostic.Level = DiagnosticError

	return db
}

func (db *DiagnosticBuilder) Warning() *DiagnosticBuilder {
	db.diagnostic.Level = DiagnosticWarning

	return db
}

func (db *DiagnosticBuilder) Category(c DiagnosticCategory) *DiagnosticBuilder {
	db.diagnostic.Category = c

	return db
}

func (db *DiagnosticBuilder) Message(format string, args ...interface{}) *DiagnosticBuilder {
	db.diagnostic.Message = fmt.Sprintf(format, args...)

	return db
}

func (db *DiagnosticBuilder) Span(span position.Span) *DiagnosticBuilder {
	db.diagnostic.Span = span

	return db
}

func (db *DiagnosticBuilder) Build() Diagnostic {
	return db.diagnostic
}

// Bag collects diagnostics in the order they are reported.
type Bag struct {
	mu          sync.Mutex
	diagnostics []Diagnostic
}

// NewBag creates an empty diagnostic bag.
func NewBag() *Bag {
	return &Bag{}
}

// Add appends a diagnostic.
func (b *Bag) Add(d Diagnostic) {
	b.mu.Lock()
	b.diagnostics = append(b.diagnostics, d)
	b.mu.Unlock()
}

// Errorf records an error at span.
func (b *Bag) Errorf(span position.Span, cat DiagnosticCategory, format string, args ...interface{}) {
	b.Add(NewDiagnostic().Error().Category(cat).Span(span).Message(format, args...).Build())
}

// Warnf records a warning at span.
func (b *Bag) Warnf(span position.Span, format string, args ...interface{}) {
	b.Add(NewDiagnostic().Warning().Category(DiagnosticSemantic).Span(span).Message(format, args...).Build())
}

// All returns every diagnostic in report order.
func (b *Bag) All() []Diagnostic {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Diagnostic, len(b.diagnostics))
	copy(out, b.diagnostics)

	return out
}

// Errors returns only error-level diagnostics.
func (b *Bag) Errors() []Diagnostic {
	errs := make([]Diagnostic, 0)

	for _, d := range b.All() {
		if d.Level == DiagnosticError {
			errs = append(errs, d)
		}
	}

	return errs
}

// HasErrors returns true if there are any errors.
func (b *Bag) HasErrors() bool {
	return len(b.Errors()) > 0
}

// Clear removes all diagnostics.
func (b *Bag) Clear() {
	b.mu.Lock()
	b.diagnostics = b.diagnostics[:0]
	b.mu.Unlock()
}

const (
	colorRed    = "\x1b[31m"
	colorYellow = "\x1b[33m"
	colorReset  = "\x1b[0m"
)

// Format returns the diagnostics sorted by position, one per line.
// Errors are listed before warnings reported at the same position.
func (b *Bag) Format(color bool) string {
	all := b.All()
	if len(all) == 0 {
		return ""
	}

	sort.SliceStable(all, func(i, j int) bool {
		a, c := all[i].Span.Start, all[j].Span.Start
		if a != c {
			return a.Before(c)
		}
		return all[i].Level < all[j].Level
	})

	var sb strings.Builder

	for i, d := range all {
		if i > 0 {
			sb.WriteByte('\n')
		}

		if color {
			switch d.Level {
			case DiagnosticError:
				sb.WriteString(colorRed)
			case DiagnosticWarning:
				sb.WriteString(colorYellow)
			}
		}

		sb.WriteString(d.String())

		if color && d.Level != DiagnosticInfo {
			sb.WriteString(colorReset)
		}
	}

	return sb.String()
}
