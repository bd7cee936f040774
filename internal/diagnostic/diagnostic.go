// Package diagnostic collects located errors and warnings produced while
// verifying a program.
package diagnostic

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// Severity is the level of a diagnostic.
type Severity int

const (
	Error Severity = iota
	Warning
	Info
)

var severityNames = [...]string{"error", "warning", "info"}

func (s Severity) String() string {
	if s >= 0 && int(s) < len(severityNames) {
		return severityNames[s]
	}
	return "unknown"
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Location is a position in the source a condition or block was lowered from.
// The zero value means "unknown".
type Location struct {
	File   string `json:"file,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

func (l Location) IsZero() bool {
	return l.File == "" && l.Line == 0 && l.Column == 0
}

func (l Location) String() string {
	file := l.File
	if file == "" {
		file = "<unknown>"
	}
	return fmt.Sprintf("%s:%d:%d", file, l.Line, l.Column)
}

func compareLocations(a, b Location) int {
	if c := strings.Compare(a.File, b.File); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Line, b.Line); c != 0 {
		return c
	}
	return cmp.Compare(a.Column, b.Column)
}

// Diagnostic is one message attached to a location.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Location Location `json:"location"`
	Hint     string   `json:"hint,omitempty"`
}

// format renders the diagnostic, substituting defaultFile when the location
// has no file.
func (d Diagnostic) format(defaultFile string) string {
	loc := d.Location
	if loc.File == "" {
		loc.File = defaultFile
	}
	s := fmt.Sprintf("%s[%s]: %s", d.Severity, loc, d.Message)
	if d.Hint != "" {
		s += "\n  hint: " + d.Hint
	}
	return s
}

func (d Diagnostic) String() string { return d.format("") }

// Diagnostics is an ordered collection of diagnostics.
type Diagnostics struct {
	items []Diagnostic
}

func New() *Diagnostics {
	return &Diagnostics{}
}

func (d *Diagnostics) Add(item Diagnostic) {
	d.items = append(d.items, item)
}

// Merge appends every diagnostic of other.
func (d *Diagnostics) Merge(other *Diagnostics) {
	if other != nil {
		d.items = append(d.items, other.items...)
	}
}

func (d *Diagnostics) addf(sev Severity, loc Location, hint, format string, args ...any) {
	d.Add(Diagnostic{Severity: sev, Message: fmt.Sprintf(format, args...), Location: loc, Hint: hint})
}

func (d *Diagnostics) Errorf(loc Location, format string, args ...any) {
	d.addf(Error, loc, "", format, args...)
}

func (d *Diagnostics) Warningf(loc Location, format string, args ...any) {
	d.addf(Warning, loc, "", format, args...)
}

func (d *Diagnostics) Infof(loc Location, format string, args ...any) {
	d.addf(Info, loc, "", format, args...)
}

func (d *Diagnostics) ErrorWithHint(loc Location, msg, hint string) {
	d.addf(Error, loc, hint, "%s", msg)
}

func (d *Diagnostics) WarningWithHint(loc Location, msg, hint string) {
	d.addf(Warning, loc, hint, "%s", msg)
}

// Filter returns the diagnostics of the given severity, in order.
func (d *Diagnostics) Filter(sev Severity) []Diagnostic {
	var out []Diagnostic
	for _, item := range d.items {
		if item.Severity == sev {
			out = append(out, item)
		}
	}
	return out
}

func (d *Diagnostics) Errors() []Diagnostic { return d.Filter(Error) }

func (d *Diagnostics) All() []Diagnostic { return d.items }

func (d *Diagnostics) Count() int { return len(d.items) }

func (d *Diagnostics) ErrorCount() int { return len(d.Filter(Error)) }

func (d *Diagnostics) WarningCount() int { return len(d.Filter(Warning)) }

func (d *Diagnostics) HasErrors() bool { return d.ErrorCount() > 0 }

// Sort orders diagnostics by location, keeping insertion order between
// diagnostics at the same position.
func (d *Diagnostics) Sort() {
	slices.SortStableFunc(d.items, func(a, b Diagnostic) int {
		return compareLocations(a.Location, b.Location)
	})
}

// Summary counts errors and warnings, e.g. "2 errors, 1 warning".
func (d *Diagnostics) Summary() string {
	return plural(d.ErrorCount(), "error") + ", " + plural(d.WarningCount(), "warning")
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// Format renders one diagnostic per entry, separated by newlines. Items
// without a file fall back to defaultFile.
//
//	error[bundle.yaml:3:10]: postcondition "nonneg" refuted
//	  hint: counterexample x = -1
func (d *Diagnostics) Format(defaultFile string) string {
	lines := make([]string, len(d.items))
	for i, item := range d.items {
		lines[i] = item.format(defaultFile)
	}
	return strings.Join(lines, "\n")
}
