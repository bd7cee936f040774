package diagnostic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiagnosticsCounts(t *testing.T) {
	d := New()
	d.Errorf(Location{Line: 1, Column: 2}, "bad %s", "thing")
	d.Warningf(Location{}, "careful")
	d.Infof(Location{}, "fyi")

	assert.True(t, d.HasErrors())
	assert.Equal(t, 3, d.Count())
	assert.Equal(t, 1, d.ErrorCount())
	assert.Equal(t, 1, d.WarningCount())
	assert.Len(t, d.Errors(), 1)
	assert.Equal(t, "bad thing", d.Errors()[0].Message)
}

func TestFormatUsesDefaultFileAndHint(t *testing.T) {
	d := New()
	d.ErrorWithHint(Location{Line: 3, Column: 10}, `postcondition "nonneg" refuted`, "x = -1")
	d.WarningWithHint(Location{File: "other.yaml", Line: 5, Column: 1}, "undecided", "")

	want := "error[bundle.yaml:3:10]: postcondition \"nonneg\" refuted\n" +
		"  hint: x = -1\n" +
		"warning[other.yaml:5:1]: undecided"
	assert.Equal(t, want, d.Format("bundle.yaml"))
}

func TestFormatEmpty(t *testing.T) {
	assert.Equal(t, "", New().Format("x"))
	assert.False(t, New().HasErrors())
}

func TestLocation(t *testing.T) {
	assert.True(t, Location{}.IsZero())
	assert.Equal(t, "<unknown>:0:0", Location{}.String())
	assert.Equal(t, "f.go:1:2", Location{File: "f.go", Line: 1, Column: 2}.String())
}

func TestSortAndMerge(t *testing.T) {
	a := New()
	a.Errorf(Location{File: "b.yaml", Line: 1}, "late file")
	a.Warningf(Location{File: "a.yaml", Line: 9}, "second")

	b := New()
	b.Errorf(Location{File: "a.yaml", Line: 2}, "first")
	b.Infof(Location{File: "a.yaml", Line: 9}, "third")
	a.Merge(b)
	a.Merge(nil)
	a.Sort()

	var got []string
	for _, item := range a.All() {
		got = append(got, item.Message)
	}
	assert.Equal(t, []string{"first", "second", "third", "late file"}, got)
	assert.Len(t, a.Filter(Info), 1)
	assert.Equal(t, "2 errors, 1 warning", a.Summary())
	assert.Equal(t, "0 errors, 0 warnings", New().Summary())
}

func TestDiagnosticString(t *testing.T) {
	d := Diagnostic{Severity: Warning, Message: "vacuous", Location: Location{File: "f.yaml", Line: 4, Column: 1}, Hint: "check requires"}
	assert.Equal(t, "warning[f.yaml:4:1]: vacuous\n  hint: check requires", d.String())

	text, err := Error.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "error", string(text))
	assert.Equal(t, "unknown", Severity(7).String())
}
