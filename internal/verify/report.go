package verify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lhaig/contractcheck/internal/diagnostic"
)

// statusWorse returns true if a is worse than b in the ordering:
// proved = satisfiable < timeout < unknown < vacuous < refuted < error
func statusWorse(a, b Status) bool {
	return statusRank(a) > statusRank(b)
}

func statusRank(s Status) int {
	switch s {
	case StatusProved, StatusSatisfiable:
		return 0
	case StatusTimeout:
		return 1
	case StatusUnknown:
		return 2
	case StatusVacuous:
		return 3
	case StatusRefuted:
		return 4
	case StatusError:
		return 5
	default:
		return 6
	}
}

// Worst returns the worst status across results.
func Worst(results []*VerificationResult) Status {
	worst := StatusProved
	for _, r := range results {
		if w := r.Worst(); statusWorse(w, worst) {
			worst = w
		}
	}
	return worst
}

// AllVerified reports whether every result verified.
func AllVerified(results []*VerificationResult) bool {
	for _, r := range results {
		if !r.Verified {
			return false
		}
	}
	return true
}

// FormatReport produces human-readable output for verification results.
func FormatReport(results []*VerificationResult) string {
	if len(results) == 0 {
		return ""
	}

	var sb strings.Builder

	sb.WriteString("Contract Verification Report\n")
	sb.WriteString("============================\n\n")

	for _, r := range results {
		fmt.Fprintf(&sb, "Function: %s\n", r.Function)
		if r.Err != nil {
			fmt.Fprintf(&sb, "  %s: %v\n", strings.ToUpper(Classify(r.Err).String()), r.Err)
		}

		verified := 0
		total := len(r.Conditions)
		for _, c := range r.Conditions {
			fmt.Fprintf(&sb, "  %-40s %s\n", c.Name, strings.ToUpper(c.Status.String()))
			if c.Verified {
				verified++
			}
		}
		for _, cex := range r.Counterexamples {
			fmt.Fprintf(&sb, "  counterexample for %s: %s\n", cex.Condition, formatAssignments(cex))
			if len(cex.Trace) > 0 {
				fmt.Fprintf(&sb, "    path: %s\n", strings.Join(cex.Trace, " -> "))
			}
		}

		switch {
		case r.Err != nil:
			sb.WriteString("  Status: not verified\n")
		case total == 0:
			sb.WriteString("  Status: nothing to verify\n")
		case verified == total:
			fmt.Fprintf(&sb, "  Status: all %d conditions verified\n", total)
		default:
			fmt.Fprintf(&sb, "  Status: %d of %d conditions verified\n", verified, total)
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func formatAssignments(cex Counterexample) string {
	names := make([]string, 0, len(cex.Assignments))
	for n := range cex.Assignments {
		names = append(names, n)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = fmt.Sprintf("%s = %s", n, cex.Assignments[n])
	}
	return strings.Join(parts, ", ")
}

// Diagnostics converts results into diagnostics: refuted conditions and
// generation failures are errors, undecided or vacuous conditions are
// warnings.
func Diagnostics(results []*VerificationResult) *diagnostic.Diagnostics {
	d := diagnostic.New()
	for _, r := range results {
		if r.Err != nil {
			d.ErrorWithHint(r.Location,
				fmt.Sprintf("cannot verify %s: %v", r.Function, r.Err),
				hintFor(Classify(r.Err)))
		}
		cexs := make(map[string]Counterexample, len(r.Counterexamples))
		for _, c := range r.Counterexamples {
			cexs[c.Condition] = c
		}
		for _, c := range r.Conditions {
			loc := c.Location
			if loc.IsZero() {
				loc = r.Location
			}
			switch c.Status {
			case StatusRefuted:
				hint := ""
				if cex, ok := cexs[c.Name]; ok {
					hint = "counterexample: " + formatAssignments(cex)
				}
				d.ErrorWithHint(loc, fmt.Sprintf("%s: %s does not hold", r.Function, c.Name), hint)
			case StatusError:
				d.Errorf(loc, "%s: %s: %s", r.Function, c.Name, c.Message)
			case StatusUnknown, StatusTimeout:
				d.WarningWithHint(loc, fmt.Sprintf("%s: %s is %s", r.Function, c.Name, c.Status),
					"add a loop invariant or simplify the condition")
			case StatusVacuous:
				d.Warningf(loc, "%s: %s is unsatisfiable", r.Function, c.Name)
			}
		}
	}
	return d
}

func hintFor(k ErrorKind) string {
	switch k {
	case KindUnsupported:
		return "rewrite the contract without this construct or mark it runtime-only"
	case KindMalformed:
		return "the function body could not be read as a control-flow graph"
	case KindSolver:
		return "check the solver configuration"
	}
	return ""
}
