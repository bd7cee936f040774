package mir

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrMalformed marks a CFG that cannot be walked.
var ErrMalformed = errors.New("malformed CFG")

// Validate checks a function body and returns a list of error messages.
// An empty slice indicates the function is well formed.
func Validate(fn *Function) []string {
	var errs []string

	if fn == nil {
		return []string{"function is nil"}
	}
	if _, ok := fn.Blocks[fn.Entry]; !ok {
		errs = append(errs, fmt.Sprintf("function %s: entry block %s does not exist", fn.Name, fn.Entry))
	}

	seenParams := make(map[LocalID]bool)
	for _, p := range fn.Params {
		if p.Local == ReturnPlace {
			errs = append(errs, fmt.Sprintf("function %s: parameter %s uses the return place", fn.Name, p.Name))
		}
		if seenParams[p.Local] {
			errs = append(errs, fmt.Sprintf("function %s: local %s bound to more than one parameter", fn.Name, p.Local))
		}
		seenParams[p.Local] = true
	}

	for _, id := range fn.BlockIDs() {
		bb := fn.Blocks[id]
		context := fmt.Sprintf("function %s %s", fn.Name, id)
		if bb == nil {
			errs = append(errs, context+": block is nil")
			continue
		}
		if bb.Terminator == nil {
			errs = append(errs, context+": missing terminator")
			continue
		}
		for _, succ := range bb.Terminator.Successors() {
			if _, ok := fn.Blocks[succ]; !ok {
				errs = append(errs, fmt.Sprintf("%s: jump to undefined block %s", context, succ))
			}
		}
		if sw, ok := bb.Terminator.(*SwitchInt); ok && len(sw.Values) != len(sw.Targets) {
			errs = append(errs, fmt.Sprintf("%s: switch has %d values but %d targets", context, len(sw.Values), len(sw.Targets)))
		}
		for i, st := range bb.Statements {
			if as, ok := st.(*Assign); ok && as.Value == nil {
				errs = append(errs, fmt.Sprintf("%s: statement %d assigns no value", context, i))
			}
		}
	}

	return errs
}

// Check runs Validate and folds its messages into one ErrMalformed error.
func Check(fn *Function) error {
	msgs := Validate(fn)
	if len(msgs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrMalformed, strings.Join(msgs, "; "))
}

// BlockIDs returns the block ids in ascending order.
func (f *Function) BlockIDs() []BlockID {
	ids := make([]BlockID, 0, len(f.Blocks))
	for id := range f.Blocks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
