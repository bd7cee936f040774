package solver

import (
	"math/big"
	"sort"
)

// DefaultLower and DefaultUpper frame the candidate window on a side
// without a bound.
const (
	DefaultLower int64 = -100
	DefaultUpper int64 = 100
)

// RandomCount is the number of pseudo-random candidates per variable.
const RandomCount = 20

// intCandidates produces boundary values of the admissible interval plus
// deterministic pseudo-random values inside it, ordered by distance from
// zero.
func intCandidates(b bounds) []*big.Rat {
	var lo, hi *int64
	if b.lo != nil {
		v := ceil(b.lo)
		if b.loStrict && v.Cmp(b.lo) == 0 {
			v.Add(v, big.NewRat(1, 1))
		}
		if !v.Num().IsInt64() {
			return nil
		}
		n := v.Num().Int64()
		lo = &n
	}
	if b.hi != nil {
		v := floor(b.hi)
		if b.hiStrict && v.Cmp(b.hi) == 0 {
			v.Sub(v, big.NewRat(1, 1))
		}
		if !v.Num().IsInt64() {
			return nil
		}
		n := v.Num().Int64()
		hi = &n
	}

	l, h := DefaultLower, DefaultUpper
	width := DefaultUpper - DefaultLower
	switch {
	case lo != nil && hi != nil:
		l, h = *lo, *hi
	case lo != nil:
		l, h = *lo, *lo+width
	case hi != nil:
		l, h = *hi-width, *hi
	}
	if h < l {
		return nil
	}

	seen := make(map[int64]bool)
	var values []int64
	add := func(v int64) {
		if v >= l && v <= h && !seen[v] {
			seen[v] = true
			values = append(values, v)
		}
	}
	add(0)
	add(1)
	add(-1)
	add(l)
	add(l + 1)
	if h > l+1 {
		add(h - 1)
	}
	add(h)

	rng := uint64(0x517cc1b727220a95)
	for i := 0; i < RandomCount; i++ {
		rng = xorshift64(rng)
		add(randRange(rng, l, h))
	}

	sort.Slice(values, func(i, j int) bool {
		ai, aj := abs64(values[i]), abs64(values[j])
		if ai != aj {
			return ai < aj
		}
		return values[i] > values[j]
	})
	out := make([]*big.Rat, len(values))
	for i, v := range values {
		out[i] = new(big.Rat).SetInt64(v)
	}
	return out
}

// realCandidates tries zero, unit values, the closed ends of the interval
// and points strictly inside it.
func realCandidates(b bounds) []*big.Rat {
	one := big.NewRat(1, 1)
	raw := []*big.Rat{new(big.Rat), one, new(big.Rat).Neg(one)}
	if b.lo != nil {
		raw = append(raw, b.lo)
		if b.hi == nil {
			raw = append(raw, new(big.Rat).Add(b.lo, one))
		}
	}
	if b.hi != nil {
		raw = append(raw, b.hi)
		if b.lo == nil {
			raw = append(raw, new(big.Rat).Sub(b.hi, one))
		}
	}
	if b.lo != nil && b.hi != nil {
		mid := new(big.Rat).Add(b.lo, b.hi)
		raw = append(raw, mid.Quo(mid, big.NewRat(2, 1)))
	}

	var out []*big.Rat
	for _, v := range raw {
		if !b.admits(v) {
			continue
		}
		dup := false
		for _, o := range out {
			if o.Cmp(v) == 0 {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return new(big.Rat).Abs(out[i]).Cmp(new(big.Rat).Abs(out[j])) < 0
	})
	return out
}

// xorshift64 is a simple deterministic PRNG.
func xorshift64(state uint64) uint64 {
	state ^= state << 13
	state ^= state >> 7
	state ^= state << 17
	return state
}

// randRange maps a PRNG state to a value in [lo, hi].
func randRange(state uint64, lo, hi int64) int64 {
	if lo >= hi {
		return lo
	}
	r := uint64(hi-lo) + 1
	return lo + int64(state%r)
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
