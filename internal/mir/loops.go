package mir

import "sort"

// Edge is a control-flow edge.
type Edge struct {
	From BlockID
	To   BlockID
}

// BackEdges returns the edges that close a cycle in a depth-first walk from
// the entry block: their target is still on the walk stack when reached.
// Blocks unreachable from the entry are ignored.
func BackEdges(fn *Function) []Edge {
	if _, ok := fn.Blocks[fn.Entry]; !ok {
		return nil
	}

	visiting := make(map[BlockID]bool) // on the current walk stack
	visited := make(map[BlockID]bool)  // completed blocks
	var edges []Edge

	type frame struct {
		id    BlockID
		succs []BlockID
		next  int
	}
	push := func(stack []frame, id BlockID) []frame {
		visiting[id] = true
		var succs []BlockID
		if bb := fn.Blocks[id]; bb != nil && bb.Terminator != nil {
			succs = bb.Terminator.Successors()
		}
		return append(stack, frame{id: id, succs: succs})
	}

	stack := push(nil, fn.Entry)
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next == len(top.succs) {
			visiting[top.id] = false
			visited[top.id] = true
			stack = stack[:len(stack)-1]
			continue
		}
		succ := top.succs[top.next]
		top.next++
		if _, ok := fn.Blocks[succ]; !ok {
			continue
		}
		if visiting[succ] {
			edges = append(edges, Edge{From: top.id, To: succ})
			continue
		}
		if !visited[succ] {
			stack = push(stack, succ)
		}
	}
	return edges
}

// LoopHeaders returns the targets of back edges.
func LoopHeaders(fn *Function) map[BlockID]bool {
	headers := make(map[BlockID]bool)
	for _, e := range BackEdges(fn) {
		headers[e.To] = true
	}
	return headers
}

// Predecessors maps each block to the blocks that jump to it.
func Predecessors(fn *Function) map[BlockID][]BlockID {
	preds := make(map[BlockID][]BlockID)
	for _, id := range fn.BlockIDs() {
		bb := fn.Blocks[id]
		if bb == nil || bb.Terminator == nil {
			continue
		}
		for _, s := range bb.Terminator.Successors() {
			preds[s] = append(preds[s], id)
		}
	}
	return preds
}

// LoopBody returns the blocks of the natural loop(s) headed by header: the
// header plus every block that reaches a back edge into it without passing
// through the header. The result is sorted.
func LoopBody(fn *Function, header BlockID) []BlockID {
	preds := Predecessors(fn)
	body := map[BlockID]bool{header: true}
	var work []BlockID
	for _, e := range BackEdges(fn) {
		if e.To == header && !body[e.From] {
			body[e.From] = true
			work = append(work, e.From)
		}
	}
	for len(work) > 0 {
		b := work[len(work)-1]
		work = work[:len(work)-1]
		for _, p := range preds[b] {
			if !body[p] {
				body[p] = true
				work = append(work, p)
			}
		}
	}

	ids := make([]BlockID, 0, len(body))
	for id := range body {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// AssignedLocals returns the locals written by statements or call
// destinations in the given blocks, sorted.
func AssignedLocals(fn *Function, blocks []BlockID) []LocalID {
	seen := make(map[LocalID]bool)
	for _, id := range blocks {
		bb := fn.Blocks[id]
		if bb == nil {
			continue
		}
		for _, st := range bb.Statements {
			if as, ok := st.(*Assign); ok {
				seen[as.Place.Local] = true
			}
		}
		if call, ok := bb.Terminator.(*Call); ok {
			seen[call.Destination.Local] = true
		}
	}
	out := make([]LocalID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Region is a strongly connected set of blocks that contains a cycle.
type Region struct {
	Blocks  []BlockID // sorted
	Entries []BlockID // blocks reached from outside the region, sorted
}

// Irreducible reports whether the region can be entered at more than one
// block, so that no single header dominates its cycles.
func (r Region) Irreducible() bool { return len(r.Entries) > 1 }

// CyclicRegions returns the strongly connected components reachable from
// the entry block that contain a cycle, ordered by their smallest block.
// The entry block counts as entered from outside.
func CyclicRegions(fn *Function) []Region {
	if _, ok := fn.Blocks[fn.Entry]; !ok {
		return nil
	}
	succs := func(id BlockID) []BlockID {
		bb := fn.Blocks[id]
		if bb == nil || bb.Terminator == nil {
			return nil
		}
		var out []BlockID
		for _, s := range bb.Terminator.Successors() {
			if _, ok := fn.Blocks[s]; ok {
				out = append(out, s)
			}
		}
		return out
	}

	// Tarjan's algorithm
	index := make(map[BlockID]int)
	low := make(map[BlockID]int)
	onStack := make(map[BlockID]bool)
	component := make(map[BlockID]int)
	var stack []BlockID
	var sccs [][]BlockID

	var visit func(BlockID)
	visit = func(v BlockID) {
		index[v] = len(index)
		low[v] = index[v]
		stack = append(stack, v)
		onStack[v] = true
		for _, w := range succs(v) {
			if _, seen := index[w]; !seen {
				visit(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], index[w])
			}
		}
		if low[v] != index[v] {
			return
		}
		var scc []BlockID
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			component[w] = len(sccs)
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		sccs = append(sccs, scc)
	}
	visit(fn.Entry)

	preds := Predecessors(fn)
	var regions []Region
	for i, scc := range sccs {
		cyclic := len(scc) > 1
		if !cyclic {
			for _, s := range succs(scc[0]) {
				if s == scc[0] {
					cyclic = true
				}
			}
		}
		if !cyclic {
			continue
		}
		var entries []BlockID
		for _, b := range scc {
			entered := b == fn.Entry
			for _, p := range preds[b] {
				if c, reachable := component[p]; reachable && c != i {
					entered = true
				}
			}
			if entered {
				entries = append(entries, b)
			}
		}
		sortIDs(scc)
		sortIDs(entries)
		regions = append(regions, Region{Blocks: scc, Entries: entries})
	}
	sort.Slice(regions, func(i, j int) bool { return regions[i].Blocks[0] < regions[j].Blocks[0] })
	return regions
}

func sortIDs(ids []BlockID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
