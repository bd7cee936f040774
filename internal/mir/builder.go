package mir

// Builder assembles a Function. Locals are numbered in creation order
// after the return place.
type Builder struct {
	fn   *Function
	next LocalID
}

// NewFunction starts a function with the given return type and entry bb0.
func NewFunction(name string, ret Type) *Builder {
	return &Builder{
		fn: &Function{
			Name:       name,
			ReturnType: ret,
			Locals:     map[LocalID]*Local{ReturnPlace: {ID: ReturnPlace, Type: ret, Mutable: true}},
			Blocks:     make(map[BlockID]*BasicBlock),
		},
		next: 1,
	}
}

// Param adds a parameter and returns its local.
func (b *Builder) Param(name string, t Type) LocalID {
	id := b.next
	b.next++
	b.fn.Params = append(b.fn.Params, Param{Name: name, Local: id, Type: t})
	b.fn.Locals[id] = &Local{ID: id, Name: name, Type: t}
	return id
}

// Local adds a local; an empty name makes a temporary.
func (b *Builder) Local(name string, t Type) LocalID {
	id := b.next
	b.next++
	b.fn.Locals[id] = &Local{ID: id, Name: name, Type: t, Mutable: true}
	return id
}

// Block defines block id.
func (b *Builder) Block(id BlockID, term Terminator, stmts ...Stmt) *Builder {
	b.fn.Blocks[id] = &BasicBlock{ID: id, Statements: stmts, Terminator: term}
	return b
}

// Entry overrides the entry block.
func (b *Builder) Entry(id BlockID) *Builder {
	b.fn.Entry = id
	return b
}

// Build returns the function.
func (b *Builder) Build() *Function {
	return b.fn
}

// Set builds dst = rv.
func Set(dst LocalID, rv Rvalue) *Assign {
	return &Assign{Place: LocalPlace(dst), Value: rv}
}

// Bin builds a binary rvalue.
func Bin(op BinOp, l, r Operand) *BinaryOp {
	return &BinaryOp{Op: op, Left: l, Right: r}
}

// UseOf builds a use of an operand.
func UseOf(op Operand) *Use {
	return &Use{Operand: op}
}

// If builds a boolean two-way switch on a local.
func If(cond LocalID, then, otherwise BlockID) *SwitchInt {
	return &SwitchInt{Discriminant: CopyOf(cond), Values: []int64{1}, Targets: []BlockID{then}, Otherwise: otherwise}
}
