package il

import "github.com/splanck/viper/internal/ast"

// Version is the IL text grammar version this in-memory representation
// corresponds to. Parsed modules carry their own version triple; this is
// the version new modules are stamped with by the builder.
type Version struct {
	Major, Minor, Patch int
}

func (v Version) String() string {
	s := itoa(uint16(v.Major)) + "." + itoa(uint16(v.Minor))
	if v.Patch != 0 {
		s += "." + itoa(uint16(v.Patch))
	}
	return s
}

// Signature is a callable's parameter/return shape, used both for extern
// declarations and as the declared type metadata on call.indirect.
type Signature struct {
	Params []Type
	Ret    Type
}

func (s Signature) Equal(o Signature) bool {
	if s.Ret != o.Ret || len(s.Params) != len(o.Params) {
		return false
	}
	for i := range s.Params {
		if s.Params[i] != o.Params[i] {
			return false
		}
	}
	return true
}

// Extern is an externally resolved function the module may call but does
// not define (§3, §4.9).
type Extern struct {
	Name string
	Sig  Signature
}

// Global is a module-level object: name, type, and constant initializer.
type Global struct {
	Name     string
	Typ      Type
	Const    bool
	IntInit  int64
	StrInit  string
	HasInit  bool
}

// Param is a typed, named function parameter. The builder assigns it a
// dense temp id in %0..%n-1 when the function is started.
type Param struct {
	Name string
	Typ  Type
	Temp TempID
}

// BlockParam is a named, typed formal on a basic block — the IL's
// replacement for explicit phi nodes.
type BlockParam struct {
	Name string
	Typ  Type
	Temp TempID
}

// BranchTarget names a block and the actual arguments supplied to its
// parameters on this edge.
type BranchTarget struct {
	Label string
	Args  []Value
}

// SwitchCase is one `key -> ^label` arm of a switch.i32.
type SwitchCase struct {
	Key    int32
	Target BranchTarget
}

// Instruction is one IL instruction: opcode, optional result, operands,
// and whatever opcode-specific metadata (branch targets, call signature,
// EH handler) its family requires.
type Instruction struct {
	Op Opcode

	HasResult  bool
	Result     TempID
	ResultType Type // meaningful when Op's Info.Result is ResultDeclared or ResultSameAsArg0

	// eh.entry binds a second well-known result: a fresh resumetok.
	HasResult2  bool
	Result2     TempID
	Result2Type Type

	Operands []Value

	// Control flow
	Targets []BranchTarget // br: [0]; cbr: [0]=true,[1]=false; resume.label: [0]
	Cases   []SwitchCase    // switch.i32
	Default BranchTarget    // switch.i32

	// Calls
	Callee    string     // direct call target symbol; empty for call.indirect
	CalleeSig *Signature // declared signature metadata (required for call.indirect)

	// EH
	Handler string // eh.push target handler label

	Loc ast.Pos
}

// BasicBlock is a maximal straight-line instruction sequence ending in
// exactly one terminator (§3).
type BasicBlock struct {
	Label  string
	Params []BlockParam
	Instrs []*Instruction // non-terminator instructions, in order
	Term   *Instruction   // the block's single terminator; nil until emitted
}

// Function owns an ordered, non-empty list of basic blocks. The first is
// the entry block and has no predecessors declared in the IR.
type Function struct {
	Name    string
	Ret     Type
	Params  []Param
	Blocks  []*BasicBlock
	NumTemp TempID // one past the highest temp id reserved (dense allocation)

	blockIndex map[string]int // label -> index in Blocks, maintained by the builder
}

// Sig returns the function's call signature.
func (f *Function) Sig() Signature {
	params := make([]Type, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.Typ
	}
	return Signature{Params: params, Ret: f.Ret}
}

// Block looks up a basic block by label within this function.
func (f *Function) Block(label string) (*BasicBlock, bool) {
	if f.blockIndex == nil {
		f.reindexBlocks()
	}
	if i, ok := f.blockIndex[label]; ok {
		return f.Blocks[i], true
	}
	return nil, false
}

// AddBlock appends a new block, keeping the label index consistent so a
// subsequent Block() lookup sees it immediately.
func (f *Function) AddBlock(b *BasicBlock) {
	f.Blocks = append(f.Blocks, b)
	if f.blockIndex != nil {
		f.blockIndex[b.Label] = len(f.Blocks) - 1
	}
}

func (f *Function) reindexBlocks() {
	f.blockIndex = make(map[string]int, len(f.Blocks))
	for i, b := range f.Blocks {
		f.blockIndex[b.Label] = i
	}
}

// Entry returns the function's entry block (the first block), or nil for a
// malformed function with no blocks — verification rejects that case.
func (f *Function) Entry() *BasicBlock {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// Module owns the whole program tree: version, optional target, externs,
// globals, and function definitions, each in insertion order for
// deterministic iteration and emission (§3, §4.3).
type Module struct {
	Version Version
	Target  string // optional; "" means unset

	Externs []*Extern
	Globals []*Global
	Funcs   []*Function

	externIndex map[string]int
	globalIndex map[string]int
	funcIndex   map[string]int
}

// NewModule creates an empty module stamped with the given version.
func NewModule(v Version) *Module {
	return &Module{Version: v}
}

func (m *Module) ensureIndexes() {
	if m.externIndex == nil {
		m.externIndex = make(map[string]int, len(m.Externs))
		for i, e := range m.Externs {
			m.externIndex[e.Name] = i
		}
	}
	if m.globalIndex == nil {
		m.globalIndex = make(map[string]int, len(m.Globals))
		for i, g := range m.Globals {
			m.globalIndex[g.Name] = i
		}
	}
	if m.funcIndex == nil {
		m.funcIndex = make(map[string]int, len(m.Funcs))
		for i, f := range m.Funcs {
			m.funcIndex[f.Name] = i
		}
	}
}

func (m *Module) FindExtern(name string) (*Extern, bool) {
	m.ensureIndexes()
	if i, ok := m.externIndex[name]; ok {
		return m.Externs[i], true
	}
	return nil, false
}

func (m *Module) FindGlobal(name string) (*Global, bool) {
	m.ensureIndexes()
	if i, ok := m.globalIndex[name]; ok {
		return m.Globals[i], true
	}
	return nil, false
}

func (m *Module) FindFunc(name string) (*Function, bool) {
	m.ensureIndexes()
	if i, ok := m.funcIndex[name]; ok {
		return m.Funcs[i], true
	}
	return nil, false
}

// FindCallable resolves a symbol to either a local function's signature or
// an extern's signature — the two namespaces a direct call may target.
func (m *Module) FindCallable(name string) (Signature, bool) {
	if f, ok := m.FindFunc(name); ok {
		return f.Sig(), true
	}
	if e, ok := m.FindExtern(name); ok {
		return e.Sig, true
	}
	return Signature{}, false
}

// AddExtern registers a new extern. A name already registered with a
// different signature reports added=false, conflict=true; an idempotent
// re-declaration of the same signature reports added=false, conflict=false.
func (m *Module) AddExtern(e *Extern) (added bool, conflict bool) {
	m.ensureIndexes()
	if i, ok := m.externIndex[e.Name]; ok {
		return false, !m.Externs[i].Sig.Equal(e.Sig)
	}
	m.externIndex[e.Name] = len(m.Externs)
	m.Externs = append(m.Externs, e)
	return true, false
}

func (m *Module) AddGlobal(g *Global) (added bool, duplicate bool) {
	m.ensureIndexes()
	if _, ok := m.globalIndex[g.Name]; ok {
		return false, true
	}
	m.globalIndex[g.Name] = len(m.Globals)
	m.Globals = append(m.Globals, g)
	return true, false
}

func (m *Module) AddFunc(f *Function) (added bool, duplicate bool) {
	m.ensureIndexes()
	if _, ok := m.funcIndex[f.Name]; ok {
		return false, true
	}
	m.funcIndex[f.Name] = len(m.Funcs)
	m.Funcs = append(m.Funcs, f)
	return true, false
}
