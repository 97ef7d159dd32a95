package knight

import "fmt"

// OpCode represents a bytecode operation
type OpCode int

const (
	OpConst OpCode = iota
	OpGetSlot
	OpSetSlot
	OpMakeBlock
	OpCall
	OpReturn
	OpPop
	OpDup
	OpJump
	OpJumpIfFalse
	OpJumpIfTrue
	OpDispatch
)

var opNames = map[OpCode]string{
	OpConst:       "OP_CONST",
	OpGetSlot:     "OP_GET_SLOT",
	OpSetSlot:     "OP_SET_SLOT",
	OpMakeBlock:   "OP_MAKE_BLOCK",
	OpCall:        "OP_CALL",
	OpReturn:      "OP_RETURN",
	OpPop:         "OP_POP",
	OpDup:         "OP_DUP",
	OpJump:        "OP_JUMP",
	OpJumpIfFalse: "OP_JUMP_IF_FALSE",
	OpJumpIfTrue:  "OP_JUMP_IF_TRUE",
	OpDispatch:    "OP_DISPATCH",
}

func (o OpCode) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return fmt.Sprintf("OP_UNKNOWN_%d", o)
}

// IsJump reports whether the operand is a relative jump offset.
func (o OpCode) IsJump() bool {
	return o == OpJump || o == OpJumpIfFalse || o == OpJumpIfTrue
}

func (o OpCode) hasOperand() bool {
	switch o {
	case OpCall, OpReturn, OpPop, OpDup:
		return false
	}
	return true
}

// Instruction is one decoded operation. Operand is a constant index, slot,
// block index, dispatch-table index or relative jump offset depending on
// Op; Arity is only meaningful for OpDispatch.
type Instruction struct {
	Op      OpCode
	Operand int
	Arity   int
	Token   *Token
}

func (i Instruction) String() string {
	if i.Op == OpDispatch {
		return fmt.Sprintf("%s %d/%d", i.Op, i.Operand, i.Arity)
	}
	if i.Op.hasOperand() {
		return fmt.Sprintf("%s %d", i.Op, i.Operand)
	}
	return i.Op.String()
}

// BlockInfo describes the instruction range of one block literal. End is
// the index of the range's closing OpReturn.
type BlockInfo struct {
	Start int
	End   int
	Name  string
	Loc   Loc
}

// Program is the output of one compilation: the instructions, constant
// pool, block table and the symbol table that fixes the slot count.
// Execution starts at instruction 0 and ends at the top-level OpReturn.
type Program struct {
	Name      string
	Code      []Instruction
	Constants []Value
	Blocks    []BlockInfo
	Symbols   *SymbolTable
	SlotCount int
	Features  Features

	table       *DispatchTable
	blockValues []Value
}

// initBlocks builds one shared Block value per block literal.
func (p *Program) initBlocks() {
	p.blockValues = make([]Value, len(p.Blocks))
	for i := range p.Blocks {
		p.blockValues[i] = newBlock(p, i)
	}
}

// Table returns the dispatch table the program was compiled against.
func (p *Program) Table() *DispatchTable {
	return p.table
}

// anonymousBlock names blocks never assigned to a variable.
const anonymousBlock = "<block>"

func (p *Program) blockName(index int) string {
	if index < 0 || index >= len(p.Blocks) || p.Blocks[index].Name == "" {
		return anonymousBlock
	}
	return p.Blocks[index].Name
}
