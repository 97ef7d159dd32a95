package knight

import (
	"fmt"

	"github.com/tliron/commonlog"
)

type constKey struct {
	typ  ValueType
	bits int64
	str  string
}

type Compiler struct {
	table    *DispatchTable
	features Features
	symbols  *SymbolTable

	bytecodeChunk []Instruction
	constants     []Value
	constIndex    map[constKey]int
	blocks        []BlockInfo
	srcName       string

	log commonlog.Logger
}

func NewCompiler(table *DispatchTable) *Compiler {
	return &Compiler{
		table:    table,
		features: table.Features(),
		symbols:  NewSymbolTable(),
		log:      commonlog.GetLogger("knight.compiler"),
	}
}

// WithSymbols makes later compilations continue an existing symbol table,
// so programs compiled one after another share slot numbers.
func (c *Compiler) WithSymbols(symbols *SymbolTable) *Compiler {
	c.symbols = symbols
	return c
}

func (c *Compiler) Symbols() *SymbolTable {
	return c.symbols
}

// Compile lowers one tree into a program. On error nothing is kept: names
// interned during the failed compilation are dropped again.
func (c *Compiler) Compile(node ASTNode) (*Program, error) {
	c.bytecodeChunk = []Instruction{}
	c.constants = []Value{}
	c.constIndex = make(map[constKey]int)
	c.blocks = []BlockInfo{}
	c.srcName = ""
	if node != nil {
		if tok := node.GetToken(); tok != nil {
			c.srcName = tok.Loc.FileName
		}
	}

	mark := c.symbols.SlotCount()
	if err := c.compileNode(node); err != nil {
		c.symbols.truncate(mark)
		return nil, err
	}
	c.emitSingleInstruct(OpReturn)

	p := &Program{
		Name:      c.srcName,
		Code:      c.bytecodeChunk,
		Constants: c.constants,
		Blocks:    c.blocks,
		Symbols:   c.symbols,
		SlotCount: c.symbols.SlotCount(),
		Features:  c.features,
		table:     c.table,
	}
	p.initBlocks()
	c.log.Debugf("compiled %s: %d instructions, %d constants, %d blocks, %d slots",
		p.Name, len(p.Code), len(p.Constants), len(p.Blocks), p.SlotCount)
	return p, nil
}

func (c *Compiler) emitInstruct(opcode OpCode, operand int, token *Token) int {
	instructIdx := len(c.bytecodeChunk)
	c.bytecodeChunk = append(c.bytecodeChunk, Instruction{Op: opcode, Operand: operand, Token: token})
	return instructIdx
}

func (c *Compiler) emitSingleInstruct(opcode OpCode) int {
	return c.emitInstruct(opcode, 0, nil)
}

// patchJump points the jump at idx to the next instruction to be emitted.
func (c *Compiler) patchJump(idx int) {
	c.bytecodeChunk[idx].Operand = len(c.bytecodeChunk) - (idx + 1)
}

func (c *Compiler) addConstant(v Value) int {
	key := constKey{typ: v.Type(), bits: v.bits}
	if v.Type() == TypeString {
		key.str = v.AsString()
	}
	if idx, ok := c.constIndex[key]; ok {
		return idx
	}
	idx := len(c.constants)
	c.constants = append(c.constants, v)
	c.constIndex[key] = idx
	return idx
}

func (c *Compiler) intern(name string, tok *Token) (int, error) {
	if slot, ok := c.symbols.Lookup(name); ok {
		return slot, nil
	}
	if c.features.Compliance {
		if err := checkVariableName(name); err != nil {
			return 0, NewCompileError(err.Error(), tok.Loc)
		}
		if c.symbols.SlotCount() >= maxVariableCount {
			return 0, NewCompileError(fmt.Sprintf("too many variables (limit %d)", maxVariableCount), tok.Loc)
		}
	}
	return c.symbols.Intern(name), nil
}

func (c *Compiler) compileNode(node ASTNode) error {
	switch n := node.(type) {
	case *Literal:
		return c.visitLiteral(n)
	case *VariableRef:
		slot, err := c.intern(n.Name, n.Token)
		if err != nil {
			return err
		}
		c.emitInstruct(OpGetSlot, slot, n.Token)
		return nil
	case *Assignment:
		return c.visitAssignment(n)
	case *BlockLiteral:
		idx, err := c.compileBlock(n.Body, n.Token)
		if err != nil {
			return err
		}
		c.emitInstruct(OpMakeBlock, idx, n.Token)
		return nil
	case *Group:
		if err := c.checkGroup(n); err != nil {
			return err
		}
		return c.compileNode(n.Inner)
	case *Call:
		return c.visitCall(n)
	case nil:
		return NewCompileError("empty program", Loc{FileName: c.srcName})
	}
	return NewCompileError(fmt.Sprintf("cannot compile %s node", node.TypeString()), locOf(node))
}

func locOf(node ASTNode) Loc {
	if tok := node.GetToken(); tok != nil {
		return tok.Loc
	}
	return Loc{}
}

func (c *Compiler) checkGroup(g *Group) error {
	if !c.features.CheckParens || g.Balanced() {
		return nil
	}
	if g.Open == nil {
		return NewCompileError("unmatched closing parenthesis", g.Close.Loc)
	}
	return NewCompileError("missing closing parenthesis", g.Open.Loc)
}

func (c *Compiler) visitLiteral(n *Literal) error {
	if n.Value.Type() == TypeFloat && !c.features.Floats {
		return NewCompileError("float literal requires the floats feature", n.Token.Loc)
	}
	c.emitInstruct(OpConst, c.addConstant(n.Value), n.Token)
	return nil
}

func (c *Compiler) visitAssignment(n *Assignment) error {
	target := n.Target
	for {
		g, ok := target.(*Group)
		if !ok {
			break
		}
		if err := c.checkGroup(g); err != nil {
			return err
		}
		target = g.Inner
	}
	variable, ok := target.(*VariableRef)
	if !ok {
		return NewCompileError(fmt.Sprintf("can only assign to a variable, not %s", target.TypeString()), n.Token.Loc)
	}
	slot, err := c.intern(variable.Name, variable.Token)
	if err != nil {
		return err
	}
	if err := c.compileNode(n.Value); err != nil {
		return err
	}
	if last := len(c.bytecodeChunk) - 1; c.bytecodeChunk[last].Op == OpMakeBlock {
		if b := &c.blocks[c.bytecodeChunk[last].Operand]; b.Name == "" {
			b.Name = variable.Name
		}
	}
	c.emitInstruct(OpSetSlot, slot, n.Token)
	return nil
}

// compileBlock emits the body inline behind a jump, terminated by its own
// OpReturn, and records the range in the block table.
func (c *Compiler) compileBlock(body ASTNode, tok *Token) (int, error) {
	jmpOverBodyIdx := c.emitInstruct(OpJump, 0, tok)
	idx := len(c.blocks)
	c.blocks = append(c.blocks, BlockInfo{Start: len(c.bytecodeChunk), Loc: tok.Loc})
	if err := c.compileNode(body); err != nil {
		return 0, err
	}
	c.blocks[idx].End = c.emitInstruct(OpReturn, 0, tok)
	c.patchJump(jmpOverBodyIdx)
	return idx, nil
}

func (c *Compiler) visitCall(n *Call) error {
	b, ok := c.table.Lookup(n.Op)
	if !ok {
		return NewCompileError(fmt.Sprintf("unknown operator %s", n.Token.Value), n.Token.Loc)
	}
	if len(n.Args) != b.Arity {
		return NewCompileError(fmt.Sprintf("%s expects %d arguments, got %d", b.Name, b.Arity, len(n.Args)), n.Token.Loc)
	}

	switch b.Form {
	case FormLiteral:
		return c.visitLiteral(&Literal{Token: n.Token, Value: literalValue(n.Op)})
	case FormSpecial:
		return c.visitSpecial(n, b)
	}

	for _, name := range b.Binds {
		if _, err := c.intern(name, n.Token); err != nil {
			return err
		}
	}
	for _, arg := range n.Args {
		if !b.Lazy {
			if err := c.compileNode(arg); err != nil {
				return err
			}
			continue
		}
		idx, err := c.compileBlock(arg, n.Token)
		if err != nil {
			return err
		}
		c.emitInstruct(OpMakeBlock, idx, n.Token)
	}
	idx, _ := c.table.Index(n.Op)
	instr := c.emitInstruct(OpDispatch, idx, n.Token)
	c.bytecodeChunk[instr].Arity = b.Arity
	return nil
}

func (c *Compiler) visitSpecial(n *Call, b *Builtin) error {
	args := n.Args
	switch n.Op {
	case "C":
		if err := c.compileNode(args[0]); err != nil {
			return err
		}
		c.emitInstruct(OpCall, 0, n.Token)
	case "&", "|":
		if err := c.compileNode(args[0]); err != nil {
			return err
		}
		c.emitInstruct(OpDup, 0, n.Token)
		jump := OpJumpIfFalse
		if n.Op == "|" {
			jump = OpJumpIfTrue
		}
		skipIdx := c.emitInstruct(jump, 0, n.Token)
		c.emitInstruct(OpPop, 0, n.Token)
		if err := c.compileNode(args[1]); err != nil {
			return err
		}
		c.patchJump(skipIdx)
	case ";":
		if err := c.compileNode(args[0]); err != nil {
			return err
		}
		c.emitInstruct(OpPop, 0, n.Token)
		return c.compileNode(args[1])
	case "I":
		if err := c.compileNode(args[0]); err != nil {
			return err
		}
		jmpIfFalseIdx := c.emitInstruct(OpJumpIfFalse, 0, n.Token)
		if err := c.compileNode(args[1]); err != nil {
			return err
		}
		jmpOverElse := c.emitInstruct(OpJump, 0, n.Token)
		c.patchJump(jmpIfFalseIdx)
		if err := c.compileNode(args[2]); err != nil {
			return err
		}
		c.patchJump(jmpOverElse)
	case "W":
		loopStartIP := len(c.bytecodeChunk)
		if err := c.compileNode(args[0]); err != nil {
			return err
		}
		exitLoopJumpIdx := c.emitInstruct(OpJumpIfFalse, 0, n.Token)
		if err := c.compileNode(args[1]); err != nil {
			return err
		}
		c.emitInstruct(OpPop, 0, n.Token)
		backIdx := len(c.bytecodeChunk)
		c.emitInstruct(OpJump, loopStartIP-(backIdx+1), n.Token)
		c.patchJump(exitLoopJumpIdx)
		c.emitInstruct(OpConst, c.addConstant(Null), n.Token)
	default:
		return NewCompileError(fmt.Sprintf("malformed %s form", b.Name), n.Token.Loc)
	}
	return nil
}
